package workers

import (
	"context"
	"log/slog"
	"time"

	"realtalk/contract"
	"realtalk/presence"
	"realtalk/ratelimit"
)

var _ contract.Worker = (*CompactionWorker)(nil)

// CompactionWorker periodically drops stale presence entries and idle
// rate-limit state. Correctness never depends on it: presence staleness
// is filtered at read time and rate state rebuilds lazily. This only
// bounds memory on long-running processes.
type CompactionWorker struct {
	log      *slog.Logger
	tracker  *presence.Tracker
	limiter  *ratelimit.Limiter
	clock    contract.Clock
	interval time.Duration
	idleFor  time.Duration
}

func NewCompactionWorker(log *slog.Logger, tracker *presence.Tracker,
	limiter *ratelimit.Limiter, clock contract.Clock,
	interval, idleFor time.Duration) *CompactionWorker {
	return &CompactionWorker{
		log:      log,
		tracker:  tracker,
		limiter:  limiter,
		clock:    clock,
		interval: interval,
		idleFor:  idleFor,
	}
}

func (w *CompactionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := w.clock.Now()
			entries := w.tracker.Compact(now)
			pairs := w.limiter.Forget(now, w.idleFor)
			if entries > 0 || pairs > 0 {
				w.log.Debug("Compaction pass",
					"presence_entries", entries,
					"rate_pairs", pairs)
			}
		}
	}
}
