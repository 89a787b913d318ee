package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"realtalk/contract"
	"realtalk/observability"
)

var _ contract.Worker = (*HealthMonitorWorker)(nil)

// HealthMonitorWorker logs process health (RSS, CPU, status) together
// with the engine counters at a fixed interval.
type HealthMonitorWorker struct {
	log      *slog.Logger
	counters *observability.Counters
	interval time.Duration
}

func NewHealthMonitorWorker(log *slog.Logger, counters *observability.Counters,
	interval time.Duration) *HealthMonitorWorker {
	return &HealthMonitorWorker{log: log, counters: counters, interval: interval}
}

func (w *HealthMonitorWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			snapshot := w.counters.Snapshot()
			w.log.Info("Engine health",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"sends_admitted", snapshot.SendsAdmitted,
				"sends_rejected", snapshot.SendsRejected,
				"events_fanned_out", snapshot.EventsFannedOut)
		}
	}
}

// selfStats retrieves memory, CPU, and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
