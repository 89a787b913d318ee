// Package ratelimit gates message sends per (user, room) pair. Two
// independent checks catch both rapid double-sends (cooldown) and
// sustained bursts (reset-on-expiry window). State is O(1) per pair.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtalk/errors"
)

type state struct {
	lastSend    time.Time
	windowStart time.Time
	count       int
}

type Limiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	window   time.Duration
	limit    int
	pairs    map[string]*state
}

func NewLimiter(cooldown, window time.Duration, limit int) *Limiter {
	return &Limiter{
		cooldown: cooldown,
		window:   window,
		limit:    limit,
		pairs:    make(map[string]*state),
	}
}

func key(userID string, roomID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", roomID, userID)
}

// Admit decides whether a send may proceed. It returns nil on admission
// and a RateLimitedError carrying a retry-after hint otherwise. The
// window is reset wholesale when it expires rather than rolling, which
// trades slight leniency at window boundaries for constant-size state.
func (l *Limiter) Admit(userID string, roomID uuid.UUID, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.pairs[key(userID, roomID)]
	if !ok {
		s = &state{windowStart: now}
		l.pairs[key(userID, roomID)] = s
	}

	if !s.lastSend.IsZero() && now.Sub(s.lastSend) < l.cooldown {
		return errors.RateLimitedError{
			Kind:       errors.RateLimitCooldown,
			RetryAfter: l.cooldown - now.Sub(s.lastSend),
		}
	}

	if now.Sub(s.windowStart) >= l.window {
		s.count = 0
		s.windowStart = now
	}

	if s.count >= l.limit {
		return errors.RateLimitedError{
			Kind:       errors.RateLimitBurst,
			RetryAfter: l.window - now.Sub(s.windowStart),
		}
	}

	s.count++
	s.lastSend = now
	return nil
}

// Forget drops pairs idle for longer than idleFor. Rate state is rebuilt
// lazily on the next send, so forgetting is always safe.
func (l *Limiter) Forget(now time.Time, idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, s := range l.pairs {
		if now.Sub(s.lastSend) >= idleFor {
			delete(l.pairs, k)
			removed++
		}
	}
	return removed
}
