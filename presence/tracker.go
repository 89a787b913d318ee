// Package presence computes the "currently online" set of a room from
// heartbeats. Heartbeats are idempotent and commutative: out-of-order
// delivery is resolved by keeping the maximum timestamp seen.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtalk/domain"
)

type Tracker struct {
	mu    sync.RWMutex
	ttl   time.Duration
	rooms map[uuid.UUID]map[string]domain.PresenceEntry
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		ttl:   ttl,
		rooms: make(map[uuid.UUID]map[string]domain.PresenceEntry),
	}
}

// Heartbeat upserts the entry for (room, user). A heartbeat older than
// the one already recorded is ignored so clock skew cannot move a user
// backwards in time.
func (t *Tracker) Heartbeat(roomID uuid.UUID, user domain.Snapshot, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]domain.PresenceEntry)
		t.rooms[roomID] = room
	}
	if existing, ok := room[user.UserID]; ok && existing.LastHeartbeat.After(now) {
		return
	}
	room[user.UserID] = domain.PresenceEntry{User: user, LastHeartbeat: now}
}

// ActiveSet returns every participant whose last heartbeat is younger
// than the TTL. Stale entries are filtered here rather than purged
// eagerly; Compact handles eventual cleanup.
func (t *Tracker) ActiveSet(roomID uuid.UUID, now time.Time) []domain.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Filter(lo.Values(room), func(e domain.PresenceEntry, _ int) bool {
		return e.OnlineAt(now, t.ttl)
	})
}

// Compact removes entries stale for several TTLs. Correctness never
// depends on it running; it only bounds memory for long-lived rooms.
func (t *Tracker) Compact(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for roomID, room := range t.rooms {
		for userID, entry := range room {
			if now.Sub(entry.LastHeartbeat) >= 3*t.ttl {
				delete(room, userID)
				removed++
			}
		}
		if len(room) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return removed
}
