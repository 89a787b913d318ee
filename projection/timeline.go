// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and reaction state.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtalk/domain"
	"realtalk/domain/event"
)

// Timeline is one room's log as seen by a subscriber. Events may arrive
// more than once; the timeline applies them idempotently and keeps the
// messages in append order.
type Timeline struct {
	Room     uuid.UUID
	Messages []domain.Message
	Presence map[string]time.Time

	index map[uuid.UUID]int
}

func NewTimeline(room uuid.UUID) *Timeline {
	return &Timeline{
		Room:     room,
		Presence: make(map[string]time.Time),
		index:    make(map[uuid.UUID]int),
	}
}

// Seed installs the initial snapshot, replacing whatever the timeline
// held before.
func (t *Timeline) Seed(messages []domain.Message, presence []domain.PresenceEntry) {
	t.Messages = append([]domain.Message(nil), messages...)
	t.reindex()
	t.Presence = make(map[string]time.Time, len(presence))
	for _, entry := range presence {
		t.Presence[entry.User.UserID] = entry.LastHeartbeat
	}
}

func (t *Timeline) Consume(_ context.Context, e event.RoomEvent) error {
	switch evt := e.(type) {
	case event.MessageAdded:
		t.upsert(evt.Message)
	case event.MessageEdited:
		t.upsert(evt.Message)
	case event.ReactionChanged:
		t.upsert(evt.Message)
	case event.MessageDeleted:
		t.remove(evt.MessageID)
	case event.PresenceChanged:
		// a stale heartbeat never rolls presence back
		if evt.At.After(t.Presence[evt.User.UserID]) {
			t.Presence[evt.User.UserID] = evt.At
		}
	}
	return nil
}

// Online lists users whose last heartbeat is within ttl of now.
func (t *Timeline) Online(now time.Time, ttl time.Duration) []string {
	users := lo.PickBy(t.Presence, func(_ string, last time.Time) bool {
		// Strict comparison, same rule as the server side: an entry
		// exactly TTL old is already offline.
		return now.Sub(last) < ttl
	})
	ids := lo.Keys(users)
	sort.Strings(ids)
	return ids
}

func (t *Timeline) Get(id uuid.UUID) (domain.Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return t.Messages[i], true
}

// upsert replaces a known message in place, or appends in sequence
// order. Out-of-order arrival only happens around snapshot boundaries,
// so the insertion path is rare.
func (t *Timeline) upsert(msg domain.Message) {
	if i, ok := t.index[msg.ID]; ok {
		t.Messages[i] = msg
		return
	}
	t.Messages = append(t.Messages, msg)
	if n := len(t.Messages); n > 1 && t.Messages[n-2].Seq > msg.Seq {
		sort.Slice(t.Messages, func(i, j int) bool {
			return t.Messages[i].Seq < t.Messages[j].Seq
		})
		t.reindex()
		return
	}
	t.index[msg.ID] = len(t.Messages) - 1
}

func (t *Timeline) remove(id uuid.UUID) {
	i, ok := t.index[id]
	if !ok {
		return
	}
	t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
	t.reindex()
}

func (t *Timeline) reindex() {
	t.index = make(map[uuid.UUID]int, len(t.Messages))
	for i, msg := range t.Messages {
		t.index[msg.ID] = i
	}
}
