package projection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtalk/domain"
	"realtalk/domain/event"
)

func message(room uuid.UUID, seq uint64, body string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		RoomID:    room,
		Seq:       seq,
		Author:    domain.Snapshot{UserID: "alice", DisplayName: "Alice"},
		Body:      body,
		CreatedAt: time.Now().UTC().Add(time.Duration(seq) * time.Second),
		Reactions: make(map[domain.Emoji]domain.UserSet),
	}
}

func TestTimeline_Applies_Adds_In_Order(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	first := message(room, 1, "hello")
	second := message(room, 2, "world")

	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: first}))
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: second}))

	req.Len(timeline.Messages, 2)
	req.Equal("hello", timeline.Messages[0].Body)
	req.Equal("world", timeline.Messages[1].Body)
}

func TestTimeline_Deduplicates_Redelivered_Events(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	msg := message(room, 1, "delivered at least once")
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: msg}))
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: msg}))

	req.Len(timeline.Messages, 1)
}

func TestTimeline_Reorders_A_Late_Arrival(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	second := message(room, 2, "second")
	first := message(room, 1, "first")

	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: second}))
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: first}))

	req.Equal("first", timeline.Messages[0].Body)
	req.Equal("second", timeline.Messages[1].Body)

	// the index survives the reorder
	got, ok := timeline.Get(second.ID)
	req.True(ok)
	req.Equal("second", got.Body)
}

func TestTimeline_Edit_Replaces_In_Place(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	msg := message(room, 1, "draft")
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: msg}))

	edited := msg
	edited.Body = "final"
	edited.Edited = true
	req.NoError(timeline.Consume(ctx, event.MessageEdited{Message: edited}))

	req.Len(timeline.Messages, 1)
	req.Equal("final", timeline.Messages[0].Body)
	req.True(timeline.Messages[0].Edited)
}

func TestTimeline_Delete_Removes_And_Tolerates_Unknown_Ids(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	msg := message(room, 1, "going away")
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: msg}))
	req.NoError(timeline.Consume(ctx, event.MessageDeleted{Room: room, MessageID: msg.ID}))
	req.Empty(timeline.Messages)

	// a redelivered delete is a no-op
	req.NoError(timeline.Consume(ctx, event.MessageDeleted{Room: room, MessageID: msg.ID}))
}

func TestTimeline_Presence_Keeps_The_Latest_Heartbeat(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()
	now := time.Now().UTC()

	user := domain.Snapshot{UserID: "bob", DisplayName: "Bob"}
	req.NoError(timeline.Consume(ctx, event.PresenceChanged{Room: room, User: user, At: now}))
	// a delayed older heartbeat never rolls presence back
	req.NoError(timeline.Consume(ctx, event.PresenceChanged{Room: room, User: user, At: now.Add(-time.Minute)}))

	req.Equal(now, timeline.Presence["bob"])
	req.Equal([]string{"bob"}, timeline.Online(now.Add(time.Minute), 2*time.Minute))
	req.Empty(timeline.Online(now.Add(3*time.Minute), 2*time.Minute))

	// the TTL boundary is strict, matching the tracker's rule
	ttl := 2 * time.Minute
	req.Equal([]string{"bob"}, timeline.Online(now.Add(ttl-time.Nanosecond), ttl))
	req.Empty(timeline.Online(now.Add(ttl), ttl))
}

func TestTimeline_Seed_Replaces_Previous_State(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	timeline := NewTimeline(room)
	ctx := context.Background()

	stale := message(room, 1, "stale")
	req.NoError(timeline.Consume(ctx, event.MessageAdded{Message: stale}))

	fresh := message(room, 2, "fresh")
	timeline.Seed([]domain.Message{fresh}, []domain.PresenceEntry{
		{User: domain.Snapshot{UserID: "alice"}, LastHeartbeat: time.Now().UTC()},
	})

	req.Len(timeline.Messages, 1)
	req.Equal("fresh", timeline.Messages[0].Body)
	req.Contains(timeline.Presence, "alice")

	_, ok := timeline.Get(stale.ID)
	req.False(ok)
}
