package server

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtalk/domain"
	"realtalk/domain/event"
	"realtalk/errors"
)

func Test_Error_Taxonomy_Maps_To_Wire_Codes(t *testing.T) {
	req := require.New(t)

	payload := toErrorPayload(errors.RateLimitedError{
		Kind:       errors.RateLimitCooldown,
		RetryAfter: 600 * time.Millisecond,
	})
	req.Equal("rate_limited", payload.Code)
	req.Equal(int64(600), payload.RetryAfterMs)

	payload = toErrorPayload(errors.PermissionError{
		Reason:     errors.ErrBanned,
		RetryAfter: time.Minute,
	})
	req.Equal("permission_denied", payload.Code)
	req.Equal(int64(60_000), payload.RetryAfterMs)

	req.Equal("invalid", toErrorPayload(errors.ValidationError{Reason: errors.ErrEmptyBody}).Code)
	req.Equal("not_found", toErrorPayload(errors.NotFoundError{Entity: "message", ID: "x"}).Code)
	req.Equal("unavailable", toErrorPayload(errors.TransientStoreError{Op: "append", Err: errors.ErrRoomClosed}).Code)
	req.Equal("internal", toErrorPayload(errors.ErrRoomClosed).Code)
}

func Test_Event_Payloads_Carry_The_Right_Kind(t *testing.T) {
	req := require.New(t)
	room := uuid.New()
	msg := domain.Message{
		ID:     uuid.New(),
		RoomID: room,
		Seq:    7,
		Author: domain.Snapshot{UserID: "alice", DisplayName: "Alice"},
		Body:   "hello",
		Reactions: map[domain.Emoji]domain.UserSet{
			domain.EmojiFire: {"bob": struct{}{}},
		},
	}

	added := toEventPayload(event.MessageAdded{Message: msg})
	req.Equal(EventMessageAdded, added.Kind)
	// every event names its room so a client multiplexing several
	// sessions can route it
	req.Equal(room.String(), added.RoomId)
	req.Equal(msg.ID.String(), added.Message.Id)
	req.Equal([]string{"bob"}, added.Message.Reactions[string(domain.EmojiFire)])

	deleted := toEventPayload(event.MessageDeleted{Room: room, MessageID: msg.ID})
	req.Equal(EventMessageDeleted, deleted.Kind)
	req.Equal(room.String(), deleted.RoomId)
	req.Equal(msg.ID.String(), deleted.MessageId)

	reaction := toEventPayload(event.ReactionChanged{
		Message: msg, Emoji: domain.EmojiFire, UserID: "bob", Added: true,
	})
	req.Equal(EventReactionChanged, reaction.Kind)
	req.True(reaction.Added)

	pres := toEventPayload(event.PresenceChanged{
		Room: room,
		User: domain.Snapshot{UserID: "alice"},
		At:   time.Now().UTC(),
	})
	req.Equal(EventPresenceChanged, pres.Kind)
	req.Equal(room.String(), pres.RoomId)
	req.Equal("alice", pres.Presence.User.UserId)
}
