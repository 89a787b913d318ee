package server

import (
	stderrors "errors"
	"time"

	"github.com/samber/lo"

	"realtalk/domain"
	"realtalk/domain/event"
	"realtalk/errors"
)

// ClientFrame is one command sent by a connected client. Exactly one of
// the payload pointers is set; Id is echoed back on the ack or error so
// the client can correlate replies.
type ClientFrame struct {
	Id        int               `json:"id,omitempty"`
	Send      *SendPayload      `json:"send,omitempty"`
	Edit      *EditPayload      `json:"edit,omitempty"`
	Delete    *DeletePayload    `json:"delete,omitempty"`
	React     *ReactPayload     `json:"react,omitempty"`
	Heartbeat *HeartbeatPayload `json:"heartbeat,omitempty"`
}

type SendPayload struct {
	Body       string `json:"body"`
	DedupToken string `json:"dedup_token,omitempty"`
}

type EditPayload struct {
	MessageId string `json:"message_id"`
	NewBody   string `json:"new_body"`
}

type DeletePayload struct {
	MessageId string `json:"message_id"`
}

type ReactPayload struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
	Add       bool   `json:"add"`
}

type HeartbeatPayload struct{}

// ServerFrame is one frame pushed to a client: a reply to one of its
// commands (Ack or Error), the initial Snapshot, or a live Event.
type ServerFrame struct {
	Id       int              `json:"id,omitempty"`
	Ack      *AckPayload      `json:"ack,omitempty"`
	Error    *ErrorPayload    `json:"error,omitempty"`
	Snapshot *SnapshotPayload `json:"snapshot,omitempty"`
	Event    *EventPayload    `json:"event,omitempty"`
}

type AckPayload struct {
	Message *WireMessage `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code         string `json:"code"`
	Detail       string `json:"detail"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type SnapshotPayload struct {
	Room     WireRoom       `json:"room"`
	Messages []WireMessage  `json:"messages"`
	Presence []WirePresence `json:"presence"`
}

// EventPayload mirrors the room event stream. Kind selects which of the
// optional fields carry data.
type EventPayload struct {
	Kind      string        `json:"kind"`
	RoomId    string        `json:"room_id"`
	Message   *WireMessage  `json:"message,omitempty"`
	MessageId string        `json:"message_id,omitempty"`
	Emoji     string        `json:"emoji,omitempty"`
	UserId    string        `json:"user_id,omitempty"`
	Added     bool          `json:"added,omitempty"`
	Presence  *WirePresence `json:"presence,omitempty"`
}

const (
	EventMessageAdded    = "message_added"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventReactionChanged = "reaction_changed"
	EventPresenceChanged = "presence_changed"
)

type WireRoom struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility"`
	OwnerId     string `json:"owner_id"`
	OwnerName   string `json:"owner_name"`
}

type WireAuthor struct {
	UserId      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoRef    string `json:"photo_ref,omitempty"`
}

type WireMessage struct {
	Id        string              `json:"id"`
	RoomId    string              `json:"room_id"`
	Seq       uint64              `json:"seq"`
	Author    WireAuthor          `json:"author"`
	Body      string              `json:"body"`
	CreatedAt time.Time           `json:"created_at"`
	Edited    bool                `json:"edited,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

type WirePresence struct {
	User          WireAuthor `json:"user"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
}

func toWireRoom(room domain.Room) WireRoom {
	return WireRoom{
		Id:          room.ID.String(),
		Name:        room.Name,
		Description: room.Description,
		Visibility:  string(room.Visibility),
		OwnerId:     room.OwnerID,
		OwnerName:   room.OwnerName,
	}
}

func toWireAuthor(s domain.Snapshot) WireAuthor {
	return WireAuthor{UserId: s.UserID, DisplayName: s.DisplayName, PhotoRef: s.PhotoRef}
}

func toWireMessage(msg domain.Message) WireMessage {
	wire := WireMessage{
		Id:        msg.ID.String(),
		RoomId:    msg.RoomID.String(),
		Seq:       msg.Seq,
		Author:    toWireAuthor(msg.Author),
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
		Edited:    msg.Edited,
	}
	if len(msg.Reactions) > 0 {
		wire.Reactions = make(map[string][]string, len(msg.Reactions))
		for emoji, users := range msg.Reactions {
			wire.Reactions[string(emoji)] = lo.Keys(users)
		}
	}
	return wire
}

func toWirePresence(entry domain.PresenceEntry) WirePresence {
	return WirePresence{User: toWireAuthor(entry.User), LastHeartbeat: entry.LastHeartbeat}
}

func toEventPayload(evt event.RoomEvent) *EventPayload {
	room := evt.RoomID().String()
	switch e := evt.(type) {
	case event.MessageAdded:
		return &EventPayload{Kind: EventMessageAdded, RoomId: room, Message: lo.ToPtr(toWireMessage(e.Message))}
	case event.MessageEdited:
		return &EventPayload{Kind: EventMessageEdited, RoomId: room, Message: lo.ToPtr(toWireMessage(e.Message))}
	case event.MessageDeleted:
		return &EventPayload{Kind: EventMessageDeleted, RoomId: room, MessageId: e.MessageID.String()}
	case event.ReactionChanged:
		return &EventPayload{
			Kind:    EventReactionChanged,
			RoomId:  room,
			Message: lo.ToPtr(toWireMessage(e.Message)),
			Emoji:   string(e.Emoji),
			UserId:  e.UserID,
			Added:   e.Added,
		}
	case event.PresenceChanged:
		return &EventPayload{
			Kind:     EventPresenceChanged,
			RoomId:   room,
			Presence: &WirePresence{User: toWireAuthor(e.User), LastHeartbeat: e.At},
		}
	default:
		return nil
	}
}

// toErrorPayload maps the engine's error taxonomy onto wire codes so a
// client can decide between retrying, refreshing, or giving up without
// parsing error strings.
func toErrorPayload(err error) *ErrorPayload {
	var (
		validation errors.ValidationError
		permission errors.PermissionError
		rated      errors.RateLimitedError
		notFound   errors.NotFoundError
		transient  errors.TransientStoreError
	)
	switch {
	case stderrors.As(err, &rated):
		return &ErrorPayload{
			Code:         "rate_limited",
			Detail:       rated.Error(),
			RetryAfterMs: rated.RetryAfter.Milliseconds(),
		}
	case stderrors.As(err, &permission):
		return &ErrorPayload{
			Code:         "permission_denied",
			Detail:       permission.Error(),
			RetryAfterMs: permission.RetryAfter.Milliseconds(),
		}
	case stderrors.As(err, &validation):
		return &ErrorPayload{Code: "invalid", Detail: validation.Error()}
	case stderrors.As(err, &notFound):
		return &ErrorPayload{Code: "not_found", Detail: notFound.Error()}
	case stderrors.As(err, &transient):
		return &ErrorPayload{Code: "unavailable", Detail: transient.Error()}
	default:
		return &ErrorPayload{Code: "internal", Detail: err.Error()}
	}
}
