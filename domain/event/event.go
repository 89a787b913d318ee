// Package event defines the room event stream delivered to subscribers.
// Message events are emitted in the room's append order; presence events
// are unordered relative to them but monotonic per user.
package event

import (
	"time"

	"github.com/google/uuid"

	"realtalk/domain"
)

// RoomEvent is one state change observed by every subscriber of a room.
type RoomEvent interface {
	RoomID() uuid.UUID
}

// MessageAdded carries the fully formed message as appended. Subscribers
// should de-duplicate by Message.ID since delivery is at-least-once.
type MessageAdded struct {
	Message domain.Message
}

func (e MessageAdded) RoomID() uuid.UUID { return e.Message.RoomID }

// MessageEdited carries the message after the body replacement. The
// original identifier and timestamp are unchanged.
type MessageEdited struct {
	Message domain.Message
}

func (e MessageEdited) RoomID() uuid.UUID { return e.Message.RoomID }

// MessageDeleted marks a message as gone for all subscribers.
type MessageDeleted struct {
	Room      uuid.UUID
	MessageID uuid.UUID
}

func (e MessageDeleted) RoomID() uuid.UUID { return e.Room }

// ReactionChanged carries the message with its updated reaction sets.
type ReactionChanged struct {
	Message domain.Message
	Emoji   domain.Emoji
	UserID  string
	Added   bool
}

func (e ReactionChanged) RoomID() uuid.UUID { return e.Message.RoomID }

// PresenceChanged reports a fresh heartbeat. Duplicates are harmless:
// applying the same heartbeat twice is idempotent, and a later heartbeat
// always supersedes an earlier one for the same user.
type PresenceChanged struct {
	Room uuid.UUID
	User domain.Snapshot
	At   time.Time
}

func (e PresenceChanged) RoomID() uuid.UUID { return e.Room }
