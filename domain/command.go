package domain

import "github.com/google/uuid"

// Command is one client action targeting a single room. All commands for
// the same room are serialized by that room's worker.
type Command interface {
	RoomID() uuid.UUID
}

// SendMessage appends a new message to the room's log.
type SendMessage struct {
	Room   uuid.UUID
	Author Snapshot
	Body   string
	// DedupToken is optional and client-generated. Retrying a send with
	// the same token returns the already-appended message instead of
	// appending twice.
	DedupToken string
}

func (c SendMessage) RoomID() uuid.UUID { return c.Room }

// EditMessage replaces the body of an existing message, author only.
type EditMessage struct {
	Room      uuid.UUID
	MessageID uuid.UUID
	UserID    string
	NewBody   string
}

func (c EditMessage) RoomID() uuid.UUID { return c.Room }

// DeleteMessage removes a message from the log, author only.
type DeleteMessage struct {
	Room      uuid.UUID
	MessageID uuid.UUID
	UserID    string
}

func (c DeleteMessage) RoomID() uuid.UUID { return c.Room }

// React toggles a reaction. Adding an existing reaction and removing an
// absent one are both no-op successes.
type React struct {
	Room      uuid.UUID
	MessageID uuid.UUID
	UserID    string
	Emoji     Emoji
	Add       bool
}

func (c React) RoomID() uuid.UUID { return c.Room }

// Heartbeat refreshes the sender's presence entry.
type Heartbeat struct {
	Room uuid.UUID
	User Snapshot
}

func (c Heartbeat) RoomID() uuid.UUID { return c.Room }
