package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"realtalk/domain"
	"realtalk/errors"
	"realtalk/observability"
	"realtalk/runtime"
)

// State is the lifecycle of one connected client in one room.
type State string

const (
	ConnectingState   State = "connecting"
	SubscribedState   State = "subscribed"
	SendingState      State = "sending"
	IdleState         State = "idle"
	DisconnectedState State = "disconnected"
)

// Snapshot is what a freshly subscribed client renders first: the
// bounded live view of the log plus the currently online participants.
type Snapshot struct {
	Messages []domain.Message
	Presence []domain.PresenceEntry
}

// Session serializes the commands of a single connection: at most one
// command of this session is in flight at any time. Concurrency across
// sessions is the room worker's problem, not ours.
type Session struct {
	mu           sync.Mutex
	id           uuid.UUID
	log          *slog.Logger
	orchestrator *runtime.Orchestrator
	counters     *observability.Counters
	user         domain.User
	room         domain.Room
	state        State
	snapshot     Snapshot
}

func newSession(log *slog.Logger, orchestrator *runtime.Orchestrator,
	counters *observability.Counters, user domain.User, room domain.Room) *Session {
	return &Session{
		id:           uuid.New(),
		log:          log,
		orchestrator: orchestrator,
		counters:     counters,
		user:         user,
		room:         room,
		state:        ConnectingState,
	}
}

// ID identifies this connection in the fan-out registry. Two sessions of
// the same user are distinct subscribers with distinct sinks.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) User() domain.User { return s.user }
func (s *Session) Room() domain.Room { return s.room }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitialSnapshot returns the view captured when the session subscribed.
func (s *Session) InitialSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// subscribe captures the initial snapshot, announces presence, and moves
// the session to SubscribedState.
func (s *Session) subscribe(ctx context.Context, recentLimit int) error {
	messages, err := s.orchestrator.Recent(s.room.ID, recentLimit)
	if err != nil {
		return err
	}

	if _, err := s.orchestrator.Execute(ctx, domain.Heartbeat{
		Room: s.room.ID,
		User: s.user.Snapshot(),
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{
		Messages: messages,
		Presence: s.orchestrator.ActiveSet(s.room.ID),
	}
	s.state = SubscribedState
	return nil
}

// Send runs the full pipeline for a new message. The session lock keeps
// the state machine honest: two Sends from the same session can never
// overlap.
func (s *Session) Send(ctx context.Context, body, dedupToken string) (domain.Message, error) {
	msg, err := s.execute(ctx, SendingState, domain.SendMessage{
		Room:       s.room.ID,
		Author:     s.user.Snapshot(),
		Body:       body,
		DedupToken: dedupToken,
	})
	if err != nil {
		s.counters.IncrSendRejected()
		return domain.Message{}, err
	}
	s.counters.IncrSendAdmitted()
	return msg, nil
}

func (s *Session) Edit(ctx context.Context, messageID uuid.UUID, newBody string) (domain.Message, error) {
	return s.execute(ctx, SendingState, domain.EditMessage{
		Room:      s.room.ID,
		MessageID: messageID,
		UserID:    s.user.ID,
		NewBody:   newBody,
	})
}

func (s *Session) Delete(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.execute(ctx, SendingState, domain.DeleteMessage{
		Room:      s.room.ID,
		MessageID: messageID,
		UserID:    s.user.ID,
	})
	return err
}

func (s *Session) React(ctx context.Context, messageID uuid.UUID, emoji domain.Emoji, add bool) (domain.Message, error) {
	return s.execute(ctx, SendingState, domain.React{
		Room:      s.room.ID,
		MessageID: messageID,
		UserID:    s.user.ID,
		Emoji:     emoji,
		Add:       add,
	})
}

// Heartbeat announces the session is still alive. Presence never blocks
// other operations, so a failed heartbeat is not fatal to the session.
func (s *Session) Heartbeat(ctx context.Context) error {
	_, err := s.execute(ctx, IdleState, domain.Heartbeat{
		Room: s.room.ID,
		User: s.user.Snapshot(),
	})
	return err
}

// Recent re-reads the bounded live view, e.g. after a NotFound told the
// client its view is stale.
func (s *Session) Recent(limit int) ([]domain.Message, error) {
	return s.orchestrator.Recent(s.room.ID, limit)
}

// ActiveSet lists who is online right now.
func (s *Session) ActiveSet() []domain.PresenceEntry {
	return s.orchestrator.ActiveSet(s.room.ID)
}

// Close detaches the session from the fan-out. The presence entry is
// not torn down: it simply ages out, which is correct if less prompt.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == DisconnectedState {
		s.mu.Unlock()
		return
	}
	s.state = DisconnectedState
	s.mu.Unlock()

	s.orchestrator.UnregisterSession(s.id, s.room.ID)
	s.counters.DecrSessions()
	s.log.Debug("Session closed", "session", s.id, "user", s.user.ID, "room", s.room.ID)
}

// execute holds the session lock for the duration of the command, which
// is what makes the Sending state transient and exclusive.
func (s *Session) execute(ctx context.Context, during State, cmd domain.Command) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == DisconnectedState || s.state == ConnectingState {
		return domain.Message{}, errors.ErrRoomClosed
	}

	s.state = during
	defer func() { s.state = IdleState }()

	return s.orchestrator.Execute(ctx, cmd)
}
