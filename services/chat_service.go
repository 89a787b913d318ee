//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"realtalk/contract"
	"realtalk/domain"
	"realtalk/observability"
	"realtalk/repositories"
	"realtalk/runtime"
)

type IChatService interface {
	CreateRoom(name, description string, visibility domain.Visibility, password string, owner domain.User) (domain.Room, error)
	ListRooms() ([]domain.Room, error)
	OpenSession(ctx context.Context, user domain.User, roomID uuid.UUID, password string, sink contract.EventSink) (*Session, error)
}

// ChatService is the boundary a transport talks to. It owns room
// lifecycle and session setup; everything per-command goes through the
// Session it hands out.
type ChatService struct {
	log          *slog.Logger
	clock        contract.Clock
	orchestrator *runtime.Orchestrator
	rooms        repositories.IRoomRepository
	counters     *observability.Counters
	recentLimit  int
}

func NewChatService(log *slog.Logger, clock contract.Clock,
	orchestrator *runtime.Orchestrator, rooms repositories.IRoomRepository,
	counters *observability.Counters, recentLimit int) *ChatService {
	return &ChatService{
		log:          log,
		clock:        clock,
		orchestrator: orchestrator,
		rooms:        rooms,
		counters:     counters,
		recentLimit:  recentLimit,
	}
}

// CreateRoom persists the room record and spins up its worker. Private
// rooms carry a bcrypt hash of the password.
func (s *ChatService) CreateRoom(name, description string, visibility domain.Visibility, password string, owner domain.User) (domain.Room, error) {
	room, err := domain.NewRoom(name, description, visibility, password, owner.ID, owner.DisplayName, s.clock.Now())
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.rooms.Save(room); err != nil {
		return domain.Room{}, err
	}
	if err := s.orchestrator.RegisterRoom(room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "room", room.ID, "name", room.Name, "owner", owner.ID)
	return room, nil
}

func (s *ChatService) ListRooms() ([]domain.Room, error) {
	return s.rooms.List()
}

// OpenSession joins a user to a room: password check for private rooms,
// subscription to the fan-out, then the initial snapshot. The returned
// session is in SubscribedState and ready for commands.
func (s *ChatService) OpenSession(ctx context.Context, user domain.User, roomID uuid.UUID, password string, sink contract.EventSink) (*Session, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if err := room.CheckPassword(password); err != nil {
		return nil, err
	}
	if err := s.orchestrator.RegisterRoom(room); err != nil {
		return nil, err
	}

	session := newSession(s.log, s.orchestrator, s.counters, user, room)

	s.orchestrator.RegisterSession(session.id, roomID, sink)
	s.counters.IncrSessions()

	if err := session.subscribe(ctx, s.recentLimit); err != nil {
		s.orchestrator.UnregisterSession(session.id, roomID)
		s.counters.DecrSessions()
		return nil, err
	}
	return session, nil
}
