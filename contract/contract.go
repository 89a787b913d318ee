//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"realtalk/domain"
	"realtalk/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives room events for one subscriber. Consume must not
// block longer than the fan-out timeout or the event is dropped for
// that subscriber.
type EventSink interface {
	Consume(ctx context.Context, e event.RoomEvent) error
}

type IRegistry interface {
	GetSinksForRoom(roomID uuid.UUID) []EventSink
	Subscribe(sessionID, roomID uuid.UUID, sink EventSink)
	Unsubscribe(sessionID, roomID uuid.UUID)
}

type IOrchestrator interface {
	RegisterRoom(room domain.Room) error
	Execute(ctx context.Context, cmd domain.Command) (domain.Message, error)
	RegisterSession(sessionID, roomID uuid.UUID, sink EventSink)
	UnregisterSession(sessionID, roomID uuid.UUID)
	Start(ctx context.Context) error
	Stop()
}
