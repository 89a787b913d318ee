// Package runtime wires the per-room workers, the subscription registry,
// and the event fan-out together. It orchestrates the system without
// containing domain rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtalk/contract"
	"realtalk/domain"
	"realtalk/domain/event"
	"realtalk/errors"
	"realtalk/moderation"
	"realtalk/presence"
	"realtalk/ratelimit"
	"realtalk/repositories"
	"realtalk/runtime/workers"
)

var _ contract.IOrchestrator = (*Orchestrator)(nil)

// Orchestrator owns one command channel per room and routes every
// command to that room's worker. Reads (recent messages, active set)
// bypass the workers entirely: slight staleness is acceptable and reads
// must never block sends.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	clock      contract.Clock
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	gate       moderation.Gate
	censor     *moderation.Censor
	limiter    *ratelimit.Limiter
	tracker    *presence.Tracker
	messages   repositories.IMessageRepository
	maxBody    int
	fanout     *workers.EventFanout
	rooms      map[uuid.UUID]chan workers.Request
	events     chan event.RoomEvent
	bufferSize int
	runCtx     context.Context
	cancel     context.CancelFunc
}

func NewOrchestrator(
	log *slog.Logger,
	clock contract.Clock,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	gate moderation.Gate,
	censor *moderation.Censor,
	limiter *ratelimit.Limiter,
	tracker *presence.Tracker,
	messages repositories.IMessageRepository,
	maxBody int,
	bufferSize int,
	sinkTimeout time.Duration,
) *Orchestrator {
	events := make(chan event.RoomEvent, bufferSize)
	return &Orchestrator{
		log:        log,
		clock:      clock,
		supervisor: supervisor,
		registry:   registry,
		gate:       gate,
		censor:     censor,
		limiter:    limiter,
		tracker:    tracker,
		messages:   messages,
		maxBody:    maxBody,
		fanout:     workers.NewEventFanout(log, registry, events, sinkTimeout),
		rooms:      make(map[uuid.UUID]chan workers.Request),
		events:     events,
		bufferSize: bufferSize,
	}
}

// AddSinks registers permanent fan-out sinks. Must be called before
// Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.fanout.Add(sinks...)
}

// AddWorkers registers extra supervised workers (compaction, health
// monitoring). Must be called before Start.
func (o *Orchestrator) AddWorkers(ws ...contract.Worker) {
	o.supervisor.Add(ws...)
}

// RegisterRoom spins up the room's serialization point. Registering an
// already known room is a no-op.
func (o *Orchestrator) RegisterRoom(room domain.Room) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.rooms[room.ID]; ok {
		o.log.Debug(fmt.Sprintf("Room %s already registered", room.ID))
		return nil
	}

	commands := make(chan workers.Request, o.bufferSize)
	worker := workers.NewRoomWorker(room, commands, o.events,
		o.gate, o.censor, o.limiter, o.tracker, o.messages, o.maxBody,
		o.clock, o.log)

	if o.runCtx != nil {
		o.supervisor.Start(o.runCtx, worker)
	} else {
		o.supervisor.Add(worker)
	}
	o.rooms[room.ID] = commands
	return nil
}

// Execute routes the command to its room worker and waits for the typed
// outcome. The caller's context bounds the wait, so a stalled store
// surfaces as a retryable error to the caller rather than wedging the
// session.
func (o *Orchestrator) Execute(ctx context.Context, cmd domain.Command) (domain.Message, error) {
	o.mu.Lock()
	commands, ok := o.rooms[cmd.RoomID()]
	o.mu.Unlock()
	if !ok {
		return domain.Message{}, errors.NotFoundError{Entity: "room", ID: cmd.RoomID().String()}
	}

	req := workers.Request{Ctx: ctx, Cmd: cmd, Reply: make(chan workers.Result, 1)}
	select {
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case commands <- req:
	}

	select {
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case res := <-req.Reply:
		return res.Message, res.Err
	}
}

// Recent serves the bounded live view of a room's log. Reads do not pass
// through the room worker.
func (o *Orchestrator) Recent(roomID uuid.UUID, limit int) ([]domain.Message, error) {
	return o.messages.Recent(roomID, limit)
}

// ActiveSet lists the currently online participants of a room.
func (o *Orchestrator) ActiveSet(roomID uuid.UUID) []domain.PresenceEntry {
	return o.tracker.ActiveSet(roomID, o.clock.Now())
}

func (o *Orchestrator) RegisterSession(sessionID, roomID uuid.UUID, sink contract.EventSink) {
	o.registry.Subscribe(sessionID, roomID, sink)
}

func (o *Orchestrator) UnregisterSession(sessionID, roomID uuid.UUID) {
	o.registry.Unsubscribe(sessionID, roomID)
}

// Start runs the fan-out and every registered worker under supervision
// and blocks until shutdown. Rooms registered later are attached to the
// same run context.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel
	o.supervisor.Add(o.fanout)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(runCtx)
	return nil
}

// Stop initiates a graceful shutdown: every worker sees its context
// cancel and Start unblocks once they drain.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	if o.cancel != nil {
		o.cancel()
	}
	o.supervisor.Stop()
}
