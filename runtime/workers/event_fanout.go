package workers

import (
	"context"
	"log/slog"
	"time"

	"realtalk/contract"
	"realtalk/domain/event"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout broadcasts room events to every subscriber of the event's
// room, plus a set of permanent sinks (observability, projections).
//
// Delivery is at-least-once and best-effort per sink: a sink that does
// not consume within the configured timeout loses that event. Message
// events reach each subscriber in the room's append order because the
// fan-out drains a single channel sequentially.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	events         chan event.RoomEvent
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	events chan event.RoomEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      events,
		sinkTimeout: sinkTimeout,
	}
}

// Add registers sinks that receive every event regardless of room.
func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.permanentSinks = append(w.permanentSinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fan-out")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every interested sink.
func (w *EventFanout) Fanout(ctx context.Context, evt event.RoomEvent) {
	sinks := w.registry.GetSinksForRoom(evt.RoomID())
	sinks = append(sinks, w.permanentSinks...)

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Debug("Sink dropped event", "room", evt.RoomID(), "error", err)
		}
		cancel()
	}
}
