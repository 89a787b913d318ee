package workers

import (
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"

	"realtalk/contract"
	"realtalk/domain"
	"realtalk/domain/event"
	"realtalk/errors"
	"realtalk/moderation"
	"realtalk/presence"
	"realtalk/ratelimit"
	"realtalk/repositories"
)

var _ contract.Worker = (*RoomWorker)(nil)

// Request is one command plus the channel its outcome is delivered on.
// Reply must be buffered so a caller that gave up does not block the
// room worker.
type Request struct {
	Ctx   context.Context
	Cmd   domain.Command
	Reply chan Result
}

type Result struct {
	Message domain.Message
	Err     error
}

// RoomWorker is the serialization point of a single room. Every
// ordering-sensitive decision (sequence assignment, rate-limit counters)
// happens here, one command at a time; different rooms run their own
// workers fully in parallel.
//
// The send pipeline executes in a fixed order, short-circuiting on the
// first failure: ban gate, body validation, censoring, rate limiter,
// append, presence refresh, publish. No step after a failure runs, so a
// rejected command performs no partial mutation.
type RoomWorker struct {
	room     domain.Room
	commands chan Request
	events   chan event.RoomEvent
	gate     moderation.Gate
	censor   *moderation.Censor
	limiter  *ratelimit.Limiter
	tracker  *presence.Tracker
	messages repositories.IMessageRepository
	maxBody  int
	clock    contract.Clock
	log      *slog.Logger
}

func NewRoomWorker(
	room domain.Room,
	commands chan Request,
	events chan event.RoomEvent,
	gate moderation.Gate,
	censor *moderation.Censor,
	limiter *ratelimit.Limiter,
	tracker *presence.Tracker,
	messages repositories.IMessageRepository,
	maxBody int,
	clock contract.Clock,
	log *slog.Logger,
) *RoomWorker {
	return &RoomWorker{
		room:     room,
		commands: commands,
		events:   events,
		gate:     gate,
		censor:   censor,
		limiter:  limiter,
		tracker:  tracker,
		messages: messages,
		maxBody:  maxBody,
		clock:    clock,
		log:      log,
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker", "room", w.room.ID)
			return ctx.Err()
		case req, ok := <-w.commands:
			if !ok {
				return nil
			}
			msg, evts, err := w.handle(req.Ctx, req.Cmd)
			req.Reply <- Result{Message: msg, Err: err}
			for _, evt := range evts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case w.events <- evt:
				}
			}
		}
	}
}

func (w *RoomWorker) handle(ctx context.Context, cmd domain.Command) (domain.Message, []event.RoomEvent, error) {
	switch c := cmd.(type) {
	case domain.SendMessage:
		return w.send(ctx, c)
	case domain.EditMessage:
		return w.edit(ctx, c)
	case domain.DeleteMessage:
		return w.delete(ctx, c)
	case domain.React:
		return w.react(ctx, c)
	case domain.Heartbeat:
		return w.heartbeat(c)
	default:
		return domain.Message{}, nil, errors.ErrInvalidPayload
	}
}

func (w *RoomWorker) send(ctx context.Context, c domain.SendMessage) (domain.Message, []event.RoomEvent, error) {
	now := w.clock.Now()

	if err := w.gate.CheckCanAct(ctx, c.Author.UserID, now); err != nil {
		return domain.Message{}, nil, err
	}
	// Validation is cheap and fails fast without consuming rate budget.
	if err := domain.ValidateBody(c.Body, w.maxBody); err != nil {
		return domain.Message{}, nil, err
	}

	body, found := w.censor.Mask(c.Body)
	if len(found) > 0 {
		info := whatlanggo.Detect(c.Body)
		w.log.Warn("Censored message body",
			"room", c.Room,
			"author", c.Author.UserID,
			"words", len(found),
			"lang", info.Lang.Iso6391())
	}

	if err := w.limiter.Admit(c.Author.UserID, c.Room, now); err != nil {
		return domain.Message{}, nil, err
	}

	msg, err := w.messages.Append(c.Room, c.Author, body, now, c.DedupToken)
	if err != nil {
		return domain.Message{}, nil, err
	}

	// A send counts as sign of life.
	w.tracker.Heartbeat(c.Room, c.Author, now)

	return msg, []event.RoomEvent{
		event.MessageAdded{Message: msg},
		event.PresenceChanged{Room: c.Room, User: c.Author, At: now},
	}, nil
}

func (w *RoomWorker) edit(ctx context.Context, c domain.EditMessage) (domain.Message, []event.RoomEvent, error) {
	if err := w.gate.CheckCanAct(ctx, c.UserID, w.clock.Now()); err != nil {
		return domain.Message{}, nil, err
	}
	if err := domain.ValidateBody(c.NewBody, w.maxBody); err != nil {
		return domain.Message{}, nil, err
	}

	body, _ := w.censor.Mask(c.NewBody)
	msg, err := w.messages.Edit(c.Room, c.MessageID, c.UserID, body)
	if err != nil {
		return domain.Message{}, nil, err
	}
	return msg, []event.RoomEvent{event.MessageEdited{Message: msg}}, nil
}

func (w *RoomWorker) delete(ctx context.Context, c domain.DeleteMessage) (domain.Message, []event.RoomEvent, error) {
	if err := w.gate.CheckCanAct(ctx, c.UserID, w.clock.Now()); err != nil {
		return domain.Message{}, nil, err
	}
	if err := w.messages.Delete(c.Room, c.MessageID, c.UserID); err != nil {
		return domain.Message{}, nil, err
	}
	return domain.Message{}, []event.RoomEvent{
		event.MessageDeleted{Room: c.Room, MessageID: c.MessageID},
	}, nil
}

func (w *RoomWorker) react(ctx context.Context, c domain.React) (domain.Message, []event.RoomEvent, error) {
	if err := w.gate.CheckCanAct(ctx, c.UserID, w.clock.Now()); err != nil {
		return domain.Message{}, nil, err
	}
	if !c.Emoji.Valid() {
		return domain.Message{}, nil, errors.ValidationError{Reason: errors.ErrInvalidEmoji}
	}

	msg, changed, err := w.messages.React(c.Room, c.MessageID, c.UserID, c.Emoji, c.Add)
	if err != nil {
		return domain.Message{}, nil, err
	}
	if !changed {
		// Idempotent no-op: nothing to tell the subscribers.
		return msg, nil, nil
	}
	return msg, []event.RoomEvent{
		event.ReactionChanged{Message: msg, Emoji: c.Emoji, UserID: c.UserID, Added: c.Add},
	}, nil
}

func (w *RoomWorker) heartbeat(c domain.Heartbeat) (domain.Message, []event.RoomEvent, error) {
	now := w.clock.Now()
	w.tracker.Heartbeat(c.Room, c.User, now)
	return domain.Message{}, []event.RoomEvent{
		event.PresenceChanged{Room: c.Room, User: c.User, At: now},
	}, nil
}
