package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtalk/domain"
	"realtalk/domain/event"
	"realtalk/errors"
	"realtalk/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 256
)

// Conn binds one websocket to one session. The read pump turns client
// frames into session commands; the write pump drains the outbound
// channel fed by the fan-out and by command replies.
type Conn struct {
	conn    *websocket.Conn
	session *services.Session
	log     *slog.Logger
	send    chan ServerFrame
	stop    chan struct{}
	once    sync.Once
}

func newConn(conn *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		conn: conn,
		log:  log,
		send: make(chan ServerFrame, sendBufferSize),
		stop: make(chan struct{}),
	}
}

// Consume implements contract.EventSink. Delivery into the outbound
// buffer is bounded by the fan-out's per-sink timeout; a client that
// cannot drain fast enough loses the event rather than stalling the room.
func (c *Conn) Consume(ctx context.Context, evt event.RoomEvent) error {
	payload := toEventPayload(evt)
	if payload == nil {
		return nil
	}
	select {
	case c.send <- ServerFrame{Event: payload}:
		return nil
	case <-c.stop:
		return errors.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) queue(frame ServerFrame) {
	select {
	case c.send <- frame:
	case <-c.stop:
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.stop)
		if c.session != nil {
			c.session.Close()
		}
	})
}

// writePump owns the websocket for writing: outbound frames and the
// keepalive pings both go through here.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			bytes, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("Failed to serialize frame", "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// readPump turns inbound frames into session commands. It exits on the
// first read error, which also tears the session down.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.queue(ServerFrame{Error: &ErrorPayload{Code: "invalid", Detail: "malformed frame"}})
			continue
		}
		c.handle(ctx, frame)
	}
}

func (c *Conn) handle(ctx context.Context, frame ClientFrame) {
	switch {
	case frame.Send != nil:
		msg, err := c.session.Send(ctx, frame.Send.Body, frame.Send.DedupToken)
		c.reply(frame.Id, msg, err, true)
	case frame.Edit != nil:
		id, err := parseMessageId(frame.Edit.MessageId)
		if err == nil {
			var msg domain.Message
			msg, err = c.session.Edit(ctx, id, frame.Edit.NewBody)
			c.reply(frame.Id, msg, err, true)
			return
		}
		c.reply(frame.Id, domain.Message{}, err, false)
	case frame.Delete != nil:
		id, err := parseMessageId(frame.Delete.MessageId)
		if err == nil {
			err = c.session.Delete(ctx, id)
		}
		c.reply(frame.Id, domain.Message{}, err, false)
	case frame.React != nil:
		id, err := parseMessageId(frame.React.MessageId)
		if err == nil {
			var msg domain.Message
			msg, err = c.session.React(ctx, id, domain.Emoji(frame.React.Emoji), frame.React.Add)
			c.reply(frame.Id, msg, err, true)
			return
		}
		c.reply(frame.Id, domain.Message{}, err, false)
	case frame.Heartbeat != nil:
		err := c.session.Heartbeat(ctx)
		c.reply(frame.Id, domain.Message{}, err, false)
	default:
		c.reply(frame.Id, domain.Message{}, errors.ValidationError{Reason: errors.ErrInvalidPayload}, false)
	}
}

func (c *Conn) reply(id int, msg domain.Message, err error, withMessage bool) {
	if err != nil {
		c.queue(ServerFrame{Id: id, Error: toErrorPayload(err)})
		return
	}
	ack := &AckPayload{}
	if withMessage {
		wire := toWireMessage(msg)
		ack.Message = &wire
	}
	c.queue(ServerFrame{Id: id, Ack: ack})
}

func parseMessageId(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ValidationError{Reason: fmt.Errorf("message_id: %w", err)}
	}
	return id, nil
}
