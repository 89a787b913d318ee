// Package observability aggregates engine metrics for logging and the
// health monitor.
package observability

import (
	"context"
	"sync/atomic"

	"realtalk/domain/event"
)

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	SendsAdmitted   uint64 `json:"sends_admitted"`
	SendsRejected   uint64 `json:"sends_rejected"`
	EventsFannedOut uint64 `json:"events_fanned_out"`
	ActiveSessions  int64  `json:"active_sessions"`
}

// Counters tracks engine activity with atomic counters so the hot path
// never takes a lock.
type Counters struct {
	sendsAdmitted   atomic.Uint64
	sendsRejected   atomic.Uint64
	eventsFannedOut atomic.Uint64
	activeSessions  atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncrSendAdmitted() { c.sendsAdmitted.Add(1) }
func (c *Counters) IncrSendRejected() { c.sendsRejected.Add(1) }
func (c *Counters) IncrSessions()     { c.activeSessions.Add(1) }
func (c *Counters) DecrSessions()     { c.activeSessions.Add(-1) }

func (c *Counters) Snapshot() Stats {
	return Stats{
		SendsAdmitted:   c.sendsAdmitted.Load(),
		SendsRejected:   c.sendsRejected.Load(),
		EventsFannedOut: c.eventsFannedOut.Load(),
		ActiveSessions:  c.activeSessions.Load(),
	}
}

// EventCounterSink is a permanent fan-out sink counting every delivered
// event.
type EventCounterSink struct {
	counters *Counters
}

func NewEventCounterSink(counters *Counters) *EventCounterSink {
	return &EventCounterSink{counters: counters}
}

func (s *EventCounterSink) Consume(_ context.Context, _ event.RoomEvent) error {
	s.counters.eventsFannedOut.Add(1)
	return nil
}
