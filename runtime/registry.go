package runtime

import (
	"sync"

	"github.com/google/uuid"

	"realtalk/contract"
)

type Set map[uuid.UUID]struct{}

// Registry tracks which session subscribed to which room, and the sink
// its events are delivered to. Keys are session ids, never user ids: one
// user may hold several connections at once (another room, a second tab)
// and each connection is its own delivery channel.
type Registry struct {
	mu           sync.RWMutex
	sinks        map[uuid.UUID]contract.EventSink // map session -> Sink
	roomSessions map[uuid.UUID]Set                // map room -> sessions
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:        make(map[uuid.UUID]contract.EventSink),
		roomSessions: make(map[uuid.UUID]Set),
	}
}

// GetSinksForRoom retrieves all active communication channels for a specific room.
// It performs a two-step lookup:
// 1. Identifies session IDs associated with the room via roomSessions.
// 2. Resolves those IDs into actual EventSinks using the sinks map.
//
// Returns nil if the room doesn't exist or has no subscribed sessions.
func (r *Registry) GetSinksForRoom(roomID uuid.UUID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.roomSessions[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for sessionID := range sessions {
		if sink, exists := r.sinks[sessionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers a session's connection and assigns it to a room.
// If the room is not yet known it is initialized on the fly.
func (r *Registry) Subscribe(sessionID, roomID uuid.UUID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[sessionID] = sink

	if _, ok := r.roomSessions[roomID]; !ok {
		r.roomSessions[roomID] = make(Set)
	}
	r.roomSessions[roomID][sessionID] = struct{}{}
}

// Unsubscribe removes a session from the registry and its room. Other
// sessions of the same user are untouched. Empty session sets are
// removed entirely to prevent slow growth over the lifetime of the
// process.
func (r *Registry) Unsubscribe(sessionID, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, sessionID)

	if sessions, ok := r.roomSessions[roomID]; ok {
		delete(sessions, sessionID)

		if len(sessions) == 0 {
			delete(r.roomSessions, roomID)
		}
	}
}
