package domain

import "time"

// PresenceTTL is how long a participant stays "online" after their last
// heartbeat.
const PresenceTTL = 2 * time.Minute

// PresenceEntry maps a (room, user) pair to the last heartbeat observed.
// Entries are never deleted eagerly; staleness is purely time-derived and
// filtered at read time.
type PresenceEntry struct {
	User          Snapshot
	LastHeartbeat time.Time
}

// OnlineAt reports whether the entry is still fresh under the given TTL.
func (p PresenceEntry) OnlineAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastHeartbeat) < ttl
}
