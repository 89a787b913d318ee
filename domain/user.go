package domain

import "time"

// BanKind is the moderation status of a user.
type BanKind string

const (
	BanNone      BanKind = "none"
	BanTemporary BanKind = "temporary"
	BanPermanent BanKind = "permanent"
)

// BanState is owned by the moderation surface; the engine only reads it.
type BanState struct {
	Kind     BanKind
	Until    time.Time // meaningful for BanTemporary only
	Reason   string
	BannedBy string
	BannedAt time.Time
}

// ActiveAt reports whether the ban still gates activity at the given time.
// An expired temporary ban no longer blocks, even before the record is
// cleared by an admin.
func (b BanState) ActiveAt(now time.Time) bool {
	switch b.Kind {
	case BanPermanent:
		return true
	case BanTemporary:
		return now.Before(b.Until)
	default:
		return false
	}
}

// RemainingAt returns how long a temporary ban still lasts, zero for
// anything else.
func (b BanState) RemainingAt(now time.Time) time.Duration {
	if b.Kind != BanTemporary || !now.Before(b.Until) {
		return 0
	}
	return b.Until.Sub(now)
}

// User is provisioned by the identity provider; the engine never creates one.
type User struct {
	ID          string
	DisplayName string
	PhotoRef    string
}

// Snapshot freezes the user's display identity for messages and presence.
func (u User) Snapshot() Snapshot {
	return Snapshot{UserID: u.ID, DisplayName: u.DisplayName, PhotoRef: u.PhotoRef}
}
