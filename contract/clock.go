package contract

import "time"

// Clock abstracts the time source so cooldowns, rate windows, and
// presence expiry are testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
