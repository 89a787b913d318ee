// Package errors defines the error taxonomy of the chat engine.
// Every rejected command maps to exactly one of these categories so
// callers can decide between retrying, refreshing, or giving up.
package errors

import (
	"fmt"
	"time"
)

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrRoomClosed     = fmt.Errorf("room worker is not running")
	ErrInvalidToken   = fmt.Errorf("identity token is invalid")
	ErrEmptyBody      = fmt.Errorf("message body is empty")
	ErrBodyTooLong    = fmt.Errorf("message body exceeds the maximum length")
	ErrInvalidEmoji   = fmt.Errorf("emoji is not part of the reaction set")
	ErrBadPassword    = fmt.Errorf("room password does not match")
	ErrNotOwner       = fmt.Errorf("user is not the author of the message")
	ErrBanned         = fmt.Errorf("user is banned")
	ErrInvalidPayload = fmt.Errorf("invalid payload")
)

// ValidationError rejects a malformed command before any state is touched.
// It is terminal for the command and never consumes rate budget.
type ValidationError struct {
	Reason error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", e.Reason)
}

func (e ValidationError) Unwrap() error { return e.Reason }

// PermissionError rejects a command the user is not allowed to perform,
// either because of a ban or because they do not own the target message.
type PermissionError struct {
	Reason error
	// RetryAfter is set for temporary bans, zero otherwise.
	RetryAfter time.Duration
}

func (e PermissionError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("permission: %v (retry after %s)", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("permission: %v", e.Reason)
}

func (e PermissionError) Unwrap() error { return e.Reason }

// RateLimitKind distinguishes the two admission gates.
type RateLimitKind string

const (
	RateLimitCooldown RateLimitKind = "cooldown"
	RateLimitBurst    RateLimitKind = "burst"
)

// RateLimitedError rejects a send that arrived too fast. The caller may
// retry once RetryAfter has elapsed.
type RateLimitedError struct {
	Kind       RateLimitKind
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %s", e.Kind, e.RetryAfter)
}

// NotFoundError reports a missing entity, typically a message deleted
// concurrently. The caller should refresh its view instead of retrying.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// TransientStoreError wraps a persistence failure that is safe to retry
// with backoff.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e TransientStoreError) Unwrap() error { return e.Err }
