//go:generate go run go.uber.org/mock/mockgen -source=gate.go -destination=../mocks/mock_ban_reader.go -package=mocks
package moderation

import (
	"context"
	"time"

	"realtalk/domain"
	"realtalk/errors"
)

// BanReader is the read side of the moderation store. The write side
// (SetBanState) belongs to the admin surface, not the engine.
type BanReader interface {
	GetBanState(ctx context.Context, userID string) (domain.BanState, error)
}

// Gate answers "may this user mutate room state right now". It is
// consulted on every send, edit, delete, and react because ban state can
// change between actions.
type Gate struct {
	bans BanReader
}

func NewGate(bans BanReader) Gate {
	return Gate{bans: bans}
}

// CheckCanAct returns nil when the user may act, a PermissionError with a
// retry-after hint for temporary bans, and a plain PermissionError for
// permanent ones. Store failures surface as retryable errors.
func (g Gate) CheckCanAct(ctx context.Context, userID string, now time.Time) error {
	state, err := g.bans.GetBanState(ctx, userID)
	if err != nil {
		return errors.TransientStoreError{Op: "get ban state", Err: err}
	}
	if !state.ActiveAt(now) {
		return nil
	}
	return errors.PermissionError{
		Reason:     errors.ErrBanned,
		RetryAfter: state.RemainingAt(now),
	}
}
