//go:generate go run go.uber.org/mock/mockgen -source=ban.go -destination=../mocks/mock_ban_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"realtalk/domain"
	"realtalk/errors"
)

// IBanRepository is the moderation store. The engine only reads;
// SetBanState is invoked by an external admin surface.
type IBanRepository interface {
	GetBanState(ctx context.Context, userID string) (domain.BanState, error)
	SetBanState(ctx context.Context, userID string, state domain.BanState) error
}

// BanRepository persists ban records under "ban:{user_id}" keys. A
// missing record means not banned.
type BanRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBanRepository(db *badger.DB, log *slog.Logger) *BanRepository {
	return &BanRepository{db: db, log: log}
}

type diskBan struct {
	Kind     string `json:"kind"`
	Until    int64  `json:"until,omitempty"`
	Reason   string `json:"reason,omitempty"`
	BannedBy string `json:"banned_by,omitempty"`
	BannedAt int64  `json:"banned_at,omitempty"`
}

func banKey(userID string) []byte {
	return []byte(fmt.Sprintf("ban:%s", userID))
}

func (b *BanRepository) GetBanState(_ context.Context, userID string) (domain.BanState, error) {
	var state domain.BanState
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(banKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var rec diskBan
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			state = domain.BanState{
				Kind:     domain.BanKind(rec.Kind),
				Until:    time.Unix(0, rec.Until).UTC(),
				Reason:   rec.Reason,
				BannedBy: rec.BannedBy,
				BannedAt: time.Unix(0, rec.BannedAt).UTC(),
			}
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.BanState{Kind: domain.BanNone}, nil
	}
	if err != nil {
		return domain.BanState{}, errors.TransientStoreError{Op: "get ban state", Err: err}
	}
	return state, nil
}

func (b *BanRepository) SetBanState(_ context.Context, userID string, state domain.BanState) error {
	if state.Kind == domain.BanNone {
		err := b.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(banKey(userID))
		})
		if err != nil {
			return errors.TransientStoreError{Op: "clear ban state", Err: err}
		}
		return nil
	}

	bytes, err := json.Marshal(diskBan{
		Kind:     string(state.Kind),
		Until:    state.Until.UnixNano(),
		Reason:   state.Reason,
		BannedBy: state.BannedBy,
		BannedAt: state.BannedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(banKey(userID), bytes)
	})
	if err != nil {
		return errors.TransientStoreError{Op: "set ban state", Err: err}
	}
	b.log.Info("Ban state updated", "user", userID, "kind", state.Kind)
	return nil
}
