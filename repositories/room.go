//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtalk/domain"
	"realtalk/errors"
)

type IRoomRepository interface {
	Save(room domain.Room) error
	Get(roomID uuid.UUID) (domain.Room, error)
	List() ([]domain.Room, error)
}

// RoomRepository persists room records under "room:{room_id}" keys.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

type diskRoom struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Visibility   string    `json:"visibility"`
	PasswordHash []byte    `json:"password_hash,omitempty"`
	OwnerID      string    `json:"owner_id"`
	OwnerName    string    `json:"owner_name"`
	CreatedAt    int64     `json:"created_at"`
}

func roomKey(roomID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("room:%s", roomID))
}

func (r *RoomRepository) Save(room domain.Room) error {
	bytes, err := json.Marshal(fromRoom(room))
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), bytes)
	})
	if err != nil {
		return errors.TransientStoreError{Op: "save room", Err: err}
	}
	return nil
}

func (r *RoomRepository) Get(roomID uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(roomID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var dr diskRoom
			if err := json.Unmarshal(value, &dr); err != nil {
				return err
			}
			room = toRoom(dr)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.NotFoundError{Entity: "room", ID: roomID.String()}
	}
	if err != nil {
		return domain.Room{}, errors.TransientStoreError{Op: "get room", Err: err}
	}
	return room, nil
}

// List returns every known room, creation order not guaranteed.
func (r *RoomRepository) List() ([]domain.Room, error) {
	var disk []diskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("room:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var dr diskRoom
				if err := json.Unmarshal(value, &dr); err != nil {
					return err
				}
				disk = append(disk, dr)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.TransientStoreError{Op: "list rooms", Err: err}
	}
	return lo.Map(disk, func(dr diskRoom, _ int) domain.Room {
		return toRoom(dr)
	}), nil
}

func fromRoom(room domain.Room) diskRoom {
	return diskRoom{
		ID:           room.ID,
		Name:         room.Name,
		Description:  room.Description,
		Visibility:   string(room.Visibility),
		PasswordHash: room.PasswordHash,
		OwnerID:      room.OwnerID,
		OwnerName:    room.OwnerName,
		CreatedAt:    room.CreatedAt.UnixNano(),
	}
}

func toRoom(dr diskRoom) domain.Room {
	return domain.Room{
		ID:           dr.ID,
		Name:         dr.Name,
		Description:  dr.Description,
		Visibility:   domain.Visibility(dr.Visibility),
		PasswordHash: dr.PasswordHash,
		OwnerID:      dr.OwnerID,
		OwnerName:    dr.OwnerName,
		CreatedAt:    time.Unix(0, dr.CreatedAt).UTC(),
	}
}
