//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtalk/domain"
	"realtalk/errors"
)

type IMessageRepository interface {
	Append(roomID uuid.UUID, author domain.Snapshot, body string, now time.Time, dedupToken string) (domain.Message, error)
	Get(roomID, messageID uuid.UUID) (domain.Message, error)
	Edit(roomID, messageID uuid.UUID, userID, newBody string) (domain.Message, error)
	Delete(roomID, messageID uuid.UUID, userID string) error
	React(roomID, messageID uuid.UUID, userID string, emoji domain.Emoji, add bool) (domain.Message, bool, error)
	Recent(roomID uuid.UUID, limit int) ([]domain.Message, error)
}

// roomSeq is the per-room logical clock. Seq increases by one per append;
// the timestamp is seeded from wall time but never goes backwards, even
// if the wall clock does. Each room carries its own lock so appends to
// different rooms never serialize against each other.
type roomSeq struct {
	mu     sync.Mutex
	seeded bool
	seq    uint64
	lastAt time.Time
}

// MessageRepository is the append-only ordered log of messages, backed by
// BadgerDB.
//
// Keys are formatted as "msg:{room_id}:{seq_padded}" to ensure the
// room's append order equals lexicographical key order (20-digit zero
// padding). A secondary index "idx:{room_id}:{message_id}" supports point
// lookups by message identity for edit, delete, and react.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu   sync.Mutex
	seqs map[uuid.UUID]*roomSeq
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, seqs: make(map[uuid.UUID]*roomSeq)}
}

type diskMessage struct {
	ID        uuid.UUID                 `json:"id"`
	Room      uuid.UUID                 `json:"room"`
	Seq       uint64                    `json:"seq"`
	AuthorID  string                    `json:"author_id"`
	Author    string                    `json:"author"`
	PhotoRef  string                    `json:"photo_ref"`
	Body      string                    `json:"body"`
	At        int64                     `json:"at"` // unix nanoseconds
	Edited    bool                      `json:"edited"`
	Reactions map[domain.Emoji][]string `json:"reactions,omitempty"`
}

type dedupRecord struct {
	Token     string    `json:"token"`
	MessageID uuid.UUID `json:"message_id"`
}

func msgKey(roomID uuid.UUID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", roomID, seq))
}

func idxKey(roomID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:%s:%s", roomID, messageID))
}

func dedupKey(roomID uuid.UUID, authorID string) []byte {
	return []byte(fmt.Sprintf("dedup:%s:%s", roomID, authorID))
}

// Append assigns the next sequence number and a monotonic timestamp, then
// persists the message and its id index atomically. When dedupToken
// matches the author's previous token for this room, the already-appended
// message is returned instead of appending twice, which makes retries
// after a transient failure safe.
func (m *MessageRepository) Append(roomID uuid.UUID, author domain.Snapshot, body string, now time.Time, dedupToken string) (domain.Message, error) {
	seq := m.roomSeq(roomID)
	seq.mu.Lock()
	defer seq.mu.Unlock()

	if dedupToken != "" {
		if prev, ok, err := m.findDedup(roomID, author.UserID, dedupToken); err != nil {
			return domain.Message{}, errors.TransientStoreError{Op: "dedup lookup", Err: err}
		} else if ok {
			m.log.Debug("Duplicate send suppressed", "room", roomID, "author", author.UserID)
			return prev, nil
		}
	}

	if err := m.advance(seq, roomID, now); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		Seq:       seq.seq,
		Author:    author,
		Body:      body,
		CreatedAt: seq.lastAt,
		Reactions: make(map[domain.Emoji]domain.UserSet),
	}

	bytes, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(roomID, msg.Seq), bytes); err != nil {
			return err
		}
		if err := txn.Set(idxKey(roomID, msg.ID), seqBytes(msg.Seq)); err != nil {
			return err
		}
		if dedupToken == "" {
			return nil
		}
		record, err := json.Marshal(dedupRecord{Token: dedupToken, MessageID: msg.ID})
		if err != nil {
			return err
		}
		return txn.Set(dedupKey(roomID, author.UserID), record)
	})
	if err != nil {
		// The logical clock already advanced; a gap in seq numbers is
		// harmless as long as order is preserved.
		return domain.Message{}, errors.TransientStoreError{Op: "append", Err: err}
	}
	return msg, nil
}

// Get returns a single message by identity.
func (m *MessageRepository) Get(roomID, messageID uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = m.lookup(txn, roomID, messageID)
		return err
	})
	return msg, err
}

// Edit replaces the body and sets the edited flag. The identifier,
// sequence, and creation timestamp are immutable.
func (m *MessageRepository) Edit(roomID, messageID uuid.UUID, userID, newBody string) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		msg, seq, err := m.lookup(txn, roomID, messageID)
		if err != nil {
			return err
		}
		if msg.Author.UserID != userID {
			return errors.PermissionError{Reason: errors.ErrNotOwner}
		}
		msg.Body = newBody
		msg.Edited = true
		bytes, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(roomID, seq), bytes); err != nil {
			return err
		}
		updated = msg
		return nil
	})
	return updated, err
}

// Delete removes the message and its index entry. The deletion must be
// observable as "gone" by every subsequent reader; Badger's transaction
// gives us that atomically.
func (m *MessageRepository) Delete(roomID, messageID uuid.UUID, userID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		msg, seq, err := m.lookup(txn, roomID, messageID)
		if err != nil {
			return err
		}
		if msg.Author.UserID != userID {
			return errors.PermissionError{Reason: errors.ErrNotOwner}
		}
		if err := txn.Delete(msgKey(roomID, seq)); err != nil {
			return err
		}
		return txn.Delete(idxKey(roomID, messageID))
	})
}

// React toggles the user's membership in the emoji's reaction set.
// Adding twice or removing an absent reaction are no-op successes; the
// returned bool tells the caller whether anything actually changed.
func (m *MessageRepository) React(roomID, messageID uuid.UUID, userID string, emoji domain.Emoji, add bool) (domain.Message, bool, error) {
	var (
		updated domain.Message
		changed bool
	)
	err := m.db.Update(func(txn *badger.Txn) error {
		msg, seq, err := m.lookup(txn, roomID, messageID)
		if err != nil {
			return err
		}

		has := msg.ReactedBy(userID, emoji)
		if add == has {
			updated = msg
			return nil
		}

		if add {
			set, ok := msg.Reactions[emoji]
			if !ok {
				set = make(domain.UserSet)
				msg.Reactions[emoji] = set
			}
			set.Add(userID)
		} else {
			msg.Reactions[emoji].Remove(userID)
			if len(msg.Reactions[emoji]) == 0 {
				delete(msg.Reactions, emoji)
			}
		}

		bytes, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(roomID, seq), bytes); err != nil {
			return err
		}
		updated = msg
		changed = true
		return nil
	})
	return updated, changed, err
}

// Recent retrieves the newest `limit` messages of a room using a reverse
// prefix scan, then returns them oldest-first so the result is a suffix
// of the room's append order.
func (m *MessageRepository) Recent(roomID uuid.UUID, limit int) ([]domain.Message, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", roomID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible sequence, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.TransientStoreError{Op: "recent", Err: err}
	}

	messages := make([]domain.Message, 0, len(raw))
	// The scan was newest-first; reverse while decoding.
	for i := len(raw) - 1; i >= 0; i-- {
		var dm diskMessage
		if err := json.Unmarshal(raw[i], &dm); err != nil {
			return nil, err
		}
		messages = append(messages, toMessage(dm))
	}
	return messages, nil
}

// roomSeq returns the room's clock, creating it on first touch. The
// repository lock covers only this map access.
func (m *MessageRepository) roomSeq(roomID uuid.UUID) *roomSeq {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seqs[roomID]
	if !ok {
		s = &roomSeq{}
		m.seqs[roomID] = s
	}
	return s
}

// advance moves the room's logical clock one step, seeding it from the
// durable log on first use so a restart never reuses a sequence number.
// The room's lock must be held.
func (m *MessageRepository) advance(s *roomSeq, roomID uuid.UUID, now time.Time) error {
	if !s.seeded {
		lastSeq, lastAt, err := m.lastEntry(roomID)
		if err != nil {
			return errors.TransientStoreError{Op: "seed sequence", Err: err}
		}
		s.seq, s.lastAt, s.seeded = lastSeq, lastAt, true
	}

	s.seq++
	// Strictly increasing timestamps: no two messages of one room may
	// share one, even when appends land within the clock's resolution.
	if now.After(s.lastAt) {
		s.lastAt = now
	} else {
		s.lastAt = s.lastAt.Add(time.Nanosecond)
	}
	return nil
}

// lastEntry reads the highest-sequence message of a room from disk.
func (m *MessageRepository) lastEntry(roomID uuid.UUID) (uint64, time.Time, error) {
	var (
		lastSeq uint64
		lastAt  time.Time
	)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", roomID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		key := string(it.Item().Key())
		seqPart := key[strings.LastIndex(key, ":")+1:]
		seq, err := strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return err
		}
		lastSeq = seq
		return it.Item().Value(func(value []byte) error {
			var dm diskMessage
			if err := json.Unmarshal(value, &dm); err != nil {
				return err
			}
			lastAt = time.Unix(0, dm.At).UTC()
			return nil
		})
	})
	return lastSeq, lastAt, err
}

// lookup resolves a message id to its record via the secondary index.
func (m *MessageRepository) lookup(txn *badger.Txn, roomID, messageID uuid.UUID) (domain.Message, uint64, error) {
	item, err := txn.Get(idxKey(roomID, messageID))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, 0, errors.NotFoundError{Entity: "message", ID: messageID.String()}
	}
	if err != nil {
		return domain.Message{}, 0, errors.TransientStoreError{Op: "index lookup", Err: err}
	}

	var seq uint64
	if err := item.Value(func(value []byte) error {
		parsed, err := strconv.ParseUint(string(value), 10, 64)
		seq = parsed
		return err
	}); err != nil {
		return domain.Message{}, 0, err
	}

	item, err = txn.Get(msgKey(roomID, seq))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, 0, errors.NotFoundError{Entity: "message", ID: messageID.String()}
	}
	if err != nil {
		return domain.Message{}, 0, errors.TransientStoreError{Op: "message lookup", Err: err}
	}

	var msg domain.Message
	err = item.Value(func(value []byte) error {
		var dm diskMessage
		if err := json.Unmarshal(value, &dm); err != nil {
			return err
		}
		msg = toMessage(dm)
		return nil
	})
	return msg, seq, err
}

// findDedup returns the previously appended message when the author's
// last dedup token for this room matches.
func (m *MessageRepository) findDedup(roomID uuid.UUID, authorID, token string) (domain.Message, bool, error) {
	var record dedupRecord
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dedupKey(roomID, authorID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	if record.Token != token {
		return domain.Message{}, false, nil
	}

	msg, err := m.Get(roomID, record.MessageID)
	if err != nil {
		// The original message may have been deleted since; treat the
		// retry as a fresh send.
		return domain.Message{}, false, nil
	}
	return msg, true, nil
}

func seqBytes(seq uint64) []byte {
	return []byte(strconv.FormatUint(seq, 10))
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:       msg.ID,
		Room:     msg.RoomID,
		Seq:      msg.Seq,
		AuthorID: msg.Author.UserID,
		Author:   msg.Author.DisplayName,
		PhotoRef: msg.Author.PhotoRef,
		Body:     msg.Body,
		At:       msg.CreatedAt.UnixNano(),
		Edited:   msg.Edited,
		Reactions: lo.MapValues(msg.Reactions, func(set domain.UserSet, _ domain.Emoji) []string {
			return lo.Keys(set)
		}),
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:        dm.ID,
		RoomID:    dm.Room,
		Seq:       dm.Seq,
		Author:    domain.Snapshot{UserID: dm.AuthorID, DisplayName: dm.Author, PhotoRef: dm.PhotoRef},
		Body:      dm.Body,
		CreatedAt: time.Unix(0, dm.At).UTC(),
		Edited:    dm.Edited,
		Reactions: lo.MapValues(dm.Reactions, func(users []string, _ domain.Emoji) domain.UserSet {
			set := make(domain.UserSet, len(users))
			for _, u := range users {
				set.Add(u)
			}
			return set
		}),
	}
}
