package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"realtalk/domain"
	rterrors "realtalk/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func alice() domain.Snapshot {
	return domain.Snapshot{UserID: "alice", DisplayName: "Alice"}
}

func Test_Append_Preserves_Order_And_Strictly_Increasing_Timestamps(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	// the same wall-clock instant for every append
	now := time.Now().UTC()

	var appended []domain.Message
	for i := 0; i < 5; i++ {
		msg, err := repository.Append(room, alice(), fmt.Sprintf("message %d", i), now, "")
		req.NoError(err)
		appended = append(appended, msg)
	}

	for i := 1; i < len(appended); i++ {
		req.Equal(appended[i-1].Seq+1, appended[i].Seq)
		// even with a frozen clock no two messages share a timestamp
		req.True(appended[i].CreatedAt.After(appended[i-1].CreatedAt))
	}

	fetched, err := repository.Recent(room, 10)
	req.NoError(err)
	req.Equal(lo.Map(appended, func(m domain.Message, _ int) uuid.UUID { return m.ID }),
		lo.Map(fetched, func(m domain.Message, _ int) uuid.UUID { return m.ID }))
}

func Test_Recent_Returns_The_Newest_Suffix_Oldest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		_, err := repository.Append(room, alice(), fmt.Sprintf("message %d", i), now, "")
		req.NoError(err)
	}

	fetched, err := repository.Recent(room, 3)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("message 7", fetched[0].Body)
	req.Equal("message 9", fetched[2].Body)
}

func Test_Edit_Preserves_Identity_And_Timestamp(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	now := time.Now().UTC()

	msg, err := repository.Append(room, alice(), "original", now, "")
	req.NoError(err)

	edited, err := repository.Edit(room, msg.ID, "alice", "corrected")
	req.NoError(err)
	req.Equal(msg.ID, edited.ID)
	req.Equal(msg.Seq, edited.Seq)
	req.Equal(msg.CreatedAt, edited.CreatedAt)
	req.Equal("corrected", edited.Body)
	req.True(edited.Edited)
}

func Test_Edit_By_Non_Author_Is_Denied(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()

	msg, err := repository.Append(room, alice(), "original", time.Now().UTC(), "")
	req.NoError(err)

	_, err = repository.Edit(room, msg.ID, "bob", "hijacked")
	var permErr rterrors.PermissionError
	req.True(stderrors.As(err, &permErr))
	req.ErrorIs(err, rterrors.ErrNotOwner)

	// the message is untouched
	kept, err := repository.Get(room, msg.ID)
	req.NoError(err)
	req.Equal("original", kept.Body)
}

func Test_Delete_Is_Observable_By_Subsequent_Readers(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	now := time.Now().UTC()

	msg, err := repository.Append(room, alice(), "going away", now, "")
	req.NoError(err)
	req.NoError(repository.Delete(room, msg.ID, "alice"))

	_, err = repository.Get(room, msg.ID)
	var notFound rterrors.NotFoundError
	req.True(stderrors.As(err, &notFound))

	fetched, err := repository.Recent(room, 10)
	req.NoError(err)
	req.Empty(fetched)
}

func Test_React_Toggle_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()

	msg, err := repository.Append(room, alice(), "react to me", time.Now().UTC(), "")
	req.NoError(err)

	updated, changed, err := repository.React(room, msg.ID, "bob", domain.EmojiFire, true)
	req.NoError(err)
	req.True(changed)
	req.True(updated.ReactedBy("bob", domain.EmojiFire))

	// adding twice leaves exactly one entry and reports no change
	updated, changed, err = repository.React(room, msg.ID, "bob", domain.EmojiFire, true)
	req.NoError(err)
	req.False(changed)
	req.Len(updated.Reactions[domain.EmojiFire], 1)

	// removing an absent reaction is a no-op success
	_, changed, err = repository.React(room, msg.ID, "bob", domain.EmojiHeart, false)
	req.NoError(err)
	req.False(changed)

	_, changed, err = repository.React(room, msg.ID, "bob", domain.EmojiFire, false)
	req.NoError(err)
	req.True(changed)
}

func Test_Dedup_Token_Suppresses_A_Retried_Send(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	now := time.Now().UTC()

	first, err := repository.Append(room, alice(), "exactly once", now, "token-1")
	req.NoError(err)

	// the retry returns the already appended message
	retried, err := repository.Append(room, alice(), "exactly once", now.Add(time.Second), "token-1")
	req.NoError(err)
	req.Equal(first.ID, retried.ID)

	fetched, err := repository.Recent(room, 10)
	req.NoError(err)
	req.Len(fetched, 1)

	// a new token appends normally
	second, err := repository.Append(room, alice(), "next", now.Add(2*time.Second), "token-2")
	req.NoError(err)
	req.NotEqual(first.ID, second.ID)
}

func Test_Dedup_Of_A_Deleted_Message_Appends_Fresh(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	room := uuid.New()
	now := time.Now().UTC()

	first, err := repository.Append(room, alice(), "ghost", now, "token-1")
	req.NoError(err)
	req.NoError(repository.Delete(room, first.ID, "alice"))

	// the original is gone, so the retry becomes a fresh send
	retried, err := repository.Append(room, alice(), "ghost", now.Add(time.Second), "token-1")
	req.NoError(err)
	req.NotEqual(first.ID, retried.ID)
}

func Test_Sequence_Recovers_From_The_Durable_Log(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	room := uuid.New()
	now := time.Now().UTC()

	repository := NewMessageRepository(db, slog.Default())
	last, err := repository.Append(room, alice(), "before restart", now, "")
	req.NoError(err)

	// a new repository over the same db must continue the sequence
	reopened := NewMessageRepository(db, slog.Default())
	next, err := reopened.Append(room, alice(), "after restart", now, "")
	req.NoError(err)
	req.Equal(last.Seq+1, next.Seq)
	req.True(next.CreatedAt.After(last.CreatedAt))
}

func Test_Rooms_Do_Not_Share_Sequences(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	roomA, roomB := uuid.New(), uuid.New()
	now := time.Now().UTC()

	a1, err := repository.Append(roomA, alice(), "a1", now, "")
	req.NoError(err)
	a2, err := repository.Append(roomA, alice(), "a2", now, "")
	req.NoError(err)
	b1, err := repository.Append(roomB, alice(), "b1", now, "")
	req.NoError(err)

	req.Equal(a1.Seq+1, a2.Seq)
	req.Equal(a1.Seq, b1.Seq)
}

// Appends to different rooms run in parallel; each room still hands out
// gapless unique sequences under concurrency.
func Test_Concurrent_Appends_Across_Rooms(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	roomA, roomB := uuid.New(), uuid.New()
	const perRoom = 20

	type outcome struct {
		seq uint64
		err error
	}

	var wg sync.WaitGroup
	outcomes := make(chan outcome, 2*perRoom)
	for _, room := range []uuid.UUID{roomA, roomB} {
		for i := 0; i < perRoom; i++ {
			wg.Add(1)
			go func(room uuid.UUID) {
				defer wg.Done()
				msg, err := repository.Append(room, alice(), "hello", time.Now().UTC(), "")
				outcomes <- outcome{seq: msg.Seq, err: err}
			}(room)
		}
	}
	wg.Wait()
	close(outcomes)

	// every sequence 1..perRoom was assigned exactly twice, once per room
	counts := make(map[uint64]int)
	for o := range outcomes {
		req.NoError(o.err)
		counts[o.seq]++
	}
	req.Len(counts, perRoom)
	for seq := uint64(1); seq <= perRoom; seq++ {
		req.Equal(2, counts[seq])
	}

	recent, err := repository.Recent(roomA, perRoom)
	req.NoError(err)
	req.Len(recent, perRoom)
}
