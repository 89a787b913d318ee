package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtalk/contract"
	"realtalk/domain"
	"realtalk/domain/event"
	rterrors "realtalk/errors"
	"realtalk/moderation"
	"realtalk/presence"
	"realtalk/ratelimit"
	"realtalk/repositories"
)

type stubBanReader struct {
	state domain.BanState
}

func (s *stubBanReader) GetBanState(context.Context, string) (domain.BanState, error) {
	return s.state, nil
}

type workerFixture struct {
	worker  *RoomWorker
	room    domain.Room
	bans    *stubBanReader
	limiter *ratelimit.Limiter
	tracker *presence.Tracker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	req := require.New(t)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	censor, err := moderation.NewCensor([]string{"zut"}, '*')
	req.NoError(err)
	bans := &stubBanReader{state: domain.BanState{Kind: domain.BanNone}}
	limiter := ratelimit.NewLimiter(time.Second, 10*time.Second, 5)
	tracker := presence.NewTracker(2 * time.Minute)

	room, err := domain.NewRoom("lobby", "", domain.VisibilityPublic, "",
		"alice", "Alice", time.Now().UTC())
	req.NoError(err)

	worker := NewRoomWorker(room, make(chan Request), make(chan event.RoomEvent, 16),
		moderation.NewGate(bans), &censor, limiter, tracker,
		repositories.NewMessageRepository(db, slog.Default()),
		domain.MaxBodyLength, contract.SystemClock{}, slog.Default())

	return &workerFixture{worker: worker, room: room, bans: bans, limiter: limiter, tracker: tracker}
}

func alice() domain.Snapshot {
	return domain.Snapshot{UserID: "alice", DisplayName: "Alice"}
}

func Test_Send_Appends_And_Emits_Message_And_Presence(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)

	msg, evts, err := f.worker.handle(context.Background(), domain.SendMessage{
		Room:   f.room.ID,
		Author: alice(),
		Body:   "hello there",
	})
	req.NoError(err)
	req.Equal("hello there", msg.Body)
	req.Len(evts, 2)
	req.IsType(event.MessageAdded{}, evts[0])
	req.IsType(event.PresenceChanged{}, evts[1])

	// a send counts as sign of life
	req.Len(f.tracker.ActiveSet(f.room.ID, time.Now().UTC()), 1)
}

func Test_Send_Masks_Forbidden_Words_Before_Append(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)

	msg, _, err := f.worker.handle(context.Background(), domain.SendMessage{
		Room:   f.room.ID,
		Author: alice(),
		Body:   "oh zut alors",
	})
	req.NoError(err)
	// the log only ever sees the masked body
	req.Equal("oh *** alors", msg.Body)
}

func Test_Banned_User_Is_Rejected_On_Every_Mutation(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	f.bans.state = domain.BanState{Kind: domain.BanPermanent}
	ctx := context.Background()

	commands := []domain.Command{
		domain.SendMessage{Room: f.room.ID, Author: alice(), Body: "hi"},
		domain.EditMessage{Room: f.room.ID, MessageID: uuid.New(), UserID: "alice", NewBody: "hi"},
		domain.DeleteMessage{Room: f.room.ID, MessageID: uuid.New(), UserID: "alice"},
		domain.React{Room: f.room.ID, MessageID: uuid.New(), UserID: "alice", Emoji: domain.EmojiFire, Add: true},
	}
	for _, cmd := range commands {
		_, evts, err := f.worker.handle(ctx, cmd)
		var permErr rterrors.PermissionError
		req.True(stderrors.As(err, &permErr))
		req.ErrorIs(err, rterrors.ErrBanned)
		req.Empty(evts)
	}

	// the ban gate runs before rate limiting, so no budget was consumed
	f.bans.state = domain.BanState{Kind: domain.BanNone}
	_, _, err := f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "finally",
	})
	req.NoError(err)
}

func Test_Banned_User_May_Still_Heartbeat(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	f.bans.state = domain.BanState{Kind: domain.BanPermanent}

	// reading presence is not a mutation, a ban does not hide the user
	_, evts, err := f.worker.handle(context.Background(), domain.Heartbeat{
		Room: f.room.ID,
		User: alice(),
	})
	req.NoError(err)
	req.Len(evts, 1)
	req.IsType(event.PresenceChanged{}, evts[0])
}

func Test_Oversize_Body_Fails_Validation_Without_Consuming_Rate_Budget(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	ctx := context.Background()

	_, _, err := f.worker.handle(ctx, domain.SendMessage{
		Room:   f.room.ID,
		Author: alice(),
		Body:   strings.Repeat("a", domain.MaxBodyLength+1),
	})
	var valErr rterrors.ValidationError
	req.True(stderrors.As(err, &valErr))
	req.ErrorIs(err, rterrors.ErrBodyTooLong)

	// the rejected send never reached the limiter: an immediate valid
	// send is not blocked by the cooldown
	_, _, err = f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: strings.Repeat("a", domain.MaxBodyLength),
	})
	req.NoError(err)
}

func Test_Empty_Body_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)

	_, _, err := f.worker.handle(context.Background(), domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "   ",
	})
	req.ErrorIs(err, rterrors.ErrEmptyBody)
}

func Test_Rate_Limited_Send_Is_Not_Appended(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	ctx := context.Background()

	_, _, err := f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "first",
	})
	req.NoError(err)

	_, evts, err := f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "second",
	})
	var rated rterrors.RateLimitedError
	req.True(stderrors.As(err, &rated))
	req.Equal(rterrors.RateLimitCooldown, rated.Kind)
	req.Empty(evts)
}

func Test_Invalid_Emoji_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	ctx := context.Background()

	msg, _, err := f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "react to me",
	})
	req.NoError(err)

	_, _, err = f.worker.handle(ctx, domain.React{
		Room: f.room.ID, MessageID: msg.ID, UserID: "bob", Emoji: "🤡", Add: true,
	})
	req.ErrorIs(err, rterrors.ErrInvalidEmoji)
}

func Test_Idempotent_React_Publishes_Nothing(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	ctx := context.Background()

	msg, _, err := f.worker.handle(ctx, domain.SendMessage{
		Room: f.room.ID, Author: alice(), Body: "react to me",
	})
	req.NoError(err)

	_, evts, err := f.worker.handle(ctx, domain.React{
		Room: f.room.ID, MessageID: msg.ID, UserID: "bob", Emoji: domain.EmojiFire, Add: true,
	})
	req.NoError(err)
	req.Len(evts, 1)

	// the second identical add changes nothing and stays silent
	_, evts, err = f.worker.handle(ctx, domain.React{
		Room: f.room.ID, MessageID: msg.ID, UserID: "bob", Emoji: domain.EmojiFire, Add: true,
	})
	req.NoError(err)
	req.Empty(evts)
}
