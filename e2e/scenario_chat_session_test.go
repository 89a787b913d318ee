package e2e

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"realtalk/domain"
	"realtalk/server"
)

type testChatSessionSuite struct {
	BaseWsSuite
}

func TestChatSessionSuite(t *testing.T) {
	suite.Run(t, &testChatSessionSuite{})
}

func (s *testChatSessionSuite) TestFullChatSessionFlow() {
	alice := domain.User{ID: uuid.NewString(), DisplayName: "alice"}
	bob := domain.User{ID: uuid.NewString(), DisplayName: "bob"}

	var (
		room      uuid.UUID
		aliceConn *WsClient
		bobConn   *WsClient
		messageId string
	)

	s.Run("Step 0: Create room", func() {
		room = s.CreateRoom(s.Token(alice), "e2e-"+uuid.NewString()[:8])
	})

	s.Run("Step 1: Both participants subscribe and get an empty snapshot", func() {
		aliceConn = s.Connect("alice connects", alice, room)
		bobConn = s.Connect("bob connects", bob, room)
		s.Require().Empty(bobConn.Snapshot.Messages)
		s.Require().NotEmpty(bobConn.Snapshot.Presence, "alice heartbeat must be visible")
	})
	defer func() {
		if aliceConn != nil {
			aliceConn.Close()
		}
		if bobConn != nil {
			bobConn.Close()
		}
	}()

	s.Run("Step 2: A send is acked and fans out to the other participant", func() {
		aliceConn.SendFrame(server.ClientFrame{Id: 1, Send: &server.SendPayload{
			Body:       "hello from the e2e suite",
			DedupToken: uuid.NewString(),
		}})
		reply := aliceConn.WaitAck(1, 5*time.Second)
		s.Require().Nil(reply.Error)
		s.Require().NotNil(reply.Ack.Message)
		messageId = reply.Ack.Message.Id

		evt := bobConn.WaitEvent(server.EventMessageAdded, 5*time.Second)
		s.Require().Equal(messageId, evt.Message.Id)
		s.Require().Equal("hello from the e2e suite", evt.Message.Body)
	})

	s.Run("Step 3: Editing someone else's message is denied", func() {
		bobConn.SendFrame(server.ClientFrame{Id: 2, Edit: &server.EditPayload{
			MessageId: messageId,
			NewBody:   "bob was here",
		}})
		reply := bobConn.WaitAck(2, 5*time.Second)
		s.Require().NotNil(reply.Error)
		s.Require().Equal("permission_denied", reply.Error.Code)
	})

	s.Run("Step 4: Reactions toggle and fan out", func() {
		bobConn.SendFrame(server.ClientFrame{Id: 3, React: &server.ReactPayload{
			MessageId: messageId,
			Emoji:     "🔥",
			Add:       true,
		}})
		reply := bobConn.WaitAck(3, 5*time.Second)
		s.Require().Nil(reply.Error)

		evt := aliceConn.WaitEvent(server.EventReactionChanged, 5*time.Second)
		s.Require().Equal(bob.ID, evt.UserId)
		s.Require().True(evt.Added)
	})

	s.Run("Step 5: Sending faster than the cooldown is rejected with a retry hint", func() {
		// the first send eats the cooldown, the immediate second send trips it
		aliceConn.SendFrame(server.ClientFrame{Id: 4, Send: &server.SendPayload{
			Body: "first", DedupToken: uuid.NewString(),
		}})
		aliceConn.SendFrame(server.ClientFrame{Id: 5, Send: &server.SendPayload{
			Body: "second", DedupToken: uuid.NewString(),
		}})

		first := aliceConn.WaitAck(4, 5*time.Second)
		s.Require().Nil(first.Error)
		second := aliceConn.WaitAck(5, 5*time.Second)
		s.Require().NotNil(second.Error)
		s.Require().Equal("rate_limited", second.Error.Code)
		s.Require().Greater(second.Error.RetryAfterMs, int64(0))
	})

	s.Run("Step 6: Deleting own message fans out", func() {
		aliceConn.SendFrame(server.ClientFrame{Id: 6, Delete: &server.DeletePayload{
			MessageId: messageId,
		}})
		reply := aliceConn.WaitAck(6, 5*time.Second)
		s.Require().Nil(reply.Error, fmt.Sprintf("delete failed: %+v", reply.Error))

		evt := bobConn.WaitEvent(server.EventMessageDeleted, 5*time.Second)
		s.Require().Equal(messageId, evt.MessageId)
	})
}
