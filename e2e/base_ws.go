package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"realtalk/auth"
	"realtalk/domain"
	"realtalk/server"
)

// BaseWsSuite dials a running server over websocket and issues its own
// identity assertions from the shared secret.
type BaseWsSuite struct {
	suite.Suite
	Config   Config
	verifier auth.Verifier
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end-to-end suite")
	}
	s.verifier = auth.NewVerifier([]byte(s.Config.IdentitySecret))
}

func (s *BaseWsSuite) Token(user domain.User) string {
	token, err := s.verifier.Issue(user, time.Hour)
	s.Require().NoError(err)
	return token
}

// CreateRoom provisions a room over the HTTP endpoint and returns its id.
func (s *BaseWsSuite) CreateRoom(token, name string) uuid.UUID {
	payload, err := json.Marshal(auth.RoomPayload{Name: name, Visibility: "public"})
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost,
		"http://"+s.Config.ServerAddr+"/rooms", strings.NewReader(string(payload)))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var room server.WireRoom
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&room))
	return uuid.MustParse(room.Id)
}

// WsClient is one connected participant with its received frame history.
type WsClient struct {
	suite    *BaseWsSuite
	conn     *websocket.Conn
	Snapshot *server.SnapshotPayload
}

// Connect opens a session and consumes the initial snapshot frame.
func (s *BaseWsSuite) Connect(name string, user domain.User, room uuid.UUID) *WsClient {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	u := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: "/ws"}
	q := u.Query()
	q.Set("token", s.Token(user))
	q.Set("room", room.String())
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to "+u.String())

	client := &WsClient{suite: s, conn: conn}
	frame := client.NextFrame(5 * time.Second)
	s.Require().NotNil(frame.Snapshot, "first frame must be the snapshot")
	client.Snapshot = frame.Snapshot
	return client
}

func (c *WsClient) Close() {
	_ = c.conn.Close()
}

func (c *WsClient) SendFrame(frame server.ClientFrame) {
	if c.suite.Config.DebugJSON {
		raw, _ := json.MarshalIndent(frame, "", "  ")
		c.suite.T().Log("REQUEST:\n" + string(raw))
	}
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

func (c *WsClient) NextFrame(timeout time.Duration) server.ServerFrame {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(timeout)))
	var frame server.ServerFrame
	c.suite.Require().NoError(c.conn.ReadJSON(&frame))
	if c.suite.Config.DebugJSON {
		raw, _ := json.MarshalIndent(frame, "", "  ")
		c.suite.T().Log("RESPONSE:\n" + string(raw))
	}
	return frame
}

// WaitEvent skips unrelated frames until one carries an event of the
// given kind.
func (c *WsClient) WaitEvent(kind string, timeout time.Duration) *server.EventPayload {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frame := c.NextFrame(time.Until(deadline))
		if frame.Event != nil && frame.Event.Kind == kind {
			return frame.Event
		}
	}
	c.suite.Require().FailNow("timed out waiting for event " + kind)
	return nil
}

// WaitAck skips event frames until the reply to the given command id
// arrives, returning the ack or error frame.
func (c *WsClient) WaitAck(id int, timeout time.Duration) server.ServerFrame {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frame := c.NextFrame(time.Until(deadline))
		if frame.Id == id && (frame.Ack != nil || frame.Error != nil) {
			return frame
		}
	}
	c.suite.Require().FailNow(fmt.Sprintf("timed out waiting for reply %d", id))
	return server.ServerFrame{}
}
