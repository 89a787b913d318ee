package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtalk/auth"
	"realtalk/contract"
	"realtalk/domain"
	"realtalk/errors"
	"realtalk/services"
)

type stubChatService struct {
	rooms   []domain.Room
	created []domain.Room
}

func (s *stubChatService) CreateRoom(name, description string, visibility domain.Visibility,
	password string, owner domain.User) (domain.Room, error) {
	room, err := domain.NewRoom(name, description, visibility, password,
		owner.ID, owner.DisplayName, time.Now().UTC())
	if err != nil {
		return domain.Room{}, err
	}
	s.created = append(s.created, room)
	return room, nil
}

func (s *stubChatService) ListRooms() ([]domain.Room, error) {
	return s.rooms, nil
}

func (s *stubChatService) OpenSession(context.Context, domain.User, uuid.UUID,
	string, contract.EventSink) (*services.Session, error) {
	return nil, errors.NotFoundError{Entity: "room", ID: "any"}
}

func newTestServer(t *testing.T, service services.IChatService) (*httptest.Server, auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier([]byte("test-secret"))
	srv := NewServer(slog.Default(), service, verifier, "localhost:0")
	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return ts, verifier
}

func bearer(t *testing.T, verifier auth.Verifier) string {
	t.Helper()
	token, err := verifier.Issue(domain.User{ID: "alice", DisplayName: "Alice"}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func Test_ListRooms_Endpoint(t *testing.T) {
	req := require.New(t)
	room, err := domain.NewRoom("lobby", "", domain.VisibilityPublic, "",
		"alice", "Alice", time.Now().UTC())
	req.NoError(err)
	ts, _ := newTestServer(t, &stubChatService{rooms: []domain.Room{room}})

	resp, err := http.Get(ts.URL + "/rooms")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var rooms []WireRoom
	req.NoError(json.NewDecoder(resp.Body).Decode(&rooms))
	req.Len(rooms, 1)
	req.Equal("lobby", rooms[0].Name)
	req.Equal(room.ID.String(), rooms[0].Id)
}

func Test_CreateRoom_Requires_An_Identity_Assertion(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestServer(t, &stubChatService{})

	resp, err := http.Post(ts.URL+"/rooms", "application/json",
		strings.NewReader(`{"name":"lobby","visibility":"public"}`))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_CreateRoom_With_A_Valid_Assertion(t *testing.T) {
	req := require.New(t)
	service := &stubChatService{}
	ts, verifier := newTestServer(t, service)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/rooms",
		strings.NewReader(`{"name":"lobby","visibility":"public"}`))
	req.NoError(err)
	httpReq.Header.Set("Authorization", bearer(t, verifier))

	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Len(service.created, 1)
	req.Equal("alice", service.created[0].OwnerID)
}

func Test_CreateRoom_Rejects_A_Malformed_Payload(t *testing.T) {
	req := require.New(t)
	ts, verifier := newTestServer(t, &stubChatService{})

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/rooms",
		strings.NewReader(`{"name":"lobby","visibility":"hidden"}`))
	req.NoError(err)
	httpReq.Header.Set("Authorization", bearer(t, verifier))

	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	var payload ErrorPayload
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))
	req.Equal("invalid", payload.Code)
}

func Test_Websocket_Upgrade_Rejects_A_Bad_Token(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestServer(t, &stubChatService{})

	resp, err := http.Get(ts.URL + "/ws?token=garbage&room=" + uuid.NewString())
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}
