// Package server exposes the chat engine over HTTP and websocket: room
// management on plain JSON endpoints, live sessions on an upgraded
// connection carrying command and event frames.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"realtalk/auth"
	"realtalk/domain"
	"realtalk/services"
)

type Server struct {
	log      *slog.Logger
	service  services.IChatService
	verifier auth.Verifier
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(log *slog.Logger, service services.IChatService, verifier auth.Verifier, addr string) *Server {
	s := &Server{
		log:      log,
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /ws", s.handleSession)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lo.Map(rooms, func(room domain.Room, _ int) WireRoom {
		return toWireRoom(room)
	}))
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err)
		return
	}

	var payload auth.RoomPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := auth.ValidateRoom(payload); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	room, err := s.service.CreateRoom(payload.Name, payload.Description,
		domain.Visibility(payload.Visibility), payload.Password, user)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toWireRoom(room))
}

// handleSession upgrades the connection and opens a session. The
// identity assertion and, for private rooms, the password come in before
// the upgrade so a rejected client never holds a websocket.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err)
		return
	}

	roomID, err := uuid.Parse(r.URL.Query().Get("room"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("room: %w", err))
		return
	}
	password := r.URL.Query().Get("password")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := newConn(conn, s.log.With("user", user.ID, "room", roomID))
	session, err := s.service.OpenSession(r.Context(), user, roomID, password, client)
	if err != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(ServerFrame{Error: toErrorPayload(err)})
		conn.Close()
		return
	}
	client.session = session

	snapshot := session.InitialSnapshot()
	client.queue(ServerFrame{Snapshot: &SnapshotPayload{
		Room: toWireRoom(session.Room()),
		Messages: lo.Map(snapshot.Messages, func(m domain.Message, _ int) WireMessage {
			return toWireMessage(m)
		}),
		Presence: lo.Map(snapshot.Presence, func(p domain.PresenceEntry, _ int) WirePresence {
			return toWirePresence(p)
		}),
	}})

	go client.writePump()
	client.readPump(context.Background())
}

// authenticate pulls the identity assertion from the Authorization
// header, or from the token query parameter for websocket clients that
// cannot set headers.
func (s *Server) authenticate(r *http.Request) (domain.User, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return s.verifier.Verify(token)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, toErrorPayload(err))
}
