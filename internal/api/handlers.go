package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-docsync/internal/server"
	"github.com/npezzotti/go-docsync/internal/types"
)

const requestTimeout = 5 * time.Second

func (s *DocSyncApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DocSyncApp) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *DocSyncApp) roomState(w http.ResponseWriter, r *http.Request) (server.RoomState, bool) {
	roomId := r.PathValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return server.RoomState{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	state, err := s.ss.RoomState(ctx, roomId)
	if err != nil {
		s.log.Printf("room state %q: %v", roomId, err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return server.RoomState{}, false
	}

	return state, true
}

func (s *DocSyncApp) getDocument(w http.ResponseWriter, r *http.Request) {
	state, ok := s.roomState(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, state.Document)
}

func (s *DocSyncApp) getDocumentUsers(w http.ResponseWriter, r *http.Request) {
	state, ok := s.roomState(w, r)
	if !ok {
		return
	}

	users := state.Users
	if users == nil {
		users = []types.UserInfo{}
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *DocSyncApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients send no origin
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *DocSyncApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	query := r.URL.Query()
	username, ok := Username(r.Context())
	if !ok {
		username = query.Get("username")
	}
	if username == "" {
		username = defaultUsername
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:       query.Get("userId"),
		Username: username,
	}, roomId, conn, s.ss, s.log)

	s.ss.RegisterClient(client)
	go client.Write()
	go client.Read()
}
