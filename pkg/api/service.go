// Package api serves the operator surface: status, object and state
// queries, the command boundary and a websocket feed of state changes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/bridge"
	"github.com/ammawel/cul_bridge/pkg/objects"
	"github.com/ammawel/cul_bridge/pkg/statebus"
)

const (
	shutdownTimeout = 5 * time.Second
	writeWait       = 10 * time.Second

	defaultTelegramLimit = 50
	maxTelegramLimit     = 1000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	bridge    Bridge
	store     objects.Store
	telegrams TelegramSource
	bus       *statebus.Bus
	mux       *http.ServeMux
	log       *log.Entry
}

func New(b Bridge, store objects.Store, bus *statebus.Bus) *Server {
	s := &Server{
		bridge: b,
		store:  store,
		bus:    bus,
		mux:    http.NewServeMux(),
		log:    log.WithField("component", "api"),
	}
	s.mux.HandleFunc("GET /{$}", s.handleStatus)
	s.mux.HandleFunc("GET /latest", s.handleLatest)
	s.mux.HandleFunc("GET /api/objects", s.handleObjects)
	s.mux.HandleFunc("GET /api/states/{id}", s.handleGetState)
	s.mux.HandleFunc("PUT /api/states/{id}", s.handlePutState)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("POST /api/raw", s.handleRaw)
	s.mux.HandleFunc("GET /api/telegrams", s.handleTelegrams)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// WithTelegrams enables GET /api/telegrams.
func (s *Server) WithTelegrams(src TelegramSource) *Server {
	s.telegrams = src
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Starting CUL bridge API on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "CUL Bridge API",
		"status":  s.bridge.Status(),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	raw, at := s.bridge.Latest()
	if raw == "" {
		writeError(w, http.StatusNotFound, "No telegrams received yet")
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{
		Raw:        raw,
		ReceivedAt: at,
		Connected:  s.bridge.Status().Connected,
	})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objs, err := s.store.ListObjects(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.log.Errorf("List objects: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, objs)
}

func (s *Server) handleTelegrams(w http.ResponseWriter, r *http.Request) {
	if s.telegrams == nil {
		writeError(w, http.StatusNotFound, "raw telegram log disabled")
		return
	}
	limit := defaultTelegramLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxTelegramLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := s.telegrams.RecentTelegrams(r.Context(), limit)
	if err != nil {
		s.log.Errorf("Recent telegrams: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetState(r.Context(), r.PathValue("id"))
	if errors.Is(err, objects.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	s.writeCommandResult(w, s.bridge.SetState(r.PathValue("id"), req.Val))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var c bridge.Command
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if c.Protocol == "" || c.Housecode == "" {
		writeError(w, http.StatusBadRequest, "protocol and housecode are required")
		return
	}
	s.writeCommandResult(w, s.bridge.Command(c))
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	var req rawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	s.writeCommandResult(w, s.bridge.Raw(req.Command))
}

func (s *Server) writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, bridge.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, bridge.ErrInvalidStateID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	changes, unsubscribe := s.bus.Subscribe()

	// Send the latest raw line immediately if available
	if raw, at := s.bridge.Latest(); raw != "" {
		if err := conn.WriteJSON(statebus.Change{ID: objects.IDRawData, Val: raw, Ack: true, Timestamp: at}); err != nil {
			unsubscribe()
			conn.Close()
			return
		}
	}

	go func() {
		defer conn.Close()
		for c := range changes {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(c); err != nil {
				s.log.Debugf("WebSocket write: %v", err)
				return
			}
		}
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			unsubscribe()
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
