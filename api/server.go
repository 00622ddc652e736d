package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/llinks/callSignaler/pkg/signaling"
)

// ClientUIDHeader carries the calling client's user id on every request.
// Identity issuance itself is out of scope; the header is trusted as-is.
const ClientUIDHeader = "X-Client-UID"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes a signaling.Store over HTTP, with WebSocket push for the
// two watch queries. It is the LAN stand-in for the hosted document store
// the original deployment leaned on.
type Server struct {
	store signaling.Store
	mux   *http.ServeMux
}

// NewServer wraps store with the HTTP surface.
func NewServer(store signaling.Store) *Server {
	s := &Server{
		store: store,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP lets Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /chats/{chat}/calls", s.createCall)
	s.mux.HandleFunc("GET /chats/{chat}/calls/watch", s.watchIncoming)
	s.mux.HandleFunc("GET /chats/{chat}/calls/{id}", s.getCall)
	s.mux.HandleFunc("PATCH /chats/{chat}/calls/{id}", s.updateCall)
	s.mux.HandleFunc("POST /chats/{chat}/calls/{id}/candidates/{side}", s.addCandidate)
	s.mux.HandleFunc("GET /chats/{chat}/calls/{id}/watch", s.watchCall)
}

func (s *Server) createCall(w http.ResponseWriter, r *http.Request) {
	var rec signaling.CallRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	id, err := s.store.CreateCall(r.Context(), r.PathValue("chat"), &rec)
	if err != nil {
		slog.Error("Failed to create call record", "error", err)
		http.Error(w, "Failed to create call record", http.StatusInternalServerError)
		return
	}

	stored, err := s.store.GetCall(r.Context(), r.PathValue("chat"), id)
	if err != nil {
		slog.Error("Failed to read back call record", "call_id", id, "error", err)
		http.Error(w, "Failed to read call record", http.StatusInternalServerError)
		return
	}

	slog.Info("Call created", "chat", r.PathValue("chat"), "call_id", id, "from", stored.FromUID, "to", stored.ToUID)
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) getCall(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetCall(r.Context(), r.PathValue("chat"), r.PathValue("id"))
	if err != nil {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateCall(w http.ResponseWriter, r *http.Request) {
	var update signaling.CallUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateCall(r.Context(), r.PathValue("chat"), r.PathValue("id"), update); err != nil {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addCandidate(w http.ResponseWriter, r *http.Request) {
	side := signaling.CandidateSide(r.PathValue("side"))
	if side != signaling.OfferCandidates && side != signaling.AnswerCandidates {
		http.Error(w, "Unknown candidate side", http.StatusBadRequest)
		return
	}
	var cand signaling.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.store.AddCandidate(r.Context(), r.PathValue("chat"), r.PathValue("id"), side, cand); err != nil {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// watchCall upgrades to a WebSocket and pushes full record snapshots: the
// current state right away (store contract), then one per change until the
// client goes away.
func (s *Server) watchCall(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	msgs := make(chan any, 16)
	done := make(chan struct{})
	sub, err := s.store.WatchCall(r.Context(), r.PathValue("chat"), r.PathValue("id"), func(rec *signaling.CallRecord) {
		select {
		case msgs <- rec:
		case <-done:
		}
	})
	if err != nil {
		slog.Error("Failed to watch call", "call_id", r.PathValue("id"), "error", err)
		conn.Close()
		return
	}

	s.pump(conn, sub, msgs, done)
}

// watchIncoming upgrades to a WebSocket and pushes one notification per
// newly-ringing call addressed to the requested uid.
func (s *Server) watchIncoming(w http.ResponseWriter, r *http.Request) {
	toUID := r.URL.Query().Get("toUid")
	if toUID == "" {
		http.Error(w, "Missing toUid", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	msgs := make(chan any, 16)
	done := make(chan struct{})
	sub, err := s.store.WatchIncoming(r.Context(), r.PathValue("chat"), toUID, func(inc signaling.IncomingCall) {
		select {
		case msgs <- inc:
		case <-done:
		}
	})
	if err != nil {
		slog.Error("Failed to watch incoming calls", "to", toUID, "error", err)
		conn.Close()
		return
	}

	s.pump(conn, sub, msgs, done)
}

// pump writes notifications to the socket until the peer disconnects, then
// releases the subscription. The read loop exists only to observe the
// close; clients never send data.
func (s *Server) pump(conn *websocket.Conn, sub signaling.Subscription, msgs <-chan any, done chan struct{}) {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		close(done)
		sub.Unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case msg := <-msgs:
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("Watch client went away", "error", err)
				return
			}
		case <-closed:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}
