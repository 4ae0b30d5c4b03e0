// Package ws drives one experiment engine per websocket connection. Clients
// send serialised actions and receive the resulting state after each one.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"labbench/internal/core"
	"labbench/pkg/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Message types sent to the client.
const (
	TypeState = "state"
	TypeError = "error"
)

// Message is the server-to-client envelope. Error messages carry the
// unchanged state so renderers can resynchronise.
type Message struct {
	Type    string     `json:"type"`
	Session string     `json:"session,omitempty"`
	State   core.State `json:"state"`
	Error   string     `json:"error,omitempty"`
}

// Catalog resolves experiment definitions by name.
type Catalog interface {
	Lookup(name string) (domain.ExperimentConfig, bool)
}

// SessionTracker counts live connections (satisfied by the Prometheus
// recorder).
type SessionTracker interface {
	SessionOpened()
	SessionClosed()
}

// Server upgrades HTTP requests of the form
// GET /ws?experiment=<name>[&session=<id>] into engine sessions.
type Server struct {
	Catalog Catalog
	// Store enables resume and autosave for requests carrying a session id.
	Store core.SessionStore
	// EngineOptions returns per-session engine options such as logger and
	// metrics recorder.
	EngineOptions func(exp domain.ExperimentConfig, sessionID string) []core.EngineOption
	Tracker       SessionTracker
	Logger        core.Logger

	upgrader websocket.Upgrader
}

// NewServer constructs a websocket server.
func NewServer(c Catalog, store core.SessionStore, logger core.Logger) *Server {
	if logger == nil {
		logger = discard{}
	}
	return &Server{
		Catalog: c,
		Store:   store,
		Logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("experiment")
	cfg, ok := s.Catalog.Lookup(name)
	if !ok {
		http.Error(w, "unknown experiment "+name, http.StatusNotFound)
		return
	}
	sessionID := r.URL.Query().Get("session")
	var opts []core.EngineOption
	if s.EngineOptions != nil {
		opts = s.EngineOptions(cfg, sessionID)
	}
	if sessionID != "" {
		opts = append(opts, core.WithSessionID(sessionID))
	}
	engine, err := core.NewEngine(cfg, opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	state := engine.View()
	if sessionID != "" && s.Store != nil {
		resumed, err := core.ResumeSession(r.Context(), s.Store, sessionID, engine)
		switch {
		case err == nil:
			state = resumed
		case errors.Is(err, domain.ErrSessionNotFound):
		default:
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if s.Tracker != nil {
		s.Tracker.SessionOpened()
		defer s.Tracker.SessionClosed()
	}
	s.Logger.Info("session opened", "experiment", cfg.ID, "session", sessionID)
	s.run(r.Context(), conn, engine, sessionID, state)
	s.Logger.Info("session closed", "experiment", cfg.ID, "session", sessionID)
}

// run owns the connection: the read loop applies actions in order while a
// ticker keeps the connection alive.
func (s *Server) run(ctx context.Context, conn *websocket.Conn, engine *core.Engine, sessionID string, state core.State) {
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	out := make(chan Message, 16)
	done := make(chan struct{})
	go s.writePump(conn, out, done)
	defer func() {
		close(out)
		<-done
	}()

	out <- Message{Type: TypeState, Session: sessionID, State: state}
	for {
		var action core.Action
		if err := conn.ReadJSON(&action); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.Logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		st, err := engine.Apply(ctx, action)
		if err != nil {
			out <- Message{Type: TypeError, Session: sessionID, State: st, Error: err.Error()}
			continue
		}
		if sessionID != "" && s.Store != nil && mutates(action.Op) {
			if err := core.SaveSession(ctx, s.Store, sessionID, engine); err != nil {
				s.Logger.Error("autosave failed", "session", sessionID, "error", err)
			}
		}
		out <- Message{Type: TypeState, Session: sessionID, State: st}
	}
}

func (s *Server) writePump(conn *websocket.Conn, out <-chan Message, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.Logger.Debug("websocket write failed", "error", err)
				_ = conn.Close()
				// drain so the reader never blocks on a dead connection
				for range out {
				}
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				for range out {
				}
				return
			}
		}
	}
}

func mutates(op core.ActionOp) bool {
	return op != core.OpView
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
