package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/models"
)

var ErrNoSession = errors.New("no websocket session")

type conn interface {
	WriteJSON(v any) error
	Close() error
}

// WSSession is one connected user.
type WSSession struct {
	conn conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry keeps at most one session per user; a new connection replaces the old one.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger.With("component", "ws")}
}

func (r *WSRegistry) Add(userID string, c *websocket.Conn) {
	r.add(userID, c)
}

func (r *WSRegistry) add(userID string, c conn) *WSSession {
	s := &WSSession{conn: c}
	r.mu.Lock()
	old := r.sessions[userID]
	r.sessions[userID] = s
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
	return s
}

// Remove drops userID's session if it is still the one given.
func (r *WSRegistry) Remove(userID string, c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn(c) {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Notify(_ context.Context, userID string, ev models.MatchEvent) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(NewNotification(userID, ev)); err != nil {
		r.logger.Warn("ws send failed", "user", userID, "err", err)
		return err
	}
	return nil
}
