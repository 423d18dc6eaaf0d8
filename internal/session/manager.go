// ABOUTME: Tracks the set of live sessions in this process.
// ABOUTME: Add/remove are mutually exclusive; sessions themselves share nothing.

package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSessionExists indicates an Add with an ID already tracked.
var ErrSessionExists = errors.New("session already registered")

// Manager is the process-wide set of live sessions. The tool server hub
// uses it to track connected callers; the agent side typically holds one
// session but goes through the same structure.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewManager creates an empty session manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a session under its current ID.
func (m *Manager) Add(s *Session) error {
	id := s.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return ErrSessionExists
	}
	m.sessions[id] = s
	m.logger.Info("session registered",
		"session_id", id,
		"total_sessions", len(m.sessions),
	)
	return nil
}

// Remove drops a session from the set. Unknown IDs are a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		delete(m.sessions, id)
		m.logger.Info("session removed",
			"session_id", id,
			"total_sessions", len(m.sessions),
		)
	}
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every tracked session and empties the set. Used on
// shutdown after draining.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
