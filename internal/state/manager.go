package state

import (
	"fmt"
	"log"
	"sync"
)

// Manager owns the live sessions, keyed by token. Sessions are independent:
// work on one never waits on another's lock.
type Manager struct {
	sessions map[string]*Session
	settings Settings
	mu       sync.RWMutex
}

// NewManager creates a manager whose new sessions use settings.
func NewManager(settings Settings) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		settings: settings,
	}
}

// SetSettings changes the settings for sessions created from now on.
func (m *Manager) SetSettings(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
}

// Settings returns the settings new sessions get.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := NewToken()
	for m.sessions[token] != nil {
		token = NewToken()
	}
	s := NewSession(token, m.settings)
	m.sessions[token] = s
	log.Printf("[session] Created %s", token)
	return s
}

// Get returns a session by token.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	return s, nil
}

// Close forgets a session. It reports whether the session existed.
func (m *Manager) Close(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return false
	}
	delete(m.sessions, token)
	log.Printf("[session] Closed %s", token)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
