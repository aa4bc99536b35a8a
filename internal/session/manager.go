// Package session serves the chat WebSocket. Each connected tab gets a
// Session owning one chat Controller and one push Registrar.
package session

import (
	"log/slog"
	"sync"
)

// Manager tracks active sessions by device and tab.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]*Session
	logger *slog.Logger
}

// NewManager creates an empty session manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active: make(map[string]map[string]*Session),
		logger: logger,
	}
}

// Get returns the active session for a device and tab.
func (m *Manager) Get(deviceID, sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[deviceID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a session, closing any session it replaces.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[s.DeviceID]; !exists {
		m.active[s.DeviceID] = make(map[string]*Session)
	}

	if existing, exists := m.active[s.DeviceID][s.SessionID]; exists && existing != s {
		existing.Close("session replaced")
	}

	m.active[s.DeviceID][s.SessionID] = s
	m.logger.Info("Chat session registered", "session_id", s.SessionID)
}

// Unregister removes s if it is still the registered session for its tab.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[s.DeviceID]
	if !ok {
		return
	}
	if current, exists := sessions[s.SessionID]; exists && current == s {
		delete(sessions, s.SessionID)
		if len(sessions) == 0 {
			delete(m.active, s.DeviceID)
		}
		m.logger.Info("Chat session unregistered", "session_id", s.SessionID)
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Broadcast sends v to every active session. Failed sends are logged.
func (m *Manager) Broadcast(v any) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.active))
	for _, sessions := range m.active {
		for _, s := range sessions {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(v); err != nil {
			m.logger.Debug("Broadcast failed", "session_id", s.SessionID, "error", err)
		}
	}
}

// ShellActivated tells every page that a new app shell generation is active.
// It has the shell.ClaimFunc signature.
func (m *Manager) ShellActivated(generation string) {
	m.Broadcast(serverMessage{Type: MsgShellActivated, Generation: generation})
}

// CloseAll ends every active session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sessions := range m.active {
		for _, s := range sessions {
			s.Close("server shutting down")
		}
	}
	m.active = make(map[string]map[string]*Session)
}
