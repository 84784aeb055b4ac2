// Package pin tracks which policy a session started under, so a
// policy swap mid-session is detectable instead of silent.
package pin

import (
	"sync"
	"time"
)

// Pin records the policy a session was opened with.
type Pin struct {
	SessionID     string    `json:"session_id"`
	PolicyHash    string    `json:"policy_hash"`
	PolicyVersion string    `json:"policy_version"`
	PinnedAt      time.Time `json:"pinned_at"`
}

// Manager holds the live pins for one process. Safe for concurrent
// use.
type Manager struct {
	mu   sync.Mutex
	pins map[string]Pin
}

func NewManager() *Manager {
	return &Manager{pins: make(map[string]Pin)}
}

// Pin records the policy for a session, replacing any earlier pin.
func (m *Manager) Pin(sessionID, policyHash, policyVersion string) Pin {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Pin{
		SessionID:     sessionID,
		PolicyHash:    policyHash,
		PolicyVersion: policyVersion,
		PinnedAt:      time.Now().UTC(),
	}
	m.pins[sessionID] = p
	return p
}

// Get returns the pin for a session, if any.
func (m *Manager) Get(sessionID string) (Pin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[sessionID]
	return p, ok
}

// Check reports whether the session's pinned hash matches hash. An
// unpinned session is not a mismatch: matched is meaningful only when
// pinned is true.
func (m *Manager) Check(sessionID, hash string) (matched, pinned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[sessionID]
	if !ok {
		return false, false
	}
	return p.PolicyHash == hash, true
}

// Unpin drops a session's pin, typically when the session ends.
func (m *Manager) Unpin(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, sessionID)
}
