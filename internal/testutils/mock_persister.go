package testutils

import (
	"errors"
	"sync"

	"chatdeck/pkg/chattypes"
)

// ErrMockSave is returned by MockPersister when a failure has been injected.
var ErrMockSave = errors.New("mock persister: save failed")

// MockPersister implements the session store's persister in memory for testing
type MockPersister struct {
	mu           sync.Mutex
	sessions     []chattypes.Session
	lastActiveID string

	saves    int
	failNext int // number of upcoming Save calls that should fail
}

// NewMockPersister creates a persister preloaded with the given sessions.
func NewMockPersister(sessions []chattypes.Session, lastActiveID string) *MockPersister {
	m := &MockPersister{lastActiveID: lastActiveID}
	m.sessions = cloneAll(sessions)
	return m
}

// Load implements the persister contract.
func (m *MockPersister) Load() ([]chattypes.Session, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.sessions), m.lastActiveID
}

// Save implements the persister contract.
func (m *MockPersister) Save(sessions []chattypes.Session, lastActiveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.failNext > 0 {
		m.failNext--
		return ErrMockSave
	}
	m.sessions = cloneAll(sessions)
	m.lastActiveID = lastActiveID
	return nil
}

// FailNextSaves makes the next n Save calls fail.
func (m *MockPersister) FailNextSaves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// SaveCount returns how many times Save was called.
func (m *MockPersister) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Snapshot returns what was last durably saved.
func (m *MockPersister) Snapshot() ([]chattypes.Session, string) {
	return m.Load()
}

func cloneAll(sessions []chattypes.Session) []chattypes.Session {
	out := make([]chattypes.Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}
