// Package session holds the authoritative, in-memory list of chat sessions and the active-session pointer.
// Every mutation is written through to a Persister before the operation returns.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chatdeck/internal/logger"
	"chatdeck/internal/testutils"
	"chatdeck/pkg/chattypes"
)

// ErrNotFound is returned when an operation names a session the store does not hold.
var ErrNotFound = errors.New("session not found")

// Persister is the durable side of the store.
// Load must never fail: unreadable data comes back as an empty collection.
type Persister interface {
	Load() (sessions []chattypes.Session, lastActiveID string)
	Save(sessions []chattypes.Session, lastActiveID string) error
}

// EventKind names the mutation an Event reports.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventSelected EventKind = "selected"
	EventAppended EventKind = "appended"
	EventDeleted  EventKind = "deleted"
)

// Event describes a completed mutation.
type Event struct {
	Kind      EventKind
	SessionID string
}

// Listener receives events after the store lock is released, so it may read the store.
type Listener func(Event)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the session id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store owns the session list (newest first) and the active pointer.
type Store struct {
	mu        sync.Mutex
	persister Persister
	now       func() time.Time
	newID     func() string

	sessions []*chattypes.Session
	activeID string

	// dirty is set when the last durable write failed; the next mutation rewrites everything.
	dirty      bool
	persistErr error

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Open loads the persisted sessions and makes sure one of them is active:
// the last active session if it still exists, otherwise the newest one,
// otherwise a freshly created session.
func Open(persister Persister, opts ...Option) *Store {
	s := &Store{
		persister: persister,
		now:       time.Now,
		newID:     testutils.NewIDGenerator(false),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, lastActiveID := persister.Load()
	for i := range loaded {
		session := loaded[i].Clone()
		s.sessions = append(s.sessions, &session)
	}
	logger.Debug("Session store opened", "sessions", len(s.sessions), "last_active", lastActiveID)

	if len(s.sessions) == 0 {
		s.CreateSession()
		return s
	}

	if _, err := s.SelectSession(lastActiveID); err != nil {
		if _, err := s.SelectSession(s.sessions[0].ID); err != nil {
			// Unreachable: sessions is non-empty
			s.CreateSession()
		}
	}
	return s
}

// Subscribe registers a listener for every completed mutation.
func (s *Store) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// CreateSession inserts a fresh session at the front, makes it active and persists. It never fails.
func (s *Store) CreateSession() chattypes.Session {
	s.mu.Lock()
	created := s.createLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, SessionID: created.ID})
	return created
}

// SelectSession makes id the active session.
// On ErrNotFound nothing changes; callers wanting an always-active store use SelectOrCreate.
func (s *Store) SelectSession(id string) (chattypes.Session, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return chattypes.Session{}, fmt.Errorf("select %q: %w", id, ErrNotFound)
	}
	s.activeID = id
	selected := s.sessions[idx].Clone()
	s.persistLocked()
	s.mu.Unlock()

	logger.StoreOperation("select", id)
	s.notify(Event{Kind: EventSelected, SessionID: id})
	return selected, nil
}

// SelectOrCreate selects id, creating a fresh session when id is unknown.
func (s *Store) SelectOrCreate(id string) chattypes.Session {
	selected, err := s.SelectSession(id)
	if err == nil {
		return selected
	}
	logger.Warn("Session not found, starting a new chat", "session", id)
	return s.CreateSession()
}

// AppendMessage adds msg to the named session. The first user message replaces the placeholder title.
func (s *Store) AppendMessage(sessionID string, msg chattypes.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("append to %q: invalid role %q", sessionID, msg.Role)
	}

	s.mu.Lock()
	idx := s.indexLocked(sessionID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("append to %q: %w", sessionID, ErrNotFound)
	}

	session := s.sessions[idx]
	if msg.Role == chattypes.RoleUser && session.NeedsTitle() {
		session.Title = chattypes.DeriveTitle(msg.Text)
	}
	session.Messages = append(session.Messages, msg)
	s.persistLocked()
	s.mu.Unlock()

	logger.StoreOperation("append", sessionID, "role", msg.Role)
	s.notify(Event{Kind: EventAppended, SessionID: sessionID})
	return nil
}

// DeleteSession removes id. Deleting the active session selects the newest
// remaining one, or creates a new session when none remain. Unknown ids are a no-op.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		logger.StoreOperation("delete-missing", id)
		return
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)

	events := []Event{{Kind: EventDeleted, SessionID: id}}
	if s.activeID == id {
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
			events = append(events, Event{Kind: EventSelected, SessionID: s.activeID})
		} else {
			created := s.createLocked()
			events = append(events, Event{Kind: EventCreated, SessionID: created.ID})
		}
	}
	s.persistLocked()
	s.mu.Unlock()

	logger.StoreOperation("delete", id)
	for _, e := range events {
		s.notify(e)
	}
}

// Sessions returns copies of all sessions, newest first.
func (s *Store) Sessions() []chattypes.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chattypes.Session, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = session.Clone()
	}
	return out
}

// Get returns a copy of the named session.
func (s *Store) Get(id string) (chattypes.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return chattypes.Session{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return s.sessions[idx].Clone(), nil
}

// Active returns a copy of the active session.
func (s *Store) Active() chattypes.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(s.activeID)
	if idx < 0 {
		// Only possible on a zero Store that was never opened
		return chattypes.Session{}
	}
	return s.sessions[idx].Clone()
}

// ActiveID returns the active session id.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PersistErr returns the error of the last failed durable write, or nil once a write succeeds again.
func (s *Store) PersistErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

// Flush retries the durable write when the previous one failed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.persistLocked()
	return s.persistErr
}

func (s *Store) createLocked() chattypes.Session {
	session := &chattypes.Session{
		ID:        s.uniqueIDLocked(),
		Title:     chattypes.UntitledTitle,
		Messages:  []chattypes.Message{chattypes.BotMessage(chattypes.GreetingText)},
		CreatedAt: s.now(),
	}
	s.sessions = append([]*chattypes.Session{session}, s.sessions...)
	s.activeID = session.ID

	logger.StoreOperation("create", session.ID)
	return session.Clone()
}

// uniqueIDLocked draws ids until one is unused. Generators are expected to be unique already.
func (s *Store) uniqueIDLocked() string {
	for {
		id := s.newID()
		if id != "" && s.indexLocked(id) < 0 {
			return id
		}
	}
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the full state. Failures are logged and remembered; the
// in-memory state stays authoritative and the next mutation retries.
func (s *Store) persistLocked() {
	snapshot := make([]chattypes.Session, len(s.sessions))
	for i, session := range s.sessions {
		snapshot[i] = session.Clone()
	}

	if err := s.persister.Save(snapshot, s.activeID); err != nil {
		s.dirty = true
		s.persistErr = err
		logger.Error("Failed to persist sessions", "error", err, "sessions", len(snapshot))
		return
	}
	if s.dirty {
		logger.Info("Session persistence recovered")
	}
	s.dirty = false
	s.persistErr = nil
}

func (s *Store) notify(e Event) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}
