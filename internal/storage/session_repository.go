package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatdeck/internal/logger"
	"chatdeck/pkg/chattypes"
)

// messageRecord is the persisted form of a message.
type messageRecord struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// sessionRecord is the persisted form of a session. Timestamp is unix milliseconds.
type sessionRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []messageRecord `json:"messages"`
	Timestamp int64           `json:"timestamp"`
}

// sessionDocument is the value stored under KeySessions.
type sessionDocument struct {
	Sessions            []sessionRecord `json:"sessions"`
	LastActiveSessionID string          `json:"lastActiveSessionId"`
}

// SessionRepository persists the session collection and the last-active pointer in a KV.
type SessionRepository struct {
	kv KV
}

// NewSessionRepository creates a repository over kv.
func NewSessionRepository(kv KV) *SessionRepository {
	return &SessionRepository{kv: kv}
}

// Load returns the stored sessions (newest first) and the last active id.
// Absent, empty or malformed data yields an empty collection; records that
// fail validation are dropped individually.
func (r *SessionRepository) Load() ([]chattypes.Session, string) {
	raw, found, err := r.kv.Get(KeySessions)
	if err != nil {
		logger.Error("Failed to read sessions, starting with no history", "error", err)
		return nil, ""
	}

	var doc storedDocument
	if found {
		doc, err = decodeSessionDocument(raw)
		if err != nil {
			logger.Warn("Stored sessions are malformed, starting with no history", "error", err)
			return nil, ""
		}
	}

	sessions := make([]chattypes.Session, 0, len(doc.Sessions))
	seen := make(map[string]bool, len(doc.Sessions))
	for i, item := range doc.Sessions {
		var rec sessionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			logger.Warn("Dropping undecodable stored session", "index", i, "error", err)
			continue
		}
		session, err := rec.toSession()
		if err != nil {
			logger.Warn("Dropping invalid stored session", "index", i, "error", err)
			continue
		}
		if seen[session.ID] {
			logger.Warn("Dropping duplicate stored session", "session", session.ID)
			continue
		}
		seen[session.ID] = true
		sessions = append(sessions, session)
	}

	lastActive := doc.lastActiveID()
	if lastActive == "" {
		if v, ok, err := r.kv.Get(KeyLastActive); err == nil && ok {
			lastActive = strings.TrimSpace(string(v))
		}
	}

	logger.Debug("Sessions loaded", "count", len(sessions), "last_active", lastActive)
	return sessions, lastActive
}

// Save writes the whole collection and the last active id.
func (r *SessionRepository) Save(sessions []chattypes.Session, lastActiveID string) error {
	doc := sessionDocument{
		Sessions:            make([]sessionRecord, 0, len(sessions)),
		LastActiveSessionID: lastActiveID,
	}
	for _, s := range sessions {
		doc.Sessions = append(doc.Sessions, recordFromSession(s))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := r.kv.Set(KeySessions, data); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}

	if lastActiveID == "" {
		if err := r.kv.Delete(KeyLastActive); err != nil {
			return fmt.Errorf("failed to clear last active session: %w", err)
		}
		return nil
	}
	if err := r.kv.Set(KeyLastActive, []byte(lastActiveID)); err != nil {
		return fmt.Errorf("failed to write last active session: %w", err)
	}
	return nil
}

// ExportSession encodes one session in the persisted record layout, indented for reading.
func ExportSession(s chattypes.Session) ([]byte, error) {
	data, err := json.MarshalIndent(recordFromSession(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

// storedDocument is sessionDocument with each record left raw for per-record decoding.
type storedDocument struct {
	Sessions            []json.RawMessage `json:"sessions"`
	LastActiveSessionID json.RawMessage   `json:"lastActiveSessionId"`
}

func (d storedDocument) lastActiveID() string {
	var id string
	if len(d.LastActiveSessionID) == 0 || json.Unmarshal(d.LastActiveSessionID, &id) != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// decodeSessionDocument accepts the current document layout and the bare array older builds stored.
func decodeSessionDocument(raw []byte) (storedDocument, error) {
	var doc storedDocument

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return doc, nil
	}

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &doc.Sessions); err != nil {
			return storedDocument{}, fmt.Errorf("decode session array: %w", err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return storedDocument{}, fmt.Errorf("decode session document: %w", err)
		}
	default:
		return storedDocument{}, fmt.Errorf("unexpected session data starting with %q", trimmed[0])
	}
	return doc, nil
}

func (rec sessionRecord) toSession() (chattypes.Session, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return chattypes.Session{}, fmt.Errorf("session has no id")
	}
	if len(rec.Messages) == 0 {
		return chattypes.Session{}, fmt.Errorf("session %s has no messages", rec.ID)
	}

	messages := make([]chattypes.Message, 0, len(rec.Messages))
	for _, m := range rec.Messages {
		role := chattypes.Role(m.Role)
		if !role.Valid() {
			return chattypes.Session{}, fmt.Errorf("session %s has message with unknown role %q", rec.ID, m.Role)
		}
		messages = append(messages, chattypes.Message{Role: role, Text: m.Message})
	}

	title := rec.Title
	if title == "" {
		title = chattypes.UntitledTitle
	}

	return chattypes.Session{
		ID:        rec.ID,
		Title:     title,
		Messages:  messages,
		CreatedAt: time.UnixMilli(rec.Timestamp),
	}, nil
}

func recordFromSession(s chattypes.Session) sessionRecord {
	rec := sessionRecord{
		ID:        s.ID,
		Title:     s.Title,
		Messages:  make([]messageRecord, 0, len(s.Messages)),
		Timestamp: s.CreatedAt.UnixMilli(),
	}
	for _, m := range s.Messages {
		rec.Messages = append(rec.Messages, messageRecord{Role: string(m.Role), Message: m.Text})
	}
	return rec
}
