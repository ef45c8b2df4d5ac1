// Package storage provides the durable key-value layer chatdeck keeps its sessions and settings in.
// Backends store opaque byte values under string keys; repositories on top give those bytes meaning.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"chatdeck/internal/logger"
)

// Keys used in every backend.
const (
	KeySessions      = "chatSessions"
	KeyLastActive    = "last-active-chat-session"
	KeyAPIKey        = "cohere-api-key"
	KeyPersonaName   = "ai-name"
	KeyPersonaPrompt = "ai-prompt"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage closed")

// KV is a durable key-value store.
// Get reports a missing key with found == false and a nil error.
type KV interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Open creates the named backend rooted at dir.
func Open(backend, dir string) (KV, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileKV(filepath.Join(dir, "store.json"))
	case BackendSQLite:
		return NewSQLiteKV(filepath.Join(dir, "store.db"))
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected %s, %s or %s)", backend, BackendFile, BackendSQLite, BackendMemory)
	}
}

// OpenOrMemory opens the named backend and degrades to an in-memory store when it cannot be opened.
// History is then lost on exit, but the shell stays usable.
func OpenOrMemory(backend, dir string) KV {
	kv, err := Open(backend, dir)
	if err != nil {
		logger.Error("Failed to open storage, falling back to memory", "backend", backend, "dir", dir, "error", err)
		return NewMemoryKV()
	}
	return kv
}

// MemoryKV keeps values in a map. Nothing survives the process.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements KV.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
