package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"chatdeck/internal/logger"
)

// FileKV keeps every key in a single JSON document on disk.
// The whole document is rewritten atomically on each change.
type FileKV struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	closed bool
}

// NewFileKV opens (or prepares) the document at path.
// A missing file is an empty store. A file that does not decode is moved aside
// to <path>.corrupt and the store starts empty.
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	f := &FileKV{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("Storage file not found, starting empty", "path", path)
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		return f, nil
	}

	if err := json.Unmarshal(data, &f.values); err != nil || f.values == nil {
		logger.Warn("Storage file is corrupt, starting empty", "path", path, "error", err)
		f.values = make(map[string]string)
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			logger.Warn("Failed to move corrupt storage file aside", "path", path, "error", renameErr)
		}
	}

	return f, nil
}

// Path returns the document location.
func (f *FileKV) Path() string {
	return f.path
}

// Get implements KV.
func (f *FileKV) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// Set implements KV.
func (f *FileKV) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	previous, had := f.values[key]
	f.values[key] = string(value)
	if err := f.flushLocked(); err != nil {
		if had {
			f.values[key] = previous
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

// Delete implements KV.
func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	previous, had := f.values[key]
	if !had {
		return nil
	}
	delete(f.values, key)
	if err := f.flushLocked(); err != nil {
		f.values[key] = previous
		return err
	}
	return nil
}

// Close implements KV.
func (f *FileKV) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// flushLocked writes the document through a temp file and rename so readers never see a partial write.
func (f *FileKV) flushLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp storage file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close storage file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}

	logger.Debug("Storage file written", "path", f.path, "bytes", len(data))
	return nil
}
