package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/pkg/chattypes"
)

// TestDataGenerator provides common test data
type TestDataGenerator struct{}

// NewTestDataGenerator creates a new test data generator
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{}
}

// PristineSession returns a session holding only the seeded greeting.
func (g *TestDataGenerator) PristineSession(id string, createdAt time.Time) chattypes.Session {
	return chattypes.Session{
		ID:        id,
		Title:     chattypes.UntitledTitle,
		Messages:  []chattypes.Message{chattypes.BotMessage(chattypes.GreetingText)},
		CreatedAt: createdAt,
	}
}

// TitledSession returns a session with one user exchange and the given title.
func (g *TestDataGenerator) TitledSession(id, title string, createdAt time.Time) chattypes.Session {
	return chattypes.Session{
		ID:    id,
		Title: title,
		Messages: []chattypes.Message{
			chattypes.BotMessage(chattypes.GreetingText),
			chattypes.UserMessage(title),
			chattypes.BotMessage("reply to " + title),
		},
		CreatedAt: createdAt,
	}
}

// AssertionHelpers provides common assertion patterns
type AssertionHelpers struct {
	t *testing.T
}

// NewAssertionHelpers creates assertion helpers for a test
func NewAssertionHelpers(t *testing.T) *AssertionHelpers {
	return &AssertionHelpers{t: t}
}

// AssertSessionIDs checks that sessions appear in exactly the expected order.
func (h *AssertionHelpers) AssertSessionIDs(expected []string, sessions []chattypes.Session) {
	actual := make([]string, 0, len(sessions))
	for _, s := range sessions {
		actual = append(actual, s.ID)
	}
	assert.Equal(h.t, expected, actual, "Session order should match")
}

// FileHelpers provides utilities for working with test files
type FileHelpers struct{}

// NewFileHelpers creates a new file helpers instance
func NewFileHelpers() *FileHelpers {
	return &FileHelpers{}
}

// CreateTempFile creates a temporary file with given content
func (f *FileHelpers) CreateTempFile(t *testing.T, filename, content string) string {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, filename)

	err := os.WriteFile(filePath, []byte(content), 0644)
	require.NoError(t, err, "Failed to create temp file")

	return filePath
}
