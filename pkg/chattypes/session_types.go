// Package chattypes defines session and conversation types for chatdeck.
// This file contains the core types for chat sessions, their messages and the
// rules that govern session titles.
package chattypes

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks a message typed by the user.
	RoleUser Role = "user"
	// RoleBot marks a message produced by the assistant, including diagnostics.
	RoleBot Role = "bot"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

const (
	// UntitledTitle is the placeholder title a session carries until the first user message.
	UntitledTitle = "New Chat"

	// GreetingText seeds every new session.
	GreetingText = "Hello! I'm your AI assistant. How can I help you today?"

	// TitleMaxLength is the number of characters kept when deriving a title.
	TitleMaxLength = 30

	// TitleEllipsis is appended to derived titles that were truncated.
	TitleEllipsis = "..."
)

// Message represents a single entry in a session transcript.
// Messages are immutable once appended.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"message"`
}

// UserMessage builds a message authored by the user.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// BotMessage builds a message authored by the assistant.
func BotMessage(text string) Message {
	return Message{Role: RoleBot, Text: text}
}

// Session represents one conversation thread.
type Session struct {
	ID        string    // Unique, assigned at creation
	Title     string    // UntitledTitle until the first user message
	Messages  []Message // Append order
	CreatedAt time.Time // Fixed at creation, drives history grouping
}

// IsUntitled reports whether the session still carries the placeholder title.
func (s Session) IsUntitled() bool {
	return s.Title == UntitledTitle
}

// IsPristine reports whether the session was never used: placeholder title and
// only the seeded greeting.
func (s Session) IsPristine() bool {
	return s.IsUntitled() && len(s.Messages) == 1 && s.Messages[0].Role == RoleBot
}

// HasUserMessage reports whether the user has written in the session.
func (s Session) HasUserMessage() bool {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// NeedsTitle reports whether the next user message should derive the title.
// The title is derived once, even when the derived text equals UntitledTitle.
func (s Session) NeedsTitle() bool {
	return s.IsUntitled() && !s.HasUserMessage()
}

// LastBotMessage returns the newest assistant message.
func (s Session) LastBotMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleBot {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (s Session) Clone() Session {
	c := s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// DeriveTitle turns the first user message into a session title.
// Text longer than TitleMaxLength characters is cut and suffixed with TitleEllipsis.
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= TitleMaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleMaxLength]) + TitleEllipsis
}

// Persona is the name/prompt pair that shapes the assistant's behavior.
// Prompt is sent as the request preamble.
type Persona struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// IsBlank reports whether either field is missing after trimming.
func (p Persona) IsBlank() bool {
	return strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Prompt) == ""
}
