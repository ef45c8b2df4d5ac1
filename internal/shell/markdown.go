package shell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"chatdeck/internal/logger"
)

// MarkdownRenderer renders bot replies for the terminal with glamour.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer wrapping at width. Plain mode uses the
// notty style so output carries no escape sequences.
func NewMarkdownRenderer(width int, plain bool) (*MarkdownRenderer, error) {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}

	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &MarkdownRenderer{renderer: renderer}, nil
}

// Render returns the rendered reply. Rendering failures fall back to the raw text.
func (m *MarkdownRenderer) Render(markdown string) string {
	if m == nil || m.renderer == nil || strings.TrimSpace(markdown) == "" {
		return markdown
	}

	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		logger.Debug("Markdown rendering failed, printing raw text", "error", err)
		return markdown
	}
	return strings.Trim(rendered, "\n")
}
