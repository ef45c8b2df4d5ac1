package sidebar

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

const (
	activeMarker   = "> "
	inactiveMarker = "  "
	titleTail      = "…"
)

// RenderText draws v as text no wider than width cells.
func RenderText(v View, theme *Theme, width int) string {
	if theme == nil {
		theme = PlainTheme()
	}

	if v.Empty() {
		return theme.Placeholder.Render(fit(Placeholder, width)) + "\n"
	}

	var b strings.Builder
	for i, section := range v.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(theme.BucketHeader.Render(fit(section.Name, width)))
		b.WriteString("\n")

		for _, e := range section.Entries {
			b.WriteString(renderEntry(e, theme, width))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderEntry(e Entry, theme *Theme, width int) string {
	marker := inactiveMarker
	style := theme.Entry
	if e.Active {
		marker = activeMarker
		style = theme.ActiveEntry
	}

	prefix := fmt.Sprintf("%s#%d ", marker, e.Index)
	room := width - ansi.StringWidth(prefix)
	if room < 1 {
		room = 1
	}
	return style.Render(prefix + ansi.Truncate(CleanTitle(e.Title), room, titleTail))
}

// CleanText removes terminal escape sequences and control characters from
// user-supplied text. Newlines and tabs are kept.
func CleanText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, ansi.Strip(s))
}

// CleanTitle is CleanText for a single line: line breaks and tabs become spaces.
func CleanTitle(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, CleanText(s))
}

// fit truncates s to width cells.
func fit(s string, width int) string {
	if width <= 0 {
		return s
	}
	return ansi.Truncate(s, width, titleTail)
}
