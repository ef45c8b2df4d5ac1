package sidebar

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"chatdeck/internal/data/embedded"
	"chatdeck/internal/logger"
	"chatdeck/pkg/chattypes"
)

// Theme holds the lipgloss styles for everything chatdeck draws.
type Theme struct {
	Name         string
	BucketHeader lipgloss.Style
	Entry        lipgloss.Style
	ActiveEntry  lipgloss.Style
	Placeholder  lipgloss.Style
	User         lipgloss.Style
	Bot          lipgloss.Style
	Error        lipgloss.Style
	Info         lipgloss.Style
	Muted        lipgloss.Style
}

// ConfigureColorProfile drops to plain ASCII output in test mode or when NO_COLOR is set.
func ConfigureColorProfile(testMode bool) {
	if testMode || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ColorEnabled reports whether styles will emit escape sequences.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// LoadTheme returns the named embedded theme. Unknown names and broken
// theme files fall back to the plain theme.
func LoadTheme(name string) *Theme {
	var data []byte
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		data = embedded.DefaultThemeData
	case "plain":
		data = embedded.PlainThemeData
	default:
		logger.Debug("Invalid theme requested, using plain theme", "theme", name)
		return PlainTheme()
	}

	theme, err := ParseTheme(data)
	if err != nil {
		logger.Error("Failed to load theme", "theme", name, "error", err)
		return PlainTheme()
	}
	return theme
}

// ParseTheme decodes a theme YAML document into styles.
func ParseTheme(data []byte) (*Theme, error) {
	var cfg chattypes.ThemeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}

	s := cfg.Styles
	return &Theme{
		Name:         cfg.Name,
		BucketHeader: createStyle(s.BucketHeader),
		Entry:        createStyle(s.Entry),
		ActiveEntry:  createStyle(s.ActiveEntry),
		Placeholder:  createStyle(s.Placeholder),
		User:         createStyle(s.User),
		Bot:          createStyle(s.Bot),
		Error:        createStyle(s.Error),
		Info:         createStyle(s.Info),
		Muted:        createStyle(s.Muted),
	}, nil
}

// PlainTheme has no colors or decorations.
func PlainTheme() *Theme {
	plain := lipgloss.NewStyle()
	return &Theme{
		Name:         "plain",
		BucketHeader: plain,
		Entry:        plain,
		ActiveEntry:  plain,
		Placeholder:  plain,
		User:         plain,
		Bot:          plain,
		Error:        plain,
		Info:         plain,
		Muted:        plain,
	}
}

func createStyle(cfg chattypes.StyleConfig) lipgloss.Style {
	style := lipgloss.NewStyle()

	if color := parseColor(cfg.Foreground); color != nil {
		style = style.Foreground(color)
	}
	if color := parseColor(cfg.Background); color != nil {
		style = style.Background(color)
	}

	if cfg.Bold != nil && *cfg.Bold {
		style = style.Bold(true)
	}
	if cfg.Italic != nil && *cfg.Italic {
		style = style.Italic(true)
	}
	if cfg.Underline != nil && *cfg.Underline {
		style = style.Underline(true)
	}
	if cfg.Strikethrough != nil && *cfg.Strikethrough {
		style = style.Strikethrough(true)
	}
	return style
}

// parseColor accepts a color string or a {light, dark} map.
func parseColor(value interface{}) lipgloss.TerminalColor {
	switch v := value.(type) {
	case string:
		return lipgloss.Color(v)
	case map[string]interface{}:
		light, hasLight := v["light"].(string)
		dark, hasDark := v["dark"].(string)
		if hasLight && hasDark {
			return lipgloss.AdaptiveColor{Light: light, Dark: dark}
		}
		return nil
	default:
		return nil
	}
}
