package chattypes

// ThemeConfig represents a theme configuration loaded from YAML.
type ThemeConfig struct {
	// Name is the theme identifier (e.g., "default", "plain")
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Styles ThemeStyles `yaml:"styles" json:"styles"`
}

// ThemeStyles defines the styling of each element chatdeck draws.
type ThemeStyles struct {
	// BucketHeader styles the time-bucket names in the history
	BucketHeader StyleConfig `yaml:"bucket_header" json:"bucket_header"`

	// Entry styles a history entry
	Entry StyleConfig `yaml:"entry" json:"entry"`

	// ActiveEntry styles the entry of the active session
	ActiveEntry StyleConfig `yaml:"active_entry" json:"active_entry"`

	// Placeholder styles the empty-history text
	Placeholder StyleConfig `yaml:"placeholder" json:"placeholder"`

	User  StyleConfig `yaml:"user" json:"user"`
	Bot   StyleConfig `yaml:"bot" json:"bot"`
	Error StyleConfig `yaml:"error" json:"error"`
	Info  StyleConfig `yaml:"info" json:"info"`

	// Muted styles secondary text such as the typing indicator
	Muted StyleConfig `yaml:"muted" json:"muted"`
}

// StyleConfig defines the visual styling for one element.
type StyleConfig struct {
	// Foreground color - can be hex color, ANSI number, or adaptive color object
	Foreground interface{} `yaml:"foreground,omitempty" json:"foreground,omitempty"`

	// Background color - same forms as Foreground
	Background interface{} `yaml:"background,omitempty" json:"background,omitempty"`

	Bold          *bool `yaml:"bold,omitempty" json:"bold,omitempty"`
	Italic        *bool `yaml:"italic,omitempty" json:"italic,omitempty"`
	Underline     *bool `yaml:"underline,omitempty" json:"underline,omitempty"`
	Strikethrough *bool `yaml:"strikethrough,omitempty" json:"strikethrough,omitempty"`
}
