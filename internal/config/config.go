// Package config resolves chatdeck settings from defaults, .env files, the
// process environment and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"chatdeck/internal/logger"
)

// EnvPrefix prefixes every environment variable chatdeck reads.
const EnvPrefix = "CHATDECK"

// Setting keys. Environment variables are CHATDECK_ plus the upper-cased key with '-' as '_'.
const (
	KeyAPIURL       = "api-url"
	KeyModel        = "model"
	KeyTemperature  = "temperature"
	KeyHTTPTimeout  = "http-timeout"
	KeyStore        = "store"
	KeyDataDir      = "data-dir"
	KeyAPIKey       = "api-key"
	KeySidebarWidth = "sidebar-width"
	KeyLogLevel     = "log-level"
	KeyLogFile      = "log-file"
	KeyTestMode     = "test-mode"
)

// Defaults for settings without a value anywhere else.
const (
	DefaultAPIURL       = "https://api.cohere.ai/v1/chat"
	DefaultModel        = "command-r"
	DefaultTemperature  = 0.7
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultStore        = "file"
	DefaultSidebarWidth = 32
	minSidebarWidth     = 12
)

// ConfigError reports an unusable setting or a missing prerequisite.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Key, e.Value, e.Reason)
}

// Config is the resolved configuration.
type Config struct {
	APIURL       string
	Model        string
	Temperature  float64
	HTTPTimeout  time.Duration
	Store        string
	DataDir      string
	APIKey       string
	SidebarWidth int
	LogLevel     string
	LogFile      string
	TestMode     bool
}

// Paths locates the .env files. Empty fields skip that layer.
type Paths struct {
	ConfigDir string
	WorkDir   string
}

// UserConfigDir returns <user config dir>/chatdeck, or a fixed temp path in test mode.
func UserConfigDir(testMode bool) (string, error) {
	if testMode {
		return filepath.Join(os.TempDir(), "chatdeck-test-config"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, "chatdeck"), nil
}

// NewViper returns a viper instance with defaults set and the environment bound.
// Flags are bound by the caller with BindPFlag.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyTemperature, strconv.FormatFloat(DefaultTemperature, 'f', -1, 64))
	v.SetDefault(KeyHTTPTimeout, DefaultHTTPTimeout.String())
	v.SetDefault(KeyStore, DefaultStore)
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeySidebarWidth, strconv.Itoa(DefaultSidebarWidth))
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyTestMode, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load merges the .env layers into v and resolves the configuration.
// The config-dir .env is read before the working-dir one so the latter wins.
func Load(v *viper.Viper, paths Paths) (*Config, error) {
	return load(v, paths.WorkDir, func(bool) string { return paths.ConfigDir })
}

// LoadDefault is Load over the user config directory and the working directory.
// Test mode picks the config directory, so it is decided by flags, the
// environment and the working-dir .env before the config-dir .env is read.
func LoadDefault(v *viper.Viper) (*Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		logger.Debug("No working directory", "error", err)
		workDir = ""
	}
	return load(v, workDir, func(testMode bool) string {
		dir, err := UserConfigDir(testMode)
		if err != nil {
			logger.Debug("No user config directory", "error", err)
			return ""
		}
		return dir
	})
}

func load(v *viper.Viper, workDir string, configDirFor func(testMode bool) string) (*Config, error) {
	workValues, err := readDotEnv(workDir)
	if err != nil {
		return nil, err
	}
	if err := mergeValues(v, workValues); err != nil {
		return nil, err
	}

	configValues, err := readDotEnv(configDirFor(v.GetBool(KeyTestMode)))
	if err != nil {
		return nil, err
	}
	for _, values := range []map[string]interface{}{configValues, workValues} {
		if err := mergeValues(v, values); err != nil {
			return nil, err
		}
	}
	return resolve(v)
}

// readDotEnv returns the CHATDECK_ settings of dir/.env keyed like viper.
// A missing directory or file yields no settings.
func readDotEnv(dir string) (map[string]interface{}, error) {
	if dir == "" {
		return nil, nil
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}

	envMap, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	values := make(map[string]interface{})
	for name, value := range envMap {
		if key, ok := keyFromEnv(name); ok {
			values[key] = value
		}
	}
	logger.Debug("Loaded .env file", "path", path, "settings", len(values))
	return values, nil
}

func mergeValues(v *viper.Viper, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("failed to merge .env settings: %w", err)
	}
	return nil
}

// keyFromEnv maps CHATDECK_HTTP_TIMEOUT to http-timeout.
func keyFromEnv(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix+"_")
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(strings.ToLower(rest), "_", "-"), true
}

func resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Model:    strings.TrimSpace(v.GetString(KeyModel)),
		APIKey:   strings.TrimSpace(v.GetString(KeyAPIKey)),
		LogLevel: v.GetString(KeyLogLevel),
		LogFile:  v.GetString(KeyLogFile),
		TestMode: v.GetBool(KeyTestMode),
	}

	apiURL := strings.TrimSpace(v.GetString(KeyAPIURL))
	u, err := url.Parse(apiURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigError{Key: KeyAPIURL, Value: apiURL, Reason: "must be an http(s) URL"}
	}
	cfg.APIURL = apiURL

	if cfg.Model == "" {
		return nil, &ConfigError{Key: KeyModel, Reason: "must not be empty"}
	}

	raw := v.GetString(KeyTemperature)
	cfg.Temperature, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || cfg.Temperature < 0 {
		return nil, &ConfigError{Key: KeyTemperature, Value: raw, Reason: "must be a non-negative number"}
	}

	raw = v.GetString(KeyHTTPTimeout)
	cfg.HTTPTimeout, err = time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || cfg.HTTPTimeout <= 0 {
		return nil, &ConfigError{Key: KeyHTTPTimeout, Value: raw, Reason: "must be a positive duration such as 30s"}
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(v.GetString(KeyStore)))
	switch cfg.Store {
	case "file", "sqlite", "memory":
	default:
		return nil, &ConfigError{Key: KeyStore, Value: cfg.Store, Reason: "must be file, sqlite or memory"}
	}

	raw = v.GetString(KeySidebarWidth)
	cfg.SidebarWidth, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || cfg.SidebarWidth < minSidebarWidth {
		return nil, &ConfigError{Key: KeySidebarWidth, Value: raw, Reason: fmt.Sprintf("must be an integer of at least %d", minSidebarWidth)}
	}

	cfg.DataDir = strings.TrimSpace(v.GetString(KeyDataDir))
	if cfg.DataDir == "" {
		dir, err := UserConfigDir(cfg.TestMode)
		if err != nil {
			return nil, &ConfigError{Key: KeyDataDir, Reason: err.Error()}
		}
		cfg.DataDir = dir
	}

	return cfg, nil
}
