package storage

import (
	"errors"
	"fmt"
	"strings"

	"chatdeck/internal/logger"
	"chatdeck/pkg/chattypes"
)

var (
	// ErrInvalidCredential is returned when saving an empty API key.
	ErrInvalidCredential = errors.New("please enter a valid API key")
	// ErrInvalidPersona is returned when either persona field is empty.
	ErrInvalidPersona = errors.New("please enter both character name and personality prompt")
)

// SettingsRepository keeps the API credential and the persona.
type SettingsRepository struct {
	kv             KV
	defaults       chattypes.Persona
	fallbackAPIKey string
}

// NewSettingsRepository creates a repository over kv.
// defaults fill persona fields that were never saved; fallbackAPIKey is used
// when no key has been saved (typically from CHATDECK_API_KEY).
func NewSettingsRepository(kv KV, defaults chattypes.Persona, fallbackAPIKey string) *SettingsRepository {
	return &SettingsRepository{
		kv:             kv,
		defaults:       defaults,
		fallbackAPIKey: strings.TrimSpace(fallbackAPIKey),
	}
}

// APIKey returns the saved credential, the configured fallback, or "".
func (r *SettingsRepository) APIKey() string {
	if v := r.read(KeyAPIKey); v != "" {
		return v
	}
	return r.fallbackAPIKey
}

// SaveAPIKey stores a trimmed, non-empty credential.
func (r *SettingsRepository) SaveAPIKey(value string) error {
	key := strings.TrimSpace(value)
	if key == "" {
		return ErrInvalidCredential
	}
	if err := r.kv.Set(KeyAPIKey, []byte(key)); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	logger.Debug("API key saved", "masked", MaskSecret(key))
	return nil
}

// Persona returns the saved persona with defaults for missing fields.
func (r *SettingsRepository) Persona() chattypes.Persona {
	p := chattypes.Persona{
		Name:   r.read(KeyPersonaName),
		Prompt: r.read(KeyPersonaPrompt),
	}
	if p.Name == "" {
		p.Name = r.defaults.Name
	}
	if p.Prompt == "" {
		p.Prompt = r.defaults.Prompt
	}
	return p
}

// SavePersona stores both persona fields; both are required.
func (r *SettingsRepository) SavePersona(name, prompt string) error {
	p := chattypes.Persona{Name: strings.TrimSpace(name), Prompt: strings.TrimSpace(prompt)}
	if p.IsBlank() {
		return ErrInvalidPersona
	}
	if err := r.kv.Set(KeyPersonaName, []byte(p.Name)); err != nil {
		return fmt.Errorf("failed to save persona name: %w", err)
	}
	if err := r.kv.Set(KeyPersonaPrompt, []byte(p.Prompt)); err != nil {
		return fmt.Errorf("failed to save persona prompt: %w", err)
	}
	logger.Debug("Persona saved", "name", p.Name)
	return nil
}

func (r *SettingsRepository) read(key string) string {
	v, ok, err := r.kv.Get(key)
	if err != nil {
		logger.Warn("Failed to read setting, using default", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(v))
}

// MaskSecret keeps the first and last four characters of a secret.
func MaskSecret(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:4]) + "…" + string(runes[len(runes)-4:])
}
