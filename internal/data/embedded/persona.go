package embedded

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"chatdeck/pkg/chattypes"
)

// PersonaData contains the embedded default persona YAML data.
//
//go:embed persona.yaml
var PersonaData []byte

// DefaultPersona decodes the embedded persona.
func DefaultPersona() (chattypes.Persona, error) {
	return ParsePersona(PersonaData)
}

// ParsePersona decodes a persona YAML document. Both fields are required.
func ParsePersona(data []byte) (chattypes.Persona, error) {
	var p chattypes.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return chattypes.Persona{}, fmt.Errorf("failed to parse persona: %w", err)
	}
	if p.IsBlank() {
		return chattypes.Persona{}, fmt.Errorf("persona needs both a name and a prompt")
	}
	return p, nil
}
