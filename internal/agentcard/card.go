// Package agentcard holds the capability descriptor other agents fetch to
// discover this one.
package agentcard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Protocol identifies the wire protocol revision advertised in the card.
const Protocol = "a2a-1.0"

type Skill struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Card is immutable once constructed; handlers serve it read-only.
type Card struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Skills      []Skill `json:"skills" yaml:"skills"`
	Version     string  `json:"version" yaml:"version"`
	Protocol    string  `json:"protocol" yaml:"-"`
}

func New(name, description, endpoint string, skills []Skill, version string) Card {
	if version == "" {
		version = "1.0.0"
	}
	return Card{
		Name:        name,
		Description: description,
		Endpoint:    endpoint,
		Skills:      skills,
		Version:     version,
		Protocol:    Protocol,
	}
}

// FromFile reads a card from a YAML manifest.
func FromFile(path string) (Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Card{}, fmt.Errorf("read agent manifest: %w", err)
	}
	var card Card
	if err := yaml.Unmarshal(data, &card); err != nil {
		return Card{}, fmt.Errorf("parse agent manifest: %w", err)
	}
	if card.Version == "" {
		card.Version = "1.0.0"
	}
	card.Protocol = Protocol
	return card, nil
}
