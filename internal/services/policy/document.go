package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opendesk-io/slaengine/internal/models"
)

// Document is the on-disk catalog format: calendars and policies in one
// YAML (or JSON) payload supplied by the external configuration service.
type Document struct {
	Version   string            `json:"version,omitempty" yaml:"version,omitempty"`
	Calendars []models.Calendar `json:"calendars" yaml:"calendars"`
	Policies  []models.Policy   `json:"policies" yaml:"policies"`
}

// ParseDocument decodes and validates a catalog document into a snapshot.
func ParseDocument(data []byte) (*Snapshot, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog document: %w", err)
	}
	return NewSnapshot(doc.Version, doc.Calendars, doc.Policies)
}

// LoadFile reads a catalog document from disk.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseDocument(data)
}
