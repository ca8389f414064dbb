package notify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trustline-data/trustline-engine/pkg/template"
)

// MessageTemplate is a single event's notification template. Subject and Body
// may reference event data with {{ key }} placeholders.
type MessageTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// TemplateSet holds the templates for every event the engine emits.
type TemplateSet struct {
	Templates map[string]MessageTemplate `yaml:"templates"`
}

// LoadTemplates reads a template set from a YAML file.
func LoadTemplates(path string) (*TemplateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification templates: %w", err)
	}

	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse notification templates: %w", err)
	}
	if len(set.Templates) == 0 {
		return nil, fmt.Errorf("notification template file %s defines no templates", path)
	}
	return &set, nil
}

// Render fills the event's template with the given data. Unresolved
// placeholders are left intact so a half-rendered message is still readable.
func (s *TemplateSet) Render(event string, data map[string]any) (subject, body string, err error) {
	tmpl, ok := s.Templates[event]
	if !ok {
		return "", "", fmt.Errorf("no notification template for event %q", event)
	}

	layers := template.NewLayers(data)
	subject, _ = template.Resolve(tmpl.Subject, layers)
	body, _ = template.Resolve(tmpl.Body, layers)
	return subject, body, nil
}
