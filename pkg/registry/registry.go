// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TemplateRegistry is the on-disk set of email template overrides, keyed by
// notification type. Types without an entry keep the built-in template.
type TemplateRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Templates   []Template `json:"templates"`
}

type Template struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

const registrySchema = `{
  "type": "object",
  "required": ["version", "templates"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "lastUpdated": {"type": "string"},
    "templates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "subject", "body"],
        "properties": {
          "type": {"type": "string", "enum": ["reminder", "alert", "submission", "deadline"]},
          "description": {"type": "string"},
          "subject": {"type": "string", "minLength": 1},
          "body": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates data against the registry schema and decodes it.
func Parse(data []byte) (*TemplateRegistry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(registrySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid registry document: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("registry validation failed: %s", strings.Join(errs, "; "))
	}

	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(reg.Templates))
	for _, tpl := range reg.Templates {
		if seen[tpl.Type] {
			return nil, fmt.Errorf("duplicate template for type %q", tpl.Type)
		}
		seen[tpl.Type] = true
	}
	return &reg, nil
}

func SaveRegistry(path string, reg *TemplateRegistry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Lookup returns the template registered for notificationType.
func (r *TemplateRegistry) Lookup(notificationType string) (Template, bool) {
	if r == nil {
		return Template{}, false
	}
	for _, tpl := range r.Templates {
		if tpl.Type == notificationType {
			return tpl, true
		}
	}
	return Template{}, false
}

// Upsert replaces the template for tpl.Type or appends it.
func (r *TemplateRegistry) Upsert(tpl Template) {
	for i := range r.Templates {
		if r.Templates[i].Type == tpl.Type {
			r.Templates[i] = tpl
			return
		}
	}
	r.Templates = append(r.Templates, tpl)
}
