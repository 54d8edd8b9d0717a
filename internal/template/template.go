// Package template implements the manifest template store: versioned resource
// templates with typed placeholder slots, resolved against a binding set into
// concrete resource documents. Resolution is pure and deterministic; identical
// (template, bindings) inputs always yield byte-identical documents.
package template

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SlotType is the declared type of a placeholder slot.
type SlotType string

const (
	// SlotString accepts string values.
	SlotString SlotType = "string"
	// SlotInt accepts integer values.
	SlotInt SlotType = "int"
	// SlotBool accepts boolean values.
	SlotBool SlotType = "bool"
)

// Slot declares a named placeholder with a type and optional default.
// A slot without a default is required.
type Slot struct {
	// Name is the placeholder identifier referenced as ${name}.
	Name string `yaml:"name"`
	// Type is the declared value type. Defaults to string.
	Type SlotType `yaml:"type,omitempty"`
	// Default is the value used when no binding is supplied. A slot with a
	// default is optional.
	Default any `yaml:"default,omitempty"`
}

// Required reports whether the slot must be bound explicitly.
func (s Slot) Required() bool { return s.Default == nil }

// Resource declares one templated resource. Manifest is the declarative
// object body; placeholder references of the form ${name} inside it are
// substituted at resolve time.
type Resource struct {
	// Name is the logical resource name used in dependsOn references.
	Name string `yaml:"name"`
	// DependsOn lists logical names of resources in the same template that
	// must be applied and healthy first.
	DependsOn []string `yaml:"dependsOn,omitempty"`
	// Manifest is the declarative resource body (e.g. a Kubernetes object).
	Manifest map[string]any `yaml:"manifest"`
}

// Template is an ordered sequence of typed resource specs with declared
// placeholder slots. Immutable once loaded; identified by name and version.
type Template struct {
	// Name identifies the template.
	Name string `yaml:"name"`
	// Version is the template version (semantic versioning).
	Version string `yaml:"version"`
	// Slots declares the placeholders available to resources.
	Slots []Slot `yaml:"placeholders,omitempty"`
	// Resources lists templated resources in declaration order. Declaration
	// order is significant: it breaks ordering ties during planning.
	Resources []Resource `yaml:"resources"`
}

// Slot returns the declared slot with the given name.
func (t *Template) Slot(name string) (Slot, bool) {
	for _, s := range t.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Load parses and validates a template from YAML bytes.
func Load(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile reads and validates a template from a YAML file.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", path, err)
	}
	t, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", path, err)
	}
	return t, nil
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if _, err := semver.NewVersion(t.Version); err != nil {
		return fmt.Errorf("template %q has invalid version %q: %w", t.Name, t.Version, err)
	}
	if len(t.Resources) == 0 {
		return fmt.Errorf("template %q declares no resources", t.Name)
	}

	seenSlots := make(map[string]struct{}, len(t.Slots))
	for i := range t.Slots {
		s := &t.Slots[i]
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("template %q: placeholder %d has no name", t.Name, i)
		}
		if _, dup := seenSlots[s.Name]; dup {
			return fmt.Errorf("template %q: duplicate placeholder %q", t.Name, s.Name)
		}
		seenSlots[s.Name] = struct{}{}
		if s.Type == "" {
			s.Type = SlotString
		}
		switch s.Type {
		case SlotString, SlotInt, SlotBool:
		default:
			return fmt.Errorf("template %q: placeholder %q has unknown type %q", t.Name, s.Name, s.Type)
		}
		if s.Default != nil {
			coerced, err := coerce(*s, s.Default)
			if err != nil {
				return fmt.Errorf("template %q: default for placeholder %q: %w", t.Name, s.Name, err)
			}
			s.Default = coerced
		}
	}

	names := make(map[string]struct{}, len(t.Resources))
	for i, r := range t.Resources {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("template %q: resource %d has no name", t.Name, i)
		}
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("template %q: duplicate resource %q", t.Name, r.Name)
		}
		names[r.Name] = struct{}{}
		if len(r.Manifest) == 0 {
			return fmt.Errorf("template %q: resource %q has an empty manifest", t.Name, r.Name)
		}
	}
	for _, r := range t.Resources {
		for _, dep := range r.DependsOn {
			if _, ok := names[dep]; !ok {
				return fmt.Errorf("template %q: resource %q depends on unknown resource %q", t.Name, r.Name, dep)
			}
		}
	}
	return nil
}
