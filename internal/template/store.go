package template

import (
	"fmt"
	"sort"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Store holds the loaded templates for a project and resolves them as one
// ordered document stream. Templates are immutable once loaded.
type Store struct {
	templates []*Template
}

// NewStore loads templates from the given YAML files in order.
func NewStore(paths ...string) (*Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no template files configured")
	}
	store := &Store{templates: make([]*Template, 0, len(paths))}
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		t, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate template name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		store.templates = append(store.templates, t)
	}
	return store, nil
}

// NewStoreFromTemplates builds a store from already-loaded templates.
func NewStoreFromTemplates(templates ...*Template) *Store {
	return &Store{templates: templates}
}

// Templates returns the loaded templates in declaration order.
func (s *Store) Templates() []*Template { return s.templates }

// HasSlot reports whether any loaded template declares the named placeholder.
func (s *Store) HasSlot(name string) bool {
	for _, t := range s.templates {
		if _, ok := t.Slot(name); ok {
			return true
		}
	}
	return false
}

// Resolve applies the binding set to every template and concatenates the
// resulting documents in template declaration order. Each template only sees
// the bindings matching its own declared slots.
func (s *Store) Resolve(bindings release.BindingSet) ([]release.ResourceDocument, error) {
	if unknown := s.UnknownBindings(bindings); len(unknown) > 0 {
		return nil, fmt.Errorf("bindings %v do not match any declared placeholder: %w", unknown, release.ErrValidation)
	}

	var docs []release.ResourceDocument
	for _, t := range s.templates {
		scoped := make(release.BindingSet)
		for name, value := range bindings {
			if _, ok := t.Slot(name); ok {
				scoped[name] = value
			}
		}
		resolved, err := t.Resolve(scoped)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		docs = append(docs, resolved...)
	}
	return docs, nil
}

// UnknownBindings returns binding names that no loaded template declares.
func (s *Store) UnknownBindings(bindings release.BindingSet) []string {
	var unknown []string
	for name := range bindings {
		if !s.HasSlot(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
