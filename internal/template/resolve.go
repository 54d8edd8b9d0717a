package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rollout-k8s/rolloutctl/internal/canon"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z][A-Za-z0-9_]*)\}`)

// UnresolvedPlaceholderError indicates a required slot has no binding, or a
// manifest references a placeholder the template never declared.
type UnresolvedPlaceholderError struct {
	// Template is the template name.
	Template string
	// Slot is the placeholder name.
	Slot string
	// Declared reports whether the slot exists in the template.
	Declared bool
}

func (e *UnresolvedPlaceholderError) Error() string {
	if !e.Declared {
		return fmt.Sprintf("template %q references undeclared placeholder %q", e.Template, e.Slot)
	}
	return fmt.Sprintf("template %q: no binding for required placeholder %q", e.Template, e.Slot)
}

// Unwrap classifies the error as a validation failure.
func (e *UnresolvedPlaceholderError) Unwrap() error { return release.ErrValidation }

// TypeMismatchError indicates a supplied value violates the slot's declared type.
type TypeMismatchError struct {
	// Slot is the placeholder name.
	Slot string
	// Want is the declared slot type.
	Want SlotType
	// Got describes the supplied value.
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("placeholder %q expects %s, got %s", e.Slot, e.Want, e.Got)
}

// Unwrap classifies the error as a validation failure.
func (e *TypeMismatchError) Unwrap() error { return release.ErrValidation }

// Resolve applies a binding set to the template and returns fully resolved
// resource documents in declaration order. It has no side effects: either
// every resource resolves or an error is returned with no partial documents.
func (t *Template) Resolve(bindings release.BindingSet) ([]release.ResourceDocument, error) {
	values, err := t.bindingValues(bindings)
	if err != nil {
		return nil, err
	}

	docs := make([]release.ResourceDocument, 0, len(t.Resources))
	refByName := make(map[string]string, len(t.Resources))
	for _, res := range t.Resources {
		resolved, err := t.substitute(res.Manifest, values)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", res.Name, err)
		}
		body, ok := resolved.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("resource %q: manifest did not resolve to an object: %w", res.Name, release.ErrValidation)
		}

		raw, err := canon.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", res.Name, err)
		}

		doc := release.ResourceDocument{
			Kind:        manifestKind(body),
			Name:        manifestName(body, res.Name),
			Namespace:   manifestNamespace(body),
			Raw:         raw,
			ContentHash: canon.HashBytes(raw),
		}
		refByName[res.Name] = doc.Ref()
		docs = append(docs, doc)
	}

	// Second pass: dependsOn may reference resources declared later.
	for i, res := range t.Resources {
		for _, dep := range res.DependsOn {
			docs[i].DependsOn = append(docs[i].DependsOn, refByName[dep])
		}
	}

	return docs, nil
}

// bindingValues validates the supplied bindings against declared slots and
// fills in defaults. Unknown binding names are rejected so typos never pass
// through silently.
func (t *Template) bindingValues(bindings release.BindingSet) (map[string]any, error) {
	for name := range bindings {
		if _, ok := t.Slot(name); !ok {
			return nil, fmt.Errorf("binding %q does not match any placeholder in template %q: %w", name, t.Name, release.ErrValidation)
		}
	}

	values := make(map[string]any, len(t.Slots))
	for _, slot := range t.Slots {
		supplied, ok := bindings[slot.Name]
		if !ok {
			if slot.Required() {
				return nil, &UnresolvedPlaceholderError{Template: t.Name, Slot: slot.Name, Declared: true}
			}
			values[slot.Name] = slot.Default
			continue
		}
		coerced, err := coerce(slot, supplied)
		if err != nil {
			return nil, err
		}
		values[slot.Name] = coerced
	}
	return values, nil
}

// substitute walks the manifest and replaces ${name} references. A string
// value consisting solely of a placeholder takes the slot's typed value; a
// placeholder embedded in a longer string is interpolated textually.
func (t *Template) substitute(node any, values map[string]any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			resolved, err := t.substitute(child, values)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			resolved, err := t.substitute(child, values)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		return t.substituteString(v, values)
	default:
		return v, nil
	}
}

func (t *Template) substituteString(s string, values map[string]any) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-value placeholder: substitute the typed value.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		name := s[matches[0][2]:matches[0][3]]
		value, ok := values[name]
		if !ok {
			return nil, &UnresolvedPlaceholderError{Template: t.Name, Slot: name}
		}
		return value, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		name := s[m[2]:m[3]]
		value, ok := values[name]
		if !ok {
			return nil, &UnresolvedPlaceholderError{Template: t.Name, Slot: name}
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(stringify(value))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// coerce checks a supplied value against the slot's declared type. String
// inputs for int/bool slots are parsed because CLI bindings arrive as text.
func coerce(slot Slot, value any) (any, error) {
	switch slot.Type {
	case SlotString, "":
		if s, ok := value.(string); ok {
			return s, nil
		}
	case SlotInt:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return parsed, nil
			}
		}
	case SlotBool:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		}
	}
	return nil, &TypeMismatchError{Slot: slot.Name, Want: slot.Type, Got: fmt.Sprintf("%T (%v)", value, value)}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func manifestKind(body map[string]any) string {
	if kind, ok := body["kind"].(string); ok {
		return kind
	}
	return ""
}

func manifestName(body map[string]any, fallback string) string {
	if meta, ok := body["metadata"].(map[string]any); ok {
		if name, ok := meta["name"].(string); ok && name != "" {
			return name
		}
	}
	return fallback
}

func manifestNamespace(body map[string]any) string {
	if meta, ok := body["metadata"].(map[string]any); ok {
		if ns, ok := meta["namespace"].(string); ok {
			return ns
		}
	}
	return ""
}
