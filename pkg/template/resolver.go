// Package template resolves {{path}}-style references against layered
// contexts. It is used when composing generation prompts and notification
// bodies, where values come from a mix of trigger payloads, prior step
// outputs, and static parameters.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-\[\]]+)\s*\}\}`)

// Layers is an ordered set of named lookup maps. Later layers shadow earlier
// ones, so callers list static parameters first and the most specific context
// (e.g. the current iteration's outputs) last.
type Layers []map[string]any

// NewLayers builds a layered context from lowest to highest precedence.
func NewLayers(layers ...map[string]any) Layers {
	return Layers(layers)
}

// Lookup resolves a dotted path (e.g. "trigger.issue.id") across the layers,
// highest precedence first. Returns the value and whether it was found.
func (l Layers) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	for i := len(l) - 1; i >= 0; i-- {
		if v, ok := lookupPath(l[i], parts); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(m map[string]any, parts []string) (any, bool) {
	var current any = m
	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Resolve substitutes every {{path}} reference in the input. References that
// cannot be resolved are left intact and returned so callers can decide
// whether missing context is an error.
func Resolve(input string, layers Layers) (string, []string) {
	var unresolved []string

	out := refPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		v, ok := layers.Lookup(path)
		if !ok {
			unresolved = append(unresolved, path)
			return match
		}
		return stringify(v)
	})

	return out, unresolved
}

// MustResolve is Resolve but treats unresolved references as an error.
func MustResolve(input string, layers Layers) (string, error) {
	out, unresolved := Resolve(input, layers)
	if len(unresolved) > 0 {
		return out, fmt.Errorf("unresolved template references: %s", strings.Join(unresolved, ", "))
	}
	return out, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
