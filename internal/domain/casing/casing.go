// Package casing rewrites map keys between the pipeline's internal
// camelCase convention and the scoring service's snake_case wire
// convention. Values are never touched, only keys.
package casing

import (
	"strings"
	"unicode"
)

// CamelToSnake converts a camelCase key to snake_case.
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SnakeToCamel converts a snake_case key to camelCase.
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r := []rune(p)
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteString(string(r[1:]))
	}
	return b.String()
}

// ToWire recursively rewrites all map keys in v to snake_case.
// Non-container values are returned unchanged.
func ToWire(v any) any {
	return transform(v, CamelToSnake)
}

// ToInternal recursively rewrites all map keys in v to camelCase.
// Non-container values are returned unchanged.
func ToInternal(v any) any {
	return transform(v, SnakeToCamel)
}

// transform walks the closed set of JSON-like container shapes and
// renames keys with the given rule. Numeric feature maps keep their
// concrete type so the hot path avoids boxing every value.
func transform(v any, rename func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[rename(k)] = transform(val, rename)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(t))
		for k, val := range t {
			out[rename(k)] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = transform(val, rename)
		}
		return out
	default:
		return v
	}
}

// WireFeatures rewrites a feature vector's keys to snake_case without
// losing the map[string]float64 type.
func WireFeatures(features map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(features))
	for k, v := range features {
		out[CamelToSnake(k)] = v
	}
	return out
}
