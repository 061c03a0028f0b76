package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Example is one dataset record: a validation or test item together with its
// reference fields ("question", "answer", "label", "choices", ...).
type Example map[string]any

// String returns the value stored under key as text, or "" when absent.
func (e Example) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		// integral values print without a trailing ".0"
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Strings returns a list-valued field as text, e.g. the "choices" of a
// multiple-choice item.
func (e Example) Strings(key string) []string {
	raw, ok := e[key].([]any)
	if !ok {
		if ss, ok := e[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

// Has reports whether key is present with a non-empty value.
func (e Example) Has(key string) bool {
	return strings.TrimSpace(e.String(key)) != ""
}

// Pretty renders the example as indented JSON, the form handed to the
// architect as a sample instance.
func (e Example) Pretty() string {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(e))
	}
	return string(b)
}
