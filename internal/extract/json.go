package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSON   = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	embeddedJSON = regexp.MustCompile(`(?s)\{.*\}`)
)

// Object recovers a JSON object from model output. Models wrap JSON in prose
// or markdown fences more often than not, so recovery runs in three passes:
// direct parse, fenced code block, then the widest braced span in the text.
// Returns false when no pass yields a valid object.
func Object(output string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(output)

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}

	if m := fencedJSON.FindStringSubmatch(output); m != nil {
		obj = nil
		if err := json.Unmarshal([]byte(m[1]), &obj); err == nil {
			return obj, true
		}
	}

	if m := embeddedJSON.FindString(output); m != "" {
		obj = nil
		if err := json.Unmarshal([]byte(m), &obj); err == nil {
			return obj, true
		}
	}

	return nil, false
}

// String returns the named top-level field as a string, or "" when absent or
// not a string.
func String(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return v
}

// Float returns the named top-level field as a float64. JSON numbers decode
// as float64 so no further coercion is needed.
func Float(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key].(float64)
	return v, ok
}

// Bool returns the named top-level field as a bool.
func Bool(obj map[string]any, key string) (bool, bool) {
	v, ok := obj[key].(bool)
	return v, ok
}
