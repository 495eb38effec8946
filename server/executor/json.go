package executor

import (
	"encoding/json"
)

// extractJSONValue looks up a top-level key in a flat JSON object document
// and returns the decoded Go value (string, float64, bool, nil, map, slice)
// together with whether the key was present.
func extractJSONValue(doc, key string) (interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		return nil, false
	}
	v, ok := obj[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// renderJSONField renders a decoded JSON field value the way -> (quoted,
// valid JSON text) or ->> (raw, unquoted scalars) would per MySQL's
// JSON_EXTRACT/JSON_UNQUOTE text forms.
func renderJSONField(v interface{}, unquote bool) (string, bool) {
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok && unquote {
		return s, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
