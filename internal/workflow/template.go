package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Substitute replaces {{key}} placeholders with scalar context values.
// Placeholders naming missing or non-scalar values are left untouched.
func Substitute(template string, data map[string]any, escape func(string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := scalarString(data[key])
		if !ok {
			return match
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
}

// SubstituteJSON decodes a JSON document and substitutes placeholders in its string leaves only.
func SubstituteJSON(raw json.RawMessage, data map[string]any) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return json.Marshal(substituteTree(tree, data))
}

func substituteTree(node any, data map[string]any) any {
	switch v := node.(type) {
	case string:
		return Substitute(v, data, nil)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = substituteTree(child, data)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = substituteTree(child, data)
		}
		return out
	default:
		return v
	}
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// LookupPath walks a decoded JSON value along a dotted path. Numeric segments index arrays.
func LookupPath(value any, path string) (any, bool) {
	current := value
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
