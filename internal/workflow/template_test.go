package workflow

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteScalarsOnly(t *testing.T) {
	data := map[string]any{
		"user":     "ana",
		"count":    float64(3),
		"active":   true,
		"entities": map[string]any{"emails": []any{"x@example.com"}},
	}
	got := Substitute("{{user}}/{{count}}/{{active}}/{{entities}}/{{missing}}", data, nil)
	assert.Equal(t, "ana/3/true/{{entities}}/{{missing}}", got)
}

func TestSubstituteEscapesURLValues(t *testing.T) {
	data := map[string]any{"q": "a b&c=d"}
	got := Substitute("https://api.example.com/search?q={{q}}", data, url.QueryEscape)
	assert.Equal(t, "https://api.example.com/search?q=a+b%26c%3Dd", got)
}

func TestSubstituteJSONTouchesStringLeavesOnly(t *testing.T) {
	data := map[string]any{"name": `ana", "admin": true`, "id": "42"}
	out, err := SubstituteJSON(json.RawMessage(`{"user":"{{name}}","ids":["{{id}}",7],"flag":false}`), data)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, `ana", "admin": true`, decoded["user"])
	assert.Equal(t, []any{"42", float64(7)}, decoded["ids"])
	assert.Equal(t, false, decoded["flag"])
	assert.NotContains(t, decoded, "admin")
}

func TestLookupPath(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"items":[{"id":"a"},{"id":"b"}]}}`), &doc))

	value, ok := LookupPath(doc, "data.items.1.id")
	require.True(t, ok)
	assert.Equal(t, "b", value)

	_, ok = LookupPath(doc, "data.items.9.id")
	assert.False(t, ok)
	_, ok = LookupPath(doc, "data.missing")
	assert.False(t, ok)
}

func TestEvaluateCondition(t *testing.T) {
	data := map[string]any{"status": "locked", "attempts": float64(3), "approved": true}

	cases := []struct {
		condition string
		want      bool
	}{
		{"status == locked", true},
		{"status == 'locked'", true},
		{`status == "open"`, false},
		{"status != open", true},
		{"attempts == 3", true},
		{"approved == true", true},
		{"missing == ", false},
		{"missing != x", true},
		{"not a condition", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EvaluateCondition(tc.condition, data), tc.condition)
	}
}
