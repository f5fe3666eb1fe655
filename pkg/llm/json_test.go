package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONPlainObject(t *testing.T) {
	got, err := ExtractJSON(`{"fields": []}`)
	require.NoError(t, err)
	assert.Equal(t, `{"fields": []}`, got)
}

func TestExtractJSONMarkdownFence(t *testing.T) {
	response := "Here are the classifications:\n```json\n{\"fields\": [{\"field_name\": \"notes\"}]}\n```\nDone."
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields": [{"field_name": "notes"}]}`, got)
}

func TestExtractJSONThinkTags(t *testing.T) {
	response := "<think>the field looks like an identifier</think>\n[{\"field_name\": \"id\"}]"
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"field_name": "id"}]`, got)
}

func TestExtractJSONNestedBraces(t *testing.T) {
	response := `prefix {"a": {"b": "}"}, "c": [1, 2]} suffix`
	got, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": "}"}, "c": [1, 2]}`, got)
}

func TestExtractJSONNoJSON(t *testing.T) {
	_, err := ExtractJSON("the model refused to answer")
	assert.Error(t, err)
}

func TestParseJSONResponse(t *testing.T) {
	type entry struct {
		FieldName string `json:"field_name"`
		Sensitive bool   `json:"is_sensitive"`
	}

	entries, err := ParseJSONResponse[[]entry](`[{"field_name": "email", "is_sensitive": true}]`)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "email", entries[0].FieldName)
	assert.True(t, entries[0].Sensitive)
}

func TestParseJSONResponseTypeMismatch(t *testing.T) {
	_, err := ParseJSONResponse[map[string]int](`{"a": "not-a-number"}`)
	assert.Error(t, err)
}
