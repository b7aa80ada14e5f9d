package parse

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() map[string]any {
	return map[string]any{
		"teacher_guide": map[string]any{
			"lesson_title": "Equivalent Ratios",
			"days":         []any{map[string]any{"day": float64(1)}},
		},
		"student_materials": map[string]any{},
	}
}

func TestObjectRoundTripsAllWrappings(t *testing.T) {
	obj := sample()
	raw, err := json.MarshalIndent(obj, "", "  ")
	require.NoError(t, err)

	cases := map[string]string{
		"json fence":  "Here you go:\n```json\n" + string(raw) + "\n```\nEnjoy!",
		"plain fence": "```\n" + string(raw) + "\n```",
		"bare":        string(raw),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Object(text)
			require.NoError(t, err)
			assert.Equal(t, obj, got)
		})
	}
}

func TestFirstJSONFenceWins(t *testing.T) {
	text := "```json\n{\"n\": 1}\n```\nand also\n```json\n{\"n\": 2}\n```"
	got, err := Object(text)
	require.NoError(t, err)
	assert.Equal(t, float64(1), got["n"])
}

func TestJSONFencePreferredOverEarlierPlainFence(t *testing.T) {
	text := "```\nnot json\n```\n```json\n{\"n\": 3}\n```"
	got, err := Object(text)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["n"])
}

func TestUnterminatedFenceRunsToEnd(t *testing.T) {
	assert.Equal(t, `{"a":1}`, Extract("```json\n{\"a\":1}\n"))
}

func TestEmptyInputIsParseError(t *testing.T) {
	_, err := Object("")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "", pe.Preview)
}

func TestMalformedOutputCarriesPreview(t *testing.T) {
	text := "Sorry, I can't produce JSON today. " + strings.Repeat("x", 800)
	_, err := Object(text)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Error(t, pe.Err)
	assert.Len(t, []rune(pe.Preview), previewLimit)
	assert.True(t, strings.HasPrefix(text, pe.Preview))
}

func TestTrailingDataRejected(t *testing.T) {
	_, err := Object(`{"a":1} {"b":2}`)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
}

func TestNonObjectRejected(t *testing.T) {
	_, err := Object(`[1,2,3]`)
	require.Error(t, err)
	_, err = Object(`null`)
	require.Error(t, err)
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 600)
	p := Preview(text)
	assert.Equal(t, previewLimit, len([]rune(p)))
}
