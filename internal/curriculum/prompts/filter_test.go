package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleStandards() map[string]any {
	return map[string]any{
		standardsEnhanced: map[string]any{
			"metadata":            map[string]any{"version": "1"},
			"elementary_summary":  "k5",
			"high_school_summary": "hs",
			"math_6_8_detailed":   map[string]any{"grade_7": "ratios", "grade_8": "functions"},
			"ela_6_8_detailed":    map[string]any{"grade_7": "argument"},
			"science_ms":          "ms science",
			"history_social_science": map[string]any{
				"grade_7": "medieval",
			},
		},
		standardsReadiness: map[string]any{
			"readiness_indicators": map[string]any{"grade_7": "r7", "grade_3": "r3"},
		},
		topicMapping68: map[string]any{
			"metadata": "topics",
			"math":     "math topics",
		},
	}
}

func TestSubjectCategory(t *testing.T) {
	cases := map[string]string{
		"Mathematics":           "math",
		"English Language Arts": "ela",
		"Creative Writing":      "ela",
		"Earth Science":         "science",
		"Social Studies":        "history",
		"Social Science":        "history",
		"Art":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SubjectCategory(in), in)
	}
}

func TestFilterStandardsMiddleSchoolMath(t *testing.T) {
	out := FilterStandards(sampleStandards(), 7, "Math")

	enh := out[standardsEnhanced].(map[string]any)
	assert.Equal(t, map[string]any{"version": "1"}, enh["metadata"])
	assert.Equal(t, map[string]any{"grade_7": "ratios"}, enh["math_detailed"])
	assert.NotContains(t, enh, "elementary_summary")
	assert.NotContains(t, enh, "science")

	assert.Equal(t, map[string]any{"readiness_indicators": map[string]any{"grade_7": "r7"}}, out[standardsReadiness])
	assert.Equal(t, map[string]any{"math": "math topics"}, out[topicMapping68])
}

func TestFilterStandardsTopicMappingFallsBackToMetadata(t *testing.T) {
	out := FilterStandards(sampleStandards(), 7, "Science")
	enh := out[standardsEnhanced].(map[string]any)
	assert.Equal(t, "ms science", enh["science"])
	assert.Equal(t, map[string]any{"metadata": "topics"}, out[topicMapping68])
}

func TestFilterStandardsBands(t *testing.T) {
	elem := FilterStandards(sampleStandards(), 3, "Math")
	assert.Equal(t, "k5", elem[standardsEnhanced].(map[string]any)["elementary_summary"])
	assert.NotContains(t, elem, topicMapping68)

	high := FilterStandards(sampleStandards(), 10, "History")
	enh := high[standardsEnhanced].(map[string]any)
	assert.Equal(t, "hs", enh["high_school_summary"])
	assert.NotContains(t, high, standardsReadiness)
}

func TestFilterStandardsEmptyInput(t *testing.T) {
	assert.Empty(t, FilterStandards(map[string]any{}, 5, "math"))
}
