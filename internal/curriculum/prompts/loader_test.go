package prompts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

func newTestLoader(t *testing.T, dir string) *Loader {
	t.Helper()
	l, err := NewLoader(context.Background(), logger.NewNop(), Options{Dir: dir, CacheSize: 8})
	require.NoError(t, err)
	return l
}

func TestNewLoaderEmbeddedDefaults(t *testing.T) {
	l := newTestLoader(t, "")

	assert.Len(t, l.templates, 3)
	assert.True(t, l.HasApproach("3_act_math"))
	assert.True(t, l.HasApproach("5e_lessons"))
	assert.False(t, l.HasApproach("made_up"))
	assert.NotEmpty(t, l.Approaches())
}

func TestRenderSystemPromptFillsPlaceholders(t *testing.T) {
	l := newTestLoader(t, "")

	for _, tpl := range []Template{TemplateCurriculum, TemplateTeacherGuide, TemplateStudentMaterials} {
		out, err := l.RenderSystemPrompt(tpl, 7, "Math")
		require.NoError(t, err, tpl)
		assert.NotContains(t, out, placeholderStandards, tpl)
		assert.NotContains(t, out, placeholderApproaches, tpl)
		assert.Contains(t, out, "3_act_math", tpl)
	}
}

func TestRenderSystemPromptUnknownTemplate(t *testing.T) {
	l := newTestLoader(t, "")
	_, err := l.RenderSystemPrompt(Template("nope.md"), 5, "science")
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestDirOverrideAndStandards(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write(string(TemplateCurriculum), "STANDARDS:\n{{STANDARDS_JSON}}")
	write("ca_k12_standards_readiness.json", `{"readiness_indicators":{"grade_4":["reads fluently"],"grade_5":["other"]}}`)

	l := newTestLoader(t, dir)

	out, err := l.RenderSystemPrompt(TemplateCurriculum, 4, "ELA")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "STANDARDS:\n"))
	assert.Contains(t, out, "reads fluently")
	assert.NotContains(t, out, `"other"`)

	// templates not present in dir fall back to the embedded copy
	guide, err := l.RenderSystemPrompt(TemplateTeacherGuide, 4, "ELA")
	require.NoError(t, err)
	assert.NotContains(t, guide, "STANDARDS:\n")
}

func TestNewLoaderRejectsMalformedStandards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca_k12_standards_enhanced.json"), []byte("{"), 0o644))
	_, err := NewLoader(context.Background(), logger.NewNop(), Options{Dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode standards")
}

func TestRenderSystemPromptCaches(t *testing.T) {
	l := newTestLoader(t, "")
	first, err := l.RenderSystemPrompt(TemplateCurriculum, 3, "Science")
	require.NoError(t, err)
	assert.Equal(t, 1, l.cache.Len())

	second, err := l.RenderSystemPrompt(TemplateCurriculum, 3, " science ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, l.cache.Len())
}

func TestUserMessage(t *testing.T) {
	msg, err := UserMessage(TemplateStudentMaterials, map[string]any{"grade": 6})
	require.NoError(t, err)
	assert.Equal(t, "Generate the four differentiated student handouts for this class:\n\n```json\n{\n  \"grade\": 6\n}\n```", msg)

	_, err = UserMessage(Template("x"), nil)
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestParseTemplate(t *testing.T) {
	cases := map[string]Template{
		"curriculum":                 TemplateCurriculum,
		"teacher_guide":              TemplateTeacherGuide,
		" Student_Materials ":        TemplateStudentMaterials,
		"teacher_guide_prompt.md":    TemplateTeacherGuide,
		"curriculum_agent_prompt.md": TemplateCurriculum,
	}
	for in, want := range cases {
		got, err := ParseTemplate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTemplate("lesson_plan")
	require.ErrorIs(t, err, ErrUnknownTemplate)
}
