// Package prompts loads system prompt templates and reference data once and
// renders them per grade and subject.
package prompts

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

//go:embed assets/*.md assets/*.json
var embedded embed.FS

type Template string

const (
	TemplateCurriculum       Template = "curriculum_agent_prompt.md"
	TemplateTeacherGuide     Template = "teacher_guide_prompt.md"
	TemplateStudentMaterials Template = "student_materials_prompt.md"

	approachesFile = "pedagogical_approaches.json"

	placeholderStandards  = "{{STANDARDS_JSON}}"
	placeholderApproaches = "{{PEDAGOGICAL_APPROACHES_JSON}}"
)

var (
	templates     = []Template{TemplateCurriculum, TemplateTeacherGuide, TemplateStudentMaterials}
	standardFiles = []string{standardsEnhanced, standardsReadiness, topicMapping68}

	ErrUnknownTemplate = errors.New("unknown prompt template")
)

// ParseTemplate accepts a short name ("teacher_guide") or a template file name.
func ParseTemplate(name string) (Template, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, t := range templates {
		if n == string(t) || n+"_prompt.md" == string(t) || (n == "curriculum" && t == TemplateCurriculum) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

// userLeads are the instruction lines placed before the serialized request.
var userLeads = map[Template]string{
	TemplateCurriculum:       "Generate curriculum for this class:",
	TemplateTeacherGuide:     "Generate the teacher guide for this class:",
	TemplateStudentMaterials: "Generate the four differentiated student handouts for this class:",
}

type Approach struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

type Options struct {
	// Dir overrides embedded files of the same name. Empty means embedded only.
	Dir       string
	CacheSize int
}

type cacheKey struct {
	template Template
	grade    int
	subject  string
}

// Loader is immutable after NewLoader returns, apart from its internal
// thread-safe render cache.
type Loader struct {
	log        *logger.Logger
	templates  map[Template]string
	standards  map[string]any
	approaches string
	approachBy map[string]Approach
	approachLs []Approach
	cache      *lru.Cache[cacheKey, string]
}

// NewLoader reads every template and reference file concurrently. Templates
// and the approaches list are required; standards files are optional.
func NewLoader(ctx context.Context, log *logger.Logger, opts Options) (*Loader, error) {
	if log == nil {
		log = logger.NewNop()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, err
	}
	l := &Loader{
		log:        log.With("component", "prompts"),
		templates:  make(map[Template]string, len(templates)),
		standards:  map[string]any{},
		approachBy: map[string]Approach{},
		cache:      cache,
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, t := range templates {
		t := t
		g.Go(func() error {
			b, err := readAsset(opts.Dir, string(t))
			if err != nil {
				return fmt.Errorf("load template %s: %w", t, err)
			}
			mu.Lock()
			l.templates[t] = string(b)
			mu.Unlock()
			return nil
		})
	}
	for _, name := range standardFiles {
		name := name
		g.Go(func() error {
			b, err := readAsset(opts.Dir, name+".json")
			if errors.Is(err, fs.ErrNotExist) {
				l.log.Debug("standards file not present", "file", name)
				return nil
			}
			if err != nil {
				return fmt.Errorf("load standards %s: %w", name, err)
			}
			var v any
			if err := json.Unmarshal(b, &v); err != nil {
				return fmt.Errorf("decode standards %s: %w", name, err)
			}
			mu.Lock()
			l.standards[name] = v
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		b, err := readAsset(opts.Dir, approachesFile)
		if err != nil {
			return fmt.Errorf("load approaches: %w", err)
		}
		var doc struct {
			Approaches []Approach `json:"pedagogical_approaches"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("decode approaches: %w", err)
		}
		mu.Lock()
		defer mu.Unlock()
		l.approaches = string(b)
		for _, a := range doc.Approaches {
			if a.ID == "" {
				continue
			}
			l.approachBy[a.ID] = a
			l.approachLs = append(l.approachLs, a)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.log.Info("prompt context loaded",
		"templates", len(l.templates),
		"standards_files", len(l.standards),
		"approaches", len(l.approachLs),
		"override_dir", opts.Dir,
	)
	return l, nil
}

func readAsset(dir, name string) ([]byte, error) {
	if dir != "" {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return embedded.ReadFile("assets/" + name)
}

// RenderSystemPrompt fills the template's placeholders with standards filtered
// to grade and subject. Results are cached.
func (l *Loader) RenderSystemPrompt(t Template, grade int, subject string) (string, error) {
	key := cacheKey{template: t, grade: grade, subject: strings.ToLower(strings.TrimSpace(subject))}
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	base, ok := l.templates[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, t)
	}
	standards, err := l.StandardsJSON(grade, subject)
	if err != nil {
		return "", err
	}
	out := strings.NewReplacer(
		placeholderStandards, standards,
		placeholderApproaches, l.approaches,
	).Replace(base)
	l.cache.Add(key, out)
	return out, nil
}

// StandardsJSON returns the filtered standards as indented JSON.
func (l *Loader) StandardsJSON(grade int, subject string) (string, error) {
	b, err := json.MarshalIndent(FilterStandards(l.standards, grade, subject), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode standards: %w", err)
	}
	return string(b), nil
}

// UserMessage wraps the serialized request in the template's instruction line
// and a json fence.
func UserMessage(t Template, input any) (string, error) {
	lead, ok := userLeads[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, t)
	}
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return lead + "\n\n```json\n" + string(b) + "\n```", nil
}

func (l *Loader) Approaches() []Approach {
	out := make([]Approach, len(l.approachLs))
	copy(out, l.approachLs)
	return out
}

func (l *Loader) HasApproach(id string) bool {
	_, ok := l.approachBy[id]
	return ok
}
