package curriculum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yungbote/curriculum-backend/internal/curriculum/parse"
	"github.com/yungbote/curriculum-backend/internal/curriculum/prompts"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
	"github.com/yungbote/curriculum-backend/internal/inference/executor"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
)

const (
	sectionTeacherGuide     = "teacher_guide"
	sectionStudentMaterials = "student_materials"
)

var errNoSections = errors.New("response has neither teacher_guide nor student_materials")

// messages renders the system prompt and the user message for one template.
func (g *Generator) messages(t prompts.Template, req Request) ([]engine.Message, error) {
	system, err := g.prompts.RenderSystemPrompt(t, req.Grade, req.Subject)
	if err != nil {
		return nil, err
	}
	user, err := prompts.UserMessage(t, req.promptInput())
	if err != nil {
		return nil, err
	}
	return []engine.Message{
		{Role: engine.RoleSystem, Content: system},
		{Role: engine.RoleUser, Content: user},
	}, nil
}

func (g *Generator) call(label string, route registry.Route, msgs []engine.Message, maxTokens int) executor.Request {
	return executor.Request{
		Label:       label,
		Engine:      route.Engine,
		Model:       route.BackendID,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: g.opts.Temperature,
		JSONMode:    g.opts.JSONMode,
	}
}

// single produces the whole result in one model turn.
func (g *Generator) single(ctx context.Context, req Request, route registry.Route, emit func(Event)) (Result, error) {
	msgs, err := g.messages(prompts.TemplateCurriculum, req)
	if err != nil {
		return Result{}, atStage(StageLoading, err)
	}

	emit(progress(StageGenerating, "Generating curriculum..."))
	call := g.call("curriculum", route, msgs, g.opts.TokenBudget(req.NumDays))

	var text string
	if g.opts.Stream {
		text, err = g.consume(ctx, call, emit)
	} else {
		text, err = g.exec.Call(ctx, call)
	}
	if err != nil {
		return Result{}, atStage(StageGenerating, err)
	}

	emit(progress(StageParsing, "Parsing response..."))
	obj, err := parse.Object(text)
	if err != nil {
		return Result{}, atStage(StageParsing, err)
	}
	guide, okGuide := obj[sectionTeacherGuide].(map[string]any)
	materials, okMaterials := obj[sectionStudentMaterials].(map[string]any)
	if !okGuide && !okMaterials {
		return Result{}, atStage(StageParsing, &parse.ParseError{Err: errNoSections, Preview: parse.Preview(text)})
	}
	return newResult(guide, materials), nil
}

// consume drains a fragment stream, reporting accumulated length every
// ProgressEvery fragments.
func (g *Generator) consume(ctx context.Context, call executor.Request, emit func(Event)) (string, error) {
	s, err := g.exec.Stream(ctx, call)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var (
		b     strings.Builder
		n     int
		chars int
	)
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		chars += utf8.RuneCountInString(frag)
		n++
		if g.opts.ProgressEvery > 0 && n%g.opts.ProgressEvery == 0 {
			emit(progress(StageGenerating, fmt.Sprintf("Generating curriculum... (%d chars)", chars)))
		}
	}
	return b.String(), nil
}

type subCall struct {
	section string
	name    string
	pending *executor.Pending
	done    bool
	obj     map[string]any
	err     error
}

// parallel runs the teacher guide and student materials calls concurrently,
// polls both on a fixed cadence and merges whatever succeeded.
func (g *Generator) parallel(ctx context.Context, req Request, route registry.Route, emit func(Event)) (Result, []PartialFailure, error) {
	guideMsgs, err := g.messages(prompts.TemplateTeacherGuide, req)
	if err != nil {
		return Result{}, nil, atStage(StageLoading, err)
	}
	materialsMsgs, err := g.messages(prompts.TemplateStudentMaterials, req)
	if err != nil {
		return Result{}, nil, atStage(StageLoading, err)
	}

	emit(progress(StageGenerating, "Generating curriculum (parallel)..."))

	cctx, cancel := context.WithCancel(ctx)
	guide := &subCall{
		section: sectionTeacherGuide,
		name:    "Teacher guide",
		pending: g.exec.Start(cctx, g.call(sectionTeacherGuide, route, guideMsgs, g.opts.TeacherGuideTokens)),
	}
	materials := &subCall{
		section: sectionStudentMaterials,
		name:    "Student materials",
		pending: g.exec.Start(cctx, g.call(sectionStudentMaterials, route, materialsMsgs, g.opts.StudentMaterialsTokens)),
	}
	defer func() {
		cancel()
		<-guide.pending.Done()
		<-materials.pending.Done()
	}()

	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for !guide.done || !materials.done {
		select {
		case <-ctx.Done():
			return Result{}, nil, ctx.Err()
		case <-ticker.C:
		}
		for _, sc := range []*subCall{guide, materials} {
			if sc.done || !isDone(sc.pending) {
				continue
			}
			sc.done = true
			other := materials
			if sc == materials {
				other = guide
			}
			sc.settle()
			emit(progress(StageGenerating, completionMessage(sc, other)))
		}
	}

	emit(progress(StageParsing, "Merging results..."))

	switch {
	case guide.err != nil && materials.err != nil:
		return Result{}, nil, atStage(StageGenerating, &CombinedError{Scope: "parallel", First: guide.err, Second: materials.err})
	case guide.err != nil:
		g.log.Warn("sub-call failed, returning partial result", "section", guide.section, "error", guide.err)
		emit(warning(StageParsing, partialMessage(guide.section)))
		return newResult(nil, pick(materials.obj, sectionStudentMaterials)),
			[]PartialFailure{{Section: guide.section, Err: guide.err}}, nil
	case materials.err != nil:
		g.log.Warn("sub-call failed, returning partial result", "section", materials.section, "error", materials.err)
		emit(warning(StageParsing, partialMessage(materials.section)))
		return newResult(pick(guide.obj, sectionTeacherGuide), nil),
			[]PartialFailure{{Section: materials.section, Err: materials.err}}, nil
	}
	return newResult(pick(guide.obj, sectionTeacherGuide), pick(materials.obj, sectionStudentMaterials)), nil, nil
}

// settle reads the finished call and parses its text.
func (sc *subCall) settle() {
	text, err := sc.pending.Result()
	if err != nil {
		sc.err = err
		return
	}
	sc.obj, sc.err = parse.Object(text)
}

func isDone(p *executor.Pending) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

func completionMessage(sc, other *subCall) string {
	status := "complete"
	if sc.err != nil {
		status = "failed"
	}
	if other.done {
		return fmt.Sprintf("%s %s!", sc.name, status)
	}
	return fmt.Sprintf("%s %s, waiting for %s...", sc.name, status, strings.ToLower(other.name))
}

func partialMessage(section string) string {
	switch section {
	case sectionTeacherGuide:
		return "Teacher guide generation failed; returning student materials only."
	default:
		return "Student materials generation failed; returning teacher guide only."
	}
}

// pick returns obj[key] when it is an object. A sub-call asked for one
// section may still answer with the bare section or the full two-section
// shape; anything else is taken as the section itself.
func pick(obj map[string]any, key string) map[string]any {
	if v, ok := obj[key].(map[string]any); ok {
		return v
	}
	return obj
}
