// Package curriculum drives one curriculum generation request from prompt
// rendering through model calls, parsing and merging to a terminal event.
package curriculum

import "time"

// Request is the caller's class configuration. It is validated once at the
// boundary (Normalize) and treated as immutable afterwards.
type Request struct {
	Grade                int    `json:"grade"`
	Subject              string `json:"subject"`
	Topic                string `json:"topic"`
	SessionLengthMinutes int    `json:"session_length_minutes"`
	NumDays              int    `json:"num_days"`
	LearningGoalType     string `json:"learning_goal_type"`
	GroupFormat          string `json:"group_format"`
	PedagogicalApproach  string `json:"pedagogical_approach,omitempty"`
	IncludeUDLDocs       bool   `json:"include_udl_docs,omitempty"`

	// Model is a registry key; empty selects the default model.
	Model string `json:"model,omitempty"`
	// Strategy overrides the configured call strategy for this request.
	Strategy string `json:"strategy,omitempty"`
	// SessionID is assigned by the generator when empty.
	SessionID string `json:"-"`
}

// promptInput is the request as the model sees it.
type promptInput struct {
	Grade                int    `json:"grade"`
	Subject              string `json:"subject"`
	Topic                string `json:"topic"`
	SessionLengthMinutes int    `json:"session_length_minutes"`
	NumDays              int    `json:"num_days"`
	LearningGoalType     string `json:"learning_goal_type"`
	GroupFormat          string `json:"group_format"`
	PedagogicalApproach  string `json:"pedagogical_approach,omitempty"`
}

func (r Request) promptInput() promptInput {
	return promptInput{
		Grade:                r.Grade,
		Subject:              r.Subject,
		Topic:                r.Topic,
		SessionLengthMinutes: r.SessionLengthMinutes,
		NumDays:              r.NumDays,
		LearningGoalType:     r.LearningGoalType,
		GroupFormat:          r.GroupFormat,
		PedagogicalApproach:  r.PedagogicalApproach,
	}
}

// Result always carries both sections. A side lost to a partial failure is an
// empty object, never nil.
type Result struct {
	TeacherGuide     map[string]any `json:"teacher_guide"`
	StudentMaterials map[string]any `json:"student_materials"`
}

func newResult(guide, materials map[string]any) Result {
	if guide == nil {
		guide = map[string]any{}
	}
	if materials == nil {
		materials = map[string]any{}
	}
	return Result{TeacherGuide: guide, StudentMaterials: materials}
}

type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

type Stage string

const (
	StageLoading    Stage = "loading"
	StageGenerating Stage = "generating"
	StageParsing    Stage = "parsing"
	StageFallback   Stage = "fallback"
	StageDocument   Stage = "docx"
	StageComplete   Stage = "complete"
)

const LevelWarning = "warning"

// Event is one message on the progress stream. Progress events carry Stage and
// Message; the terminal result event carries Result and SessionID; the
// terminal error event carries only a caller-safe Message.
type Event struct {
	Type      EventType `json:"type"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Level     string    `json:"level,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Result    *Result   `json:"curriculum,omitempty"`
	Document  string    `json:"document,omitempty"`
	Model     string    `json:"model,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Success   bool      `json:"success,omitempty"`

	FallbackUsed bool `json:"fallback_used,omitempty"`

	// err is the internal cause of an error event. It never leaves the process.
	err     error
	outcome *Outcome
}

// Err returns the internal cause of an error event.
func (e Event) Err() error { return e.err }

// Outcome returns the full outcome carried by a result event.
func (e Event) Outcome() *Outcome { return e.outcome }

// Outcome is what the blocking Generate returns.
type Outcome struct {
	SessionID    string
	Result       Result
	Model        string
	FallbackUsed bool
	Strategy     string
	Document     string
	Partial      []PartialFailure
	Warnings     []string
	Duration     time.Duration
}
