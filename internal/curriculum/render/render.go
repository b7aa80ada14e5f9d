// Package render writes finished curricula as JSON documents and serves them
// back for download.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var (
	ErrInvalidName = errors.New("invalid document name")
	ErrNotFound    = errors.New("document not found")

	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

type Renderer struct {
	log   *logger.Logger
	dir   string
	store gcp.DocumentStore
	now   func() time.Time
}

// New renders into dir. store may be nil; uploads are skipped then.
func New(log *logger.Logger, dir string, store gcp.DocumentStore) *Renderer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Renderer{
		log:   log.With("component", "renderer"),
		dir:   dir,
		store: store,
		now:   time.Now,
	}
}

func (r *Renderer) Dir() string { return r.dir }

type document struct {
	Metadata         metadata       `json:"metadata"`
	TeacherGuide     map[string]any `json:"teacher_guide"`
	StudentMaterials map[string]any `json:"student_materials"`
}

type metadata struct {
	SessionID   string             `json:"session_id"`
	Model       string             `json:"model"`
	GeneratedAt time.Time          `json:"generated_at"`
	Request     curriculum.Request `json:"request"`
}

// FileName is curriculum_<grade>_<subject>_<yyyymmdd_hhmmss>_<first 8 of session>.json.
func FileName(doc curriculum.Document, at time.Time) string {
	subject := strings.Trim(unsafeChars.ReplaceAllString(doc.Request.Subject, "_"), "_")
	if subject == "" {
		subject = "general"
	}
	id := unsafeChars.ReplaceAllString(doc.SessionID, "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("curriculum_%d_%s_%s_%s.json", doc.Request.Grade, subject, at.UTC().Format("20060102_150405"), id)
}

func (r *Renderer) Render(ctx context.Context, doc curriculum.Document) (string, error) {
	at := doc.CreatedAt
	if at.IsZero() {
		at = r.now()
	}
	body, err := json.MarshalIndent(document{
		Metadata: metadata{
			SessionID:   doc.SessionID,
			Model:       doc.Model,
			GeneratedAt: at.UTC(),
			Request:     doc.Request,
		},
		TeacherGuide:     teacherGuide(doc),
		StudentMaterials: doc.Result.StudentMaterials,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	name := FileName(doc, at)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, ".render-*")
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write document: %w", err)
	}

	if r.store != nil {
		url, err := r.store.Upload(ctx, name, bytes.NewReader(body))
		if err != nil {
			r.log.Warn("document upload failed; keeping local copy", "document", name, "error", err)
		} else {
			r.log.Info("document uploaded", "document", name, "url", url)
		}
	}
	return name, nil
}

const udlSection = "udl_alignment"

// teacherGuide drops the UDL alignment section unless the request asked for
// UDL documentation. The result itself is left untouched.
func teacherGuide(doc curriculum.Document) map[string]any {
	guide := doc.Result.TeacherGuide
	if doc.Request.IncludeUDLDocs {
		return guide
	}
	if _, ok := guide[udlSection]; !ok {
		return guide
	}
	out := make(map[string]any, len(guide)-1)
	for k, v := range guide {
		if k != udlSection {
			out[k] = v
		}
	}
	return out
}

// ValidName rejects anything that is not a bare file name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

// Open returns a rendered document from the output dir, falling back to the
// bucket when the local copy is gone.
func (r *Renderer) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(r.dir, name))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if r.store == nil {
		return nil, ErrNotFound
	}
	rc, err := r.store.Open(ctx, name)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return rc, err
}
