package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type memStore struct {
	objects map[string][]byte
	failPut bool
}

func (m *memStore) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	if m.failPut {
		return "", errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[name] = b
	return "https://storage.example/" + name, nil
}

func (m *memStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	b, ok := m.objects[name]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Close() error { return nil }

func sampleDoc() curriculum.Document {
	return curriculum.Document{
		SessionID: "3f2a9c1e-0000-4000-8000-000000000000",
		Request:   curriculum.Request{Grade: 6, Subject: "Math", Topic: "equivalent ratios", NumDays: 1},
		Result: curriculum.Result{
			TeacherGuide:     map[string]any{"lesson_title": "Ratios"},
			StudentMaterials: map[string]any{},
		},
		Model:     "gemini-3-pro",
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestFileName(t *testing.T) {
	doc := sampleDoc()
	assert.Equal(t, "curriculum_6_Math_20260304_050607_3f2a9c1e.json", FileName(doc, doc.CreatedAt))

	doc.Request.Subject = "../Social Studies"
	assert.Equal(t, "curriculum_6_Social_Studies_20260304_050607_3f2a9c1e.json", FileName(doc, doc.CreatedAt))
}

func TestRenderWritesAndUploads(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{objects: map[string][]byte{}}
	r := New(logger.NewNop(), dir, store)

	name, err := r.Render(context.Background(), sampleDoc())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]any{"lesson_title": "Ratios"}, got["teacher_guide"])
	assert.Equal(t, map[string]any{}, got["student_materials"])
	assert.Equal(t, "gemini-3-pro", got["metadata"].(map[string]any)["model"])
	assert.Equal(t, raw, store.objects[name])
}

func TestRenderUploadFailureKeepsLocalCopy(t *testing.T) {
	dir := t.TempDir()
	r := New(logger.NewNop(), dir, &memStore{objects: map[string][]byte{}, failPut: true})

	name, err := r.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, name))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{objects: map[string][]byte{"remote.json": []byte(`{}`)}}
	r := New(logger.NewNop(), dir, store)

	name, err := r.Render(context.Background(), sampleDoc())
	require.NoError(t, err)

	rc, err := r.Open(context.Background(), name)
	require.NoError(t, err)
	rc.Close()

	rc, err = r.Open(context.Background(), "remote.json")
	require.NoError(t, err)
	rc.Close()

	_, err = r.Open(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"../etc/passwd", "a/b.json", `..\x.json`, "..", ""} {
		_, err = r.Open(context.Background(), bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestRenderUDLSectionFollowsRequest(t *testing.T) {
	udl := map[string]any{"summary": "Multiple means of engagement"}
	readGuide := func(t *testing.T, include bool) map[string]any {
		t.Helper()
		r := New(logger.NewNop(), t.TempDir(), nil)
		doc := sampleDoc()
		doc.Request.IncludeUDLDocs = include
		doc.Result.TeacherGuide = map[string]any{"lesson_title": "Ratios", "udl_alignment": udl}

		name, err := r.Render(context.Background(), doc)
		require.NoError(t, err)
		assert.Contains(t, doc.Result.TeacherGuide, "udl_alignment")

		raw, err := os.ReadFile(filepath.Join(r.Dir(), name))
		require.NoError(t, err)
		var out struct {
			TeacherGuide map[string]any `json:"teacher_guide"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out.TeacherGuide
	}

	without := readGuide(t, false)
	assert.Equal(t, "Ratios", without["lesson_title"])
	assert.NotContains(t, without, "udl_alignment")

	with := readGuide(t, true)
	assert.Equal(t, udl, with["udl_alignment"])
}
