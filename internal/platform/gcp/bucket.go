package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// DocumentStore keeps rendered curriculum documents in a GCS bucket.
type DocumentStore interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Close() error
}

type bucketStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    StorageConfig
}

func NewDocumentStore(ctx context.Context, log *logger.Logger, cfg StorageConfig) (DocumentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("document store disabled: GCS_BUCKET_NAME is empty")
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "DocumentStore")
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"emulator_host", cfg.EmulatorHost,
	)
	return &bucketStore{log: serviceLog, client: client, cfg: cfg}, nil
}

func newStorageClient(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	}
}

// Upload writes the object and returns its public URL.
func (s *bucketStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	key := s.cfg.ObjectKey(name)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Debug("document uploaded", "bucket", s.cfg.Bucket, "key", key)
	return s.cfg.PublicURL(key), nil
}

func (s *bucketStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.cfg.ObjectKey(name)
	rc, err := s.client.Bucket(s.cfg.Bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q: %w", key, err)
	}
	return rc, nil
}

func (s *bucketStore) Close() error { return s.client.Close() }

func contentTypeForKey(key string) string {
	switch s := strings.ToLower(key); {
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(s, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
