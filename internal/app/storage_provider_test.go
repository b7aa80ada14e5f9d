package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type nopStore struct{}

func (nopStore) Upload(context.Context, string, io.Reader) (string, error) { return "", nil }
func (nopStore) Open(context.Context, string) (io.ReadCloser, error)       { return nil, gcp.ErrObjectNotFound }
func (nopStore) Close() error                                              { return nil }

func stubDocumentStore(t *testing.T, fn func(context.Context, *logger.Logger, gcp.StorageConfig) (gcp.DocumentStore, error)) {
	t.Helper()
	prev := newDocumentStore
	newDocumentStore = fn
	t.Cleanup(func() { newDocumentStore = prev })
}

func TestResolveDocumentStoreDisabled(t *testing.T) {
	stubDocumentStore(t, func(context.Context, *logger.Logger, gcp.StorageConfig) (gcp.DocumentStore, error) {
		t.Fatal("store must not be built when disabled")
		return nil, nil
	})
	store, err := resolveDocumentStore(context.Background(), logger.NewNop(), gcp.StorageConfig{Mode: gcp.StorageModeDisabled}, nil)
	if err != nil || store != nil {
		t.Fatalf("want nil store and nil error, got store=%v err=%v", store, err)
	}
}

func TestResolveDocumentStoreInvalidConfig(t *testing.T) {
	cfg := gcp.StorageConfig{Mode: gcp.StorageModeGCSEmulator, Bucket: "b", EmulatorHost: "fake-gcs:4443"}
	_, err := resolveDocumentStore(context.Background(), logger.NewNop(), cfg, cfg.Validate())

	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidConfig, got.Code)
	}
}

func TestResolveDocumentStoreConnectFailed(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	stubDocumentStore(t, func(context.Context, *logger.Logger, gcp.StorageConfig) (gcp.DocumentStore, error) {
		return nil, cause
	})
	_, err := resolveDocumentStore(context.Background(), logger.NewNop(), gcp.StorageConfig{Mode: gcp.StorageModeGCS, Bucket: "lessons"}, nil)

	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorConnectFailed || !errors.Is(err, cause) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveDocumentStoreSuccess(t *testing.T) {
	stubDocumentStore(t, func(context.Context, *logger.Logger, gcp.StorageConfig) (gcp.DocumentStore, error) {
		return nopStore{}, nil
	})
	store, err := resolveDocumentStore(context.Background(), logger.NewNop(), gcp.StorageConfig{Mode: gcp.StorageModeGCS, Bucket: "lessons"}, nil)
	if err != nil || store == nil {
		t.Fatalf("want store, got store=%v err=%v", store, err)
	}
}
