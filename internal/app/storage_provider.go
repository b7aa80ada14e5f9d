package app

import (
	"context"
	"fmt"

	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var newDocumentStore = gcp.NewDocumentStore

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code   StorageProviderBootstrapErrorCode
	Mode   string
	Bucket string
	Cause  error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q bucket=%q): %v", e.Code, e.Mode, e.Bucket, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveDocumentStore returns nil without error when uploads are disabled.
func resolveDocumentStore(ctx context.Context, log *logger.Logger, cfg gcp.StorageConfig, cfgErr error) (gcp.DocumentStore, error) {
	if cfgErr != nil {
		err := &StorageProviderBootstrapError{
			Code:   StorageProviderBootstrapErrorInvalidConfig,
			Mode:   string(cfg.Mode),
			Bucket: cfg.Bucket,
			Cause:  cfgErr,
		}
		log.Error("Object storage provider selection failed", "mode", cfg.Mode, "error_code", err.Code, "error", cfgErr)
		return nil, err
	}
	if !cfg.Enabled() {
		log.Info("Object storage disabled; documents stay in the output directory")
		return nil, nil
	}

	log.Info("Selecting object storage provider", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	store, err := newDocumentStore(ctx, log, cfg)
	if err != nil {
		bootErr := &StorageProviderBootstrapError{
			Code:   StorageProviderBootstrapErrorConnectFailed,
			Mode:   string(cfg.Mode),
			Bucket: cfg.Bucket,
			Cause:  err,
		}
		log.Error("Object storage provider bootstrap failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}
	return store, nil
}
