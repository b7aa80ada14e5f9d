package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/curriculum-backend/internal/platform/envutil"
)

type StorageMode string

const (
	StorageModeDisabled    StorageMode = "disabled"
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Mode         StorageMode
	Bucket       string
	Prefix       string
	EmulatorHost string
	// PublicBaseURL replaces https://storage.googleapis.com in public links.
	PublicBaseURL string
}

// StorageConfigFromEnv resolves the document store. An empty GCS_BUCKET_NAME
// disables uploads; STORAGE_EMULATOR_HOST selects the emulator.
func StorageConfigFromEnv() (StorageConfig, error) {
	cfg := StorageConfig{
		Bucket:        envutil.String("GCS_BUCKET_NAME", ""),
		Prefix:        strings.Trim(envutil.String("GCS_OBJECT_PREFIX", "curricula"), "/"),
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
	}
	switch {
	case cfg.Bucket == "":
		cfg.Mode = StorageModeDisabled
	case cfg.EmulatorHost != "":
		cfg.Mode = StorageModeGCSEmulator
	default:
		cfg.Mode = StorageModeGCS
	}
	return cfg, cfg.Validate()
}

func (cfg StorageConfig) Enabled() bool { return cfg.Mode != StorageModeDisabled && cfg.Mode != "" }

func (cfg StorageConfig) Validate() error {
	switch cfg.Mode {
	case StorageModeDisabled, "":
		return nil
	case StorageModeGCS, StorageModeGCSEmulator:
	default:
		return fmt.Errorf("invalid storage mode %q", cfg.Mode)
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("storage mode %q requires GCS_BUCKET_NAME", cfg.Mode)
	}
	for name, raw := range map[string]string{
		"STORAGE_EMULATOR_HOST":          cfg.EmulatorHost,
		"OBJECT_STORAGE_PUBLIC_BASE_URL": cfg.PublicBaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s=%q; expected absolute URL like http://fake-gcs:4443", name, raw)
		}
	}
	return nil
}

// ObjectKey places name under the configured prefix.
func (cfg StorageConfig) ObjectKey(name string) string {
	if cfg.Prefix == "" {
		return name
	}
	return cfg.Prefix + "/" + name
}

// PublicURL is the browser-facing link for an object key.
func (cfg StorageConfig) PublicURL(key string) string {
	base := cfg.PublicBaseURL
	if base == "" && cfg.Mode == StorageModeGCSEmulator {
		base = cfg.EmulatorHost
	}
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return fmt.Sprintf("%s/%s/%s", base, cfg.Bucket, (&url.URL{Path: key}).EscapedPath())
}
