package storage

import (
	"os"
	"path/filepath"

	"github.com/rowjay/pkgcache/internal/config"
)

// New builds the gateway selected by cfg.Backend.
func New(cfg config.CloudConfig) (Gateway, error) {
	switch cfg.Backend {
	case "s3", "":
		if cfg.Endpoint == "" || cfg.Bucket == "" {
			return nil, &config.ConfigError{Field: "cloud.endpoint", Reason: "s3 endpoint and bucket (storage unit) are required"}
		}
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, &config.ConfigError{Field: "cloud.access_key", Reason: "s3 access key and secret key are required"}
		}
		return NewS3(S3Options{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			AccessKey:       cfg.AccessKey,
			SecretKey:       cfg.SecretKey,
			SessionToken:    cfg.SessionToken,
			UseSSL:          cfg.UseSSL,
			ForcePathStyle:  cfg.ForcePathStyle,
			TLSInsecureSkip: cfg.TLSInsecureSkip,
		})
	case "local":
		if cfg.Local.Path == "" {
			return nil, &config.ConfigError{Field: "cloud.local.path", Reason: "local backend path is required"}
		}
		local := NewLocal(cfg.Local.Path, cfg.Bucket, cfg.Local.BaseURL, cfg.SecretKey)
		if err := os.MkdirAll(filepath.Join(local.BasePath, local.Bucket()), 0o750); err != nil {
			return nil, transportErr("create bucket", "", err)
		}
		return local, nil
	default:
		return nil, &config.ConfigError{Field: "cloud.backend", Reason: "unsupported storage backend: " + cfg.Backend}
	}
}
