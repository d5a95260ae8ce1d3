package config

import (
	"errors"
	"strings"

	"github.com/rowjay/pkgcache/internal/util"
)

// Validate checks settings that would otherwise fail at serve time.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Packages.Dir == "" {
		errs = append(errs, &ConfigError{Field: "packages.dir", Reason: "packages directory is required"})
	}
	switch cfg.Cache.Backend {
	case "memory", "file", "redis", "none", "":
	default:
		errs = append(errs, &ConfigError{Field: "cache.backend", Reason: "unsupported cache backend: " + cfg.Cache.Backend})
	}
	if cfg.Cache.Backend == "file" && cfg.Cache.Dir == "" {
		errs = append(errs, &ConfigError{Field: "cache.dir", Reason: "file cache requires a directory"})
	}
	switch cfg.Cache.Compression {
	case "", "zstd", "gzip", "none":
	default:
		errs = append(errs, &ConfigError{Field: "cache.compression", Reason: "unsupported compression: " + cfg.Cache.Compression})
	}
	if cfg.Cloud.Enabled {
		errs = append(errs, ValidateCloud(cfg.Cloud)...)
	}
	if _, err := util.ParseWindow(cfg.Schedule.WindowStart, cfg.Schedule.WindowEnd, cfg.Schedule.Timezone); err != nil {
		errs = append(errs, &ConfigError{Field: "schedule", Reason: err.Error()})
	}
	return errors.Join(errs...)
}

// ValidateCloud returns one ConfigError per missing cloud storage setting.
func ValidateCloud(cloud CloudConfig) []error {
	var errs []error
	switch strings.ToLower(cloud.Backend) {
	case "s3", "":
		required := map[string]string{
			"cloud.access_key": cloud.AccessKey,
			"cloud.secret_key": cloud.SecretKey,
			"cloud.endpoint":   cloud.Endpoint,
			"cloud.bucket":     cloud.Bucket,
		}
		for _, field := range []string{"cloud.access_key", "cloud.secret_key", "cloud.endpoint", "cloud.bucket"} {
			if strings.TrimSpace(required[field]) == "" {
				errs = append(errs, &ConfigError{Field: field, Reason: "required when cloud storage is enabled"})
			}
		}
	case "local":
		if cloud.Local.Path == "" {
			errs = append(errs, &ConfigError{Field: "cloud.local.path", Reason: "required for the local backend"})
		}
	default:
		errs = append(errs, &ConfigError{Field: "cloud.backend", Reason: "unsupported storage backend: " + cloud.Backend})
	}
	return errs
}
