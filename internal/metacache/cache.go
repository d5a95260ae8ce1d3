// Package metacache is the generic key-value cache behind package metadata
// and object-info lookups. Values are opaque bytes with a bounded lifetime.
package metacache

import (
	"context"
	"fmt"
	"time"

	"github.com/rowjay/pkgcache/internal/config"
)

// Cache is safe for concurrent use. A ttl of zero means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New builds the cache selected by cfg.Backend.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Dir, cfg.Compression)
	case "redis":
		return NewRedis(cfg)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
