package cloud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/metacache"
	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/storage"
)

type cachedInfo struct {
	Present  bool      `json:"present"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	ETag     string    `json:"etag,omitempty"`
}

// infoCache memoizes package object lookups, absence included, for a short ttl.
type infoCache struct {
	gw      storage.Gateway
	cache   metacache.Cache
	ttl     time.Duration
	log     zerolog.Logger
	metrics metrics.Recorder
}

func infoKey(slug string) string {
	return slug + "-getObjectInfo"
}

// Lookup returns the remote object info of slug's archive.
func (c *infoCache) Lookup(ctx context.Context, slug string) (storage.ObjectInfo, bool, error) {
	key := storage.PackageKey(slug)
	if c.ttl > 0 {
		raw, ok, err := c.cache.Get(ctx, infoKey(slug))
		if err != nil {
			c.log.Warn().Err(err).Str("slug", slug).Msg("object info cache read failed")
		}
		var ci cachedInfo
		if ok && json.Unmarshal(raw, &ci) == nil {
			c.metrics.RecordCacheLookup("info", true)
			if !ci.Present {
				return storage.ObjectInfo{}, false, nil
			}
			return storage.ObjectInfo{Key: key, Size: ci.Size, Modified: ci.Modified, ETag: ci.ETag}, true, nil
		}
		c.metrics.RecordCacheLookup("info", false)
	}

	info, ok, err := c.gw.Info(ctx, key)
	if err != nil {
		return storage.ObjectInfo{}, false, err
	}
	if c.ttl > 0 {
		raw, _ := json.Marshal(cachedInfo{Present: ok, Size: info.Size, Modified: info.Modified, ETag: info.ETag})
		if err := c.cache.Set(ctx, infoKey(slug), raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("slug", slug).Msg("object info cache write failed")
		}
	}
	return info, ok, nil
}

// Forget drops the memoized lookup for slug.
func (c *infoCache) Forget(ctx context.Context, slug string) {
	if err := c.cache.Delete(ctx, infoKey(slug)); err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Msg("object info cache delete failed")
	}
}
