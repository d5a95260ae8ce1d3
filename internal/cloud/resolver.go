package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/metacache"
	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/storage"
)

// CacheKeyFunc may replace the computed metadata cache key.
type CacheKeyFunc func(key, slug, localPath string, info storage.ObjectInfo) string

// Resolver turns remote archives into package metadata through the metadata cache.
type Resolver struct {
	gw       storage.Gateway
	staging  *Staging
	parser   archive.Parser
	cache    metacache.Cache
	infos    *infoCache
	ttl      time.Duration
	useETag  bool
	cacheKey CacheKeyFunc
	log      zerolog.Logger
	metrics  metrics.Recorder
}

// KeyFor returns the metadata cache key for slug observed as info.
func (r *Resolver) KeyFor(slug string, info storage.ObjectInfo) string {
	path := r.staging.Stage(slug)
	key := CacheKey(slug, fingerprint(path, info, r.useETag))
	if r.cacheKey != nil {
		key = r.cacheKey(key, slug, path, info)
	}
	return key
}

// Resolve returns metadata for slug's archive as described by info. A cache
// hit never touches the object store.
func (r *Resolver) Resolve(ctx context.Context, slug string, info storage.ObjectInfo) (*archive.Metadata, bool) {
	meta, ok := r.resolve(ctx, slug, info)
	if !ok {
		return nil, false
	}
	r.annotate(meta, slug, info)
	return meta, true
}

func (r *Resolver) resolve(ctx context.Context, slug string, info storage.ObjectInfo) (*archive.Metadata, bool) {
	key := r.KeyFor(slug, info)
	log := r.log.With().Str("slug", slug).Str("key", info.Key).Logger()

	if meta, ok := r.cached(ctx, key, log); ok {
		return meta, true
	}

	path, done, err := r.staging.Checkout(ctx, slug)
	if err != nil {
		log.Error().Err(err).Str("op", "resolve").Msg("stage package")
		return nil, false
	}
	defer done()

	found, err := r.gw.Fetch(ctx, storage.PackageKey(slug), path)
	if err != nil {
		log.Error().Err(err).Str("op", "fetch").Msg("fetch remote package")
		return nil, false
	}
	if !found {
		log.Debug().Str("op", "fetch").Msg("remote package vanished")
		return nil, false
	}

	meta, err := r.parser.Parse(path)
	if err != nil {
		var perr *archive.ParseError
		if errors.As(err, &perr) {
			log.Error().Err(err).Str("path", path).Msg("corrupt archive; will not be displayed or delivered")
		} else {
			log.Error().Err(err).Str("path", path).Msg("parse package")
		}
		return nil, false
	}
	meta.Slug = slug

	raw, err := json.Marshal(meta)
	if err == nil {
		err = r.cache.Set(ctx, key, raw, r.ttl)
	}
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("store package metadata")
	}
	return meta, true
}

func (r *Resolver) cached(ctx context.Context, key string, log zerolog.Logger) (*archive.Metadata, bool) {
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("metadata cache read failed")
	}
	if !ok {
		r.metrics.RecordCacheLookup("metadata", false)
		return nil, false
	}
	var meta archive.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("discarding unreadable cache entry")
		r.metrics.RecordCacheLookup("metadata", false)
		return nil, false
	}
	r.metrics.RecordCacheLookup("metadata", true)
	return &meta, true
}

// Cached reports whether metadata for slug at info is already cached.
func (r *Resolver) Cached(ctx context.Context, slug string, info storage.ObjectInfo) bool {
	_, ok, err := r.cache.Get(ctx, r.KeyFor(slug, info))
	return err == nil && ok
}

func (r *Resolver) annotate(meta *archive.Metadata, slug string, info storage.ObjectInfo) {
	if meta.Type != archive.TypeGeneric {
		if meta.DetailsURL != "" {
			meta.Type = archive.TypeTheme
		} else {
			meta.Type = archive.TypePlugin
		}
	}
	meta.Slug = slug
	meta.FileName = slug + ".zip"
	meta.FilePath = r.staging.Stage(slug)
	meta.FileSize = info.Size
	meta.FileLastModified = info.Modified.Unix()
}

// PackageInfo looks up slug's remote object and resolves its metadata.
func (r *Resolver) PackageInfo(ctx context.Context, slug string) (*archive.Metadata, bool) {
	info, ok, err := r.infos.Lookup(ctx, slug)
	if err != nil {
		r.log.Error().Err(err).Str("slug", slug).Str("op", "info").Msg("remote package lookup")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return r.Resolve(ctx, slug, info)
}
