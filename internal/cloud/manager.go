// Package cloud keeps package archives authoritative in object storage while
// using the local packages directory only as transient staging.
package cloud

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/metacache"
	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
)

type Options struct {
	Gateway  storage.Gateway
	Cache    metacache.Cache
	Parser   archive.Parser
	Logger   zerolog.Logger
	Notifier notify.Notifier
	Metrics  metrics.Recorder

	Cloud    config.CloudConfig
	Packages config.PackagesConfig
	CacheCfg config.CacheConfig
	Catalog  config.CatalogConfig

	// Include and CacheKey are optional policy hooks.
	Include  IncludeFunc
	CacheKey CacheKeyFunc
	Now      func() time.Time
}

// Manager holds the components sharing one gateway.
type Manager struct {
	Gateway     storage.Gateway
	Staging     *Staging
	Folders     *Folders
	Coordinator *Coordinator
	Resolver    *Resolver
	Catalog     *Catalog
	Redirector  *Redirector
}

func New(opts Options) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, errors.New("cloud: gateway is required")
	}
	if opts.Packages.Dir == "" {
		return nil, errors.New("cloud: packages directory is required")
	}
	if opts.Cache == nil {
		opts.Cache = metacache.Noop{}
	}
	if opts.Parser == nil {
		opts.Parser = archive.NewZipParser()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base := opts.Logger.With().Str("bucket", opts.Gateway.Bucket()).Logger()
	logFor := func(component string) zerolog.Logger {
		return base.With().Str("component", component).Logger()
	}
	gw := instrument(opts.Gateway, opts.Metrics)

	staging := NewStaging(opts.Packages.Dir, opts.Packages.LockSlugs, opts.Packages.LockTimeout, base)
	staging.now = opts.Now
	infos := &infoCache{gw: gw, cache: opts.Cache, ttl: opts.CacheCfg.InfoTTL, log: logFor("info"), metrics: opts.Metrics}
	resolver := &Resolver{
		gw:       gw,
		staging:  staging,
		parser:   opts.Parser,
		cache:    opts.Cache,
		infos:    infos,
		ttl:      opts.CacheCfg.MetadataTTL,
		useETag:  opts.Cloud.FingerprintETag,
		cacheKey: opts.CacheKey,
		log:      logFor("resolver"),
		metrics:  opts.Metrics,
	}
	return &Manager{
		Gateway: gw,
		Staging: staging,
		Folders: NewFolders(gw, opts.Notifier, base),
		Coordinator: &Coordinator{
			gw:       gw,
			staging:  staging,
			resolver: resolver,
			infos:    infos,
			log:      logFor("coordinator"),
		},
		Resolver: resolver,
		Catalog: &Catalog{
			gw:          gw,
			resolver:    resolver,
			include:     opts.Include,
			parallelism: opts.Catalog.Parallelism,
			log:         logFor("catalog"),
		},
		Redirector: &Redirector{
			gw:      gw,
			enabled: opts.Cloud.Enabled,
			now:     opts.Now,
			log:     logFor("redirector"),
			metrics: opts.Metrics,
		},
	}, nil
}
