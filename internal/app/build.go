package app

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/cloud"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/metacache"
	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
)

// Build wires the gateway, caches and cloud components described by cfg.
// The returned close func releases the metadata cache connection.
func Build(cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer) (*App, func() error, error) {
	notifier := notify.FromConfig(cfg.Notifications)
	parser := archive.NewZipParser()
	closeFn := func() error { return nil }

	if !cfg.Cloud.Enabled {
		return New(cfg, nil, parser, log, notifier), closeFn, nil
	}

	gw, err := storage.New(cfg.Cloud)
	if err != nil {
		return nil, closeFn, fmt.Errorf("init storage: %w", err)
	}
	cache, err := metacache.New(cfg.Cache)
	if err != nil {
		return nil, closeFn, fmt.Errorf("init cache: %w", err)
	}
	if c, ok := cache.(io.Closer); ok {
		closeFn = c.Close
	}
	var rec metrics.Recorder = metrics.Nop{}
	if reg != nil {
		rec = metrics.NewPrometheusRecorder(reg)
	}
	manager, err := cloud.New(cloud.Options{
		Gateway:  gw,
		Cache:    cache,
		Parser:   parser,
		Logger:   log,
		Notifier: notifier,
		Metrics:  rec,
		Cloud:    cfg.Cloud,
		Packages: cfg.Packages,
		CacheCfg: cfg.Cache,
		Catalog:  cfg.Catalog,
	})
	if err != nil {
		_ = closeFn()
		return nil, func() error { return nil }, err
	}
	return New(cfg, manager, parser, log, notifier), closeFn, nil
}
