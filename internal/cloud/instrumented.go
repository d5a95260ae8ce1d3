package cloud

import (
	"context"
	"time"

	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/storage"
)

// instrumented reports latency and outcome of every gateway call.
type instrumented struct {
	storage.Gateway
	rec metrics.Recorder
}

func instrument(gw storage.Gateway, rec metrics.Recorder) storage.Gateway {
	if rec == nil {
		return gw
	}
	return instrumented{Gateway: gw, rec: rec}
}

func (g instrumented) observe(op string, start time.Time, err error) {
	g.rec.RecordRemoteOp(op, err == nil, time.Since(start))
}

func (g instrumented) Info(ctx context.Context, key string) (storage.ObjectInfo, bool, error) {
	start := time.Now()
	info, ok, err := g.Gateway.Info(ctx, key)
	g.observe("info", start, err)
	return info, ok, err
}

func (g instrumented) Fetch(ctx context.Context, key, dest string) (bool, error) {
	start := time.Now()
	ok, err := g.Gateway.Fetch(ctx, key, dest)
	g.observe("fetch", start, err)
	return ok, err
}

func (g instrumented) Put(ctx context.Context, key, src string) error {
	start := time.Now()
	err := g.Gateway.Put(ctx, key, src)
	g.observe("put", start, err)
	return err
}

func (g instrumented) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	start := time.Now()
	objs, err := g.Gateway.List(ctx, prefix)
	g.observe("list", start, err)
	return objs, err
}

func (g instrumented) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	url, err := g.Gateway.SignedURL(ctx, key, ttl)
	g.observe("signed_url", start, err)
	return url, err
}

func (g instrumented) Buckets(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := g.Gateway.Buckets(ctx)
	g.observe("buckets", start, err)
	return names, err
}
