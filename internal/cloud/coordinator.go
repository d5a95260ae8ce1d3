package cloud

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/storage"
)

// ErrNotRemote is returned by WithStaged when the package has no remote copy.
var ErrNotRemote = errors.New("package not found in cloud storage")

// Coordinator decides, per package lifecycle event, whether to push, fetch or
// skip. It keeps no state besides the shared caches.
type Coordinator struct {
	gw       storage.Gateway
	staging  *Staging
	resolver *Resolver
	infos    *infoCache
	log      zerolog.Logger
}

// AfterLocalSave pushes a freshly built local archive and then removes it,
// whether or not the upload succeeded.
func (c *Coordinator) AfterLocalSave(ctx context.Context, slug string, localReady bool) bool {
	return c.push(ctx, slug, localReady, nil)
}

// PushFile stages src as slug's freshly built archive and pushes it.
func (c *Coordinator) PushFile(ctx context.Context, slug, src string) bool {
	return c.push(ctx, slug, true, func(path string) error {
		if filepath.Clean(src) == filepath.Clean(path) {
			return nil
		}
		return copyFile(src, path)
	})
}

func (c *Coordinator) push(ctx context.Context, slug string, localReady bool, prepare func(path string) error) bool {
	log := c.log.With().Str("slug", slug).Str("op", "push").Logger()
	// A busy slug does not stop the push. The staged build is released either way.
	unlock, err := c.staging.Lock(ctx, slug)
	if err != nil {
		log.Warn().Err(err).Msg("slug busy; pushing without slug lock")
	}
	defer unlock()
	path := c.staging.Stage(slug)
	defer c.staging.Release(path)

	if !localReady {
		return false
	}
	if prepare != nil {
		if err := prepare(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("stage package")
			return false
		}
	}
	key := storage.PackageKey(slug)
	if err := c.gw.Put(ctx, key, path); err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload package")
		return false
	}
	c.infos.Forget(ctx, slug)
	log.Info().Str("key", key).Msg("package uploaded")
	return true
}

// copyFile replaces dst atomically so readers never see a partial archive.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"-*.part")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Rename(out.Name(), dst)
}

// ShouldSaveLocal returns save unchanged unless checkRemote is set, in which
// case a local copy is wanted only when the remote object is missing.
func (c *Coordinator) ShouldSaveLocal(ctx context.Context, slug string, save, checkRemote bool) bool {
	if !checkRemote {
		return save
	}
	_, ok, err := c.infos.Lookup(ctx, slug)
	if err != nil {
		c.log.Error().Err(err).Str("slug", slug).Str("op", "info").Msg("remote package lookup")
		return save
	}
	return !ok
}

// OnCacheMiss warms the metadata cache from the remote archive.
func (c *Coordinator) OnCacheMiss(ctx context.Context, slug string) {
	info, ok, err := c.infos.Lookup(ctx, slug)
	if err != nil {
		c.log.Error().Err(err).Str("slug", slug).Str("op", "info").Msg("remote package lookup")
		return
	}
	if !ok || c.resolver.Cached(ctx, slug, info) {
		return
	}
	c.resolver.resolve(ctx, slug, info)
}

// RefreshLocalMeta returns meta when set; otherwise it parses the remote
// archive. The staging file is removed in either case.
func (c *Coordinator) RefreshLocalMeta(ctx context.Context, slug string, meta *archive.Metadata) *archive.Metadata {
	log := c.log.With().Str("slug", slug).Str("op", "refresh").Logger()
	path, done, err := c.staging.Checkout(ctx, slug)
	if err != nil {
		log.Warn().Err(err).Msg("stage package")
		return meta
	}
	defer done()

	if meta != nil {
		return meta
	}
	found, err := c.gw.Fetch(ctx, storage.PackageKey(slug), path)
	if err != nil {
		log.Error().Err(err).Msg("fetch remote package")
		return nil
	}
	if !found {
		return nil
	}
	parsed, err := c.resolver.parser.Parse(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("corrupt archive; will not be displayed or delivered")
		return nil
	}
	parsed.Slug = slug
	return parsed
}

// CacheKey returns the fingerprint based key when the remote object exists,
// fallback otherwise.
func (c *Coordinator) CacheKey(ctx context.Context, slug, fallback string) string {
	info, ok, err := c.infos.Lookup(ctx, slug)
	if err != nil {
		c.log.Error().Err(err).Str("slug", slug).Str("op", "info").Msg("remote package lookup")
		return fallback
	}
	if !ok {
		return fallback
	}
	return c.resolver.KeyFor(slug, info)
}

// WithStaged fetches the remote archive into a private staging file, hands its
// path to fn and removes it once fn returns. The slug lock is not held while
// fn runs, so slow clients never block metadata resolution.
func (c *Coordinator) WithStaged(ctx context.Context, slug string, fn func(path string) error) error {
	path, err := c.staging.Private(slug)
	if err != nil {
		return err
	}
	defer c.staging.Release(path)

	found, err := c.gw.Fetch(ctx, storage.PackageKey(slug), path)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotRemote
	}
	return fn(path)
}
