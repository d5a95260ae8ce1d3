package cloud

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/lock"
	"github.com/rowjay/pkgcache/internal/util"
)

// Staging owns the transient local copies of package archives. Every caller
// that stages a path releases it on its own exit path.
type Staging struct {
	dir         string
	lockSlugs   bool
	lockTimeout time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

func NewStaging(dir string, lockSlugs bool, lockTimeout time.Duration, log zerolog.Logger) *Staging {
	return &Staging{
		dir:         dir,
		lockSlugs:   lockSlugs,
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "staging").Logger(),
		now:         time.Now,
	}
}

// Dir is the packages directory.
func (s *Staging) Dir() string { return s.dir }

// Stage returns the canonical local path for slug. The file may not exist.
func (s *Staging) Stage(slug string) string {
	return util.PackagePath(s.dir, slug)
}

// Release removes path. A missing file is not an error.
func (s *Staging) Release(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error().Err(err).Str("path", path).Msg("release staging file")
	}
}

// privateDir holds per-request copies that never collide with the canonical
// staging path of their slug.
const privateDir = ".private"

// Private creates an empty per-request staging file for slug. The caller
// removes it with Release.
func (s *Staging) Private(slug string) (string, error) {
	dir := filepath.Join(s.dir, privateDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, slug+"-*.zip")
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		s.Release(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Checkout returns a staging path for reading slug's remote archive. It is
// the canonical path when the slug lock is free, otherwise a private copy.
// done removes the path and drops the lock.
func (s *Staging) Checkout(ctx context.Context, slug string) (string, func(), error) {
	unlock, err := s.Lock(ctx, slug)
	if err == nil {
		path := s.Stage(slug)
		return path, func() {
			s.Release(path)
			unlock()
		}, nil
	}
	s.log.Debug().Err(err).Str("slug", slug).Msg("slug busy; using private staging file")
	path, perr := s.Private(slug)
	if perr != nil {
		return "", func() {}, errors.Join(err, perr)
	}
	return path, func() { s.Release(path) }, nil
}

// Lock serializes stage, fetch and release for one slug. The returned func
// releases the lock and is never nil.
func (s *Staging) Lock(ctx context.Context, slug string) (func(), error) {
	if !s.lockSlugs {
		return func() {}, nil
	}
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	l, err := lock.AcquireContext(ctx, util.LockPath(s.dir, slug), 25*time.Millisecond)
	if err != nil {
		return func() {}, err
	}
	return func() {
		if err := l.Release(); err != nil {
			s.log.Warn().Err(err).Str("slug", slug).Msg("release slug lock")
		}
	}, nil
}

// Sweep removes staging files untouched for olderThan, skipping slugs whose
// lock is held. It returns the number of files removed.
func (s *Staging) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".zip") {
			continue
		}
		fi, err := entry.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		slug := util.SlugFromPath(name)
		var held *lock.Lock
		if s.lockSlugs {
			l, ok, err := lock.TryAcquire(util.LockPath(s.dir, slug))
			if err != nil || !ok {
				s.log.Debug().Str("slug", slug).Msg("sweep skipped busy slug")
				continue
			}
			held = l
		}
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err == nil {
			removed++
			s.log.Info().Str("slug", slug).Str("path", path).Msg("removed stale staging file")
		} else if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("sweep remove failed")
		}
		_ = held.Release()
	}
	return removed + s.sweepPrivate(cutoff), nil
}

// sweepPrivate removes private copies left behind by aborted requests.
func (s *Staging) sweepPrivate(cutoff time.Time) int {
	dir := filepath.Join(s.dir, privateDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil || entry.IsDir() || fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}
