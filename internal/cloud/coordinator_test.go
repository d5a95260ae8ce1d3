package cloud

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/storage"
)

func writeStaged(t *testing.T, m *Manager, slug, body string) {
	t.Helper()
	path := m.Staging.Stage(slug)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestAfterLocalSavePushesAndReleases(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, nil)

	writeStaged(t, m, "hello", "Hello|1.0")
	require.True(t, m.Coordinator.AfterLocalSave(ctx, "hello", true))
	requireNoStagingFile(t, m, "hello")

	info, ok, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(len("Hello|1.0")), info.Size)
}

func TestAfterLocalSaveReleasesOnFailure(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.failOn("put", errors.New("access denied"))
	m := newTestManager(t, gw, nil)

	writeStaged(t, m, "hello", "Hello|1.0")
	require.False(t, m.Coordinator.AfterLocalSave(ctx, "hello", true))
	requireNoStagingFile(t, m, "hello")

	writeStaged(t, m, "other", "Other|1.0")
	require.False(t, m.Coordinator.AfterLocalSave(ctx, "other", false))
	requireNoStagingFile(t, m, "other")
	require.Equal(t, 1, gw.count("put"))
}

func TestAfterLocalSavePushesWhileSlugIsBusy(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, func(o *Options) { o.Packages.LockTimeout = 100 * time.Millisecond })

	unlock, err := m.Staging.Lock(ctx, "hello")
	require.NoError(t, err)
	defer unlock()

	writeStaged(t, m, "hello", "Hello|1.0")
	require.True(t, m.Coordinator.AfterLocalSave(ctx, "hello", true))
	requireNoStagingFile(t, m, "hello")

	_, ok, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPushFileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, nil)

	src := filepath.Join(t.TempDir(), "hello.zip")
	require.NoError(t, os.WriteFile(src, []byte("Hello|1.0"), 0o600))

	for i := 0; i < 2; i++ {
		require.True(t, m.Coordinator.PushFile(ctx, "hello", src))
		requireNoStagingFile(t, m, "hello")
		info, ok, err := gw.Info(ctx, storage.PackageKey("hello"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(len("Hello|1.0")), info.Size)
	}
	_, err := os.Stat(src)
	require.NoError(t, err, "source archive belongs to the caller")
}

func TestShouldSaveLocal(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("remote"), "Remote|1.0", epoch)
	m := newTestManager(t, gw, nil)

	require.True(t, m.Coordinator.ShouldSaveLocal(ctx, "remote", true, false))
	require.False(t, m.Coordinator.ShouldSaveLocal(ctx, "remote", true, true))
	require.False(t, m.Coordinator.ShouldSaveLocal(ctx, "remote", true, true))
	require.Equal(t, 1, gw.count("info"), "object info is cached")

	require.True(t, m.Coordinator.ShouldSaveLocal(ctx, "missing", false, true))

	gw.failOn("info", errors.New("timeout"))
	require.True(t, m.Coordinator.ShouldSaveLocal(ctx, "down", true, true))
}

func TestPushInvalidatesCachedAbsence(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, nil)

	require.True(t, m.Coordinator.ShouldSaveLocal(ctx, "hello", false, true))
	writeStaged(t, m, "hello", "Hello|1.0")
	require.True(t, m.Coordinator.AfterLocalSave(ctx, "hello", true))
	require.False(t, m.Coordinator.ShouldSaveLocal(ctx, "hello", true, true))
}

func TestOnCacheMissWarmsCache(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, nil)

	m.Coordinator.OnCacheMiss(ctx, "missing")
	require.Zero(t, gw.count("fetch"))

	m.Coordinator.OnCacheMiss(ctx, "hello")
	m.Coordinator.OnCacheMiss(ctx, "hello")
	require.Equal(t, 1, gw.count("fetch"))
	requireNoStagingFile(t, m, "hello")

	info, _, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)
	require.True(t, m.Resolver.Cached(ctx, "hello", info))

	gw.set(storage.PackageKey("broken"), "corrupt", epoch)
	m.Coordinator.OnCacheMiss(ctx, "broken")
	requireNoStagingFile(t, m, "broken")
}

func TestRefreshLocalMeta(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, nil)

	existing := &archive.Metadata{Name: "Local"}
	writeStaged(t, m, "hello", "stale")
	require.Same(t, existing, m.Coordinator.RefreshLocalMeta(ctx, "hello", existing))
	requireNoStagingFile(t, m, "hello")
	require.Zero(t, gw.count("fetch"))

	meta := m.Coordinator.RefreshLocalMeta(ctx, "hello", nil)
	require.NotNil(t, meta)
	require.Equal(t, "Hello", meta.Name)
	requireNoStagingFile(t, m, "hello")

	require.Nil(t, m.Coordinator.RefreshLocalMeta(ctx, "missing", nil))
}

func TestCoordinatorCacheKey(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, nil)

	require.Equal(t, "fallback", m.Coordinator.CacheKey(ctx, "missing", "fallback"))
	info, _, _ := gw.Info(ctx, storage.PackageKey("hello"))
	require.Equal(t, CacheKey("hello", Fingerprint(m.Staging.Stage("hello"), info)), m.Coordinator.CacheKey(ctx, "hello", "fallback"))
}

func TestWithStagedRemovesFileAfterUse(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, nil)

	var seen string
	err := m.Coordinator.WithStaged(ctx, "hello", func(path string) error {
		raw, err := os.ReadFile(path)
		seen = string(raw)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "Hello|1.0", seen)
	requireNoStagingFile(t, m, "hello")

	err = m.Coordinator.WithStaged(ctx, "missing", func(string) error { return nil })
	require.ErrorIs(t, err, ErrNotRemote)
	entries, err := os.ReadDir(filepath.Join(m.Staging.Dir(), privateDir))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSlowDownloadDoesNotHidePackage(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, func(o *Options) { o.Packages.LockTimeout = 100 * time.Millisecond })

	serving := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- m.Coordinator.WithStaged(ctx, "hello", func(path string) error {
			close(serving)
			time.Sleep(300 * time.Millisecond)
			_, err := os.Stat(path)
			return err
		})
	}()
	<-serving

	meta, ok := m.Resolver.PackageInfo(ctx, "hello")
	require.True(t, ok)
	require.Equal(t, "Hello", meta.Name)

	catalog := m.Catalog.Assemble(ctx, nil, "")
	require.Contains(t, catalog, "hello")

	require.NoError(t, <-finished)
}
