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

func TestResolveCachesUntilFingerprintChanges(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, nil)

	info, ok, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)
	require.True(t, ok)

	meta, ok := m.Resolver.Resolve(ctx, "hello", info)
	require.True(t, ok)
	require.Equal(t, "1.0", meta.Version)
	require.Equal(t, 1, gw.count("fetch"))

	meta, ok = m.Resolver.Resolve(ctx, "hello", info)
	require.True(t, ok)
	require.Equal(t, "1.0", meta.Version)
	require.Equal(t, 1, gw.count("fetch"), "cache hit must not fetch")

	gw.set(storage.PackageKey("hello"), "Hello|1.10", epoch.Add(time.Hour))
	changed, _, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)

	meta, ok = m.Resolver.Resolve(ctx, "hello", changed)
	require.True(t, ok)
	require.Equal(t, "1.10", meta.Version)
	require.Equal(t, 2, gw.count("fetch"))
	requireNoStagingFile(t, m, "hello")
}

func TestResolveAnnotatesResult(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("plug"), "Plug|2.0", epoch)
	gw.set(storage.PackageKey("skin"), "Skin|3.0|https://example.com/skin", epoch)
	m := newTestManager(t, gw, nil)

	plug, ok := m.Resolver.PackageInfo(ctx, "plug")
	require.True(t, ok)
	require.Equal(t, archive.TypePlugin, plug.Type)
	require.Equal(t, "plug.zip", plug.FileName)
	require.Equal(t, m.Staging.Stage("plug"), plug.FilePath)
	require.Equal(t, int64(len("Plug|2.0")), plug.FileSize)
	require.Equal(t, epoch.Unix(), plug.FileLastModified)

	skin, ok := m.Resolver.PackageInfo(ctx, "skin")
	require.True(t, ok)
	require.Equal(t, archive.TypeTheme, skin.Type)
}

func TestResolveCorruptArchiveLeavesNoCacheEntry(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("broken"), "corrupt bytes", epoch)
	m := newTestManager(t, gw, nil)

	info, _, err := gw.Info(ctx, storage.PackageKey("broken"))
	require.NoError(t, err)

	_, ok := m.Resolver.Resolve(ctx, "broken", info)
	require.False(t, ok)
	require.False(t, m.Resolver.Cached(ctx, "broken", info))
	requireNoStagingFile(t, m, "broken")

	_, ok = m.Resolver.Resolve(ctx, "broken", info)
	require.False(t, ok)
	require.Equal(t, 2, gw.count("fetch"))
}

func TestPackageInfoDegradesOnTransportError(t *testing.T) {
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	gw.failOn("info", errors.New("connection refused"))
	m := newTestManager(t, gw, nil)

	_, ok := m.Resolver.PackageInfo(context.Background(), "hello")
	require.False(t, ok)
	require.Zero(t, gw.count("fetch"))
}

func TestCacheKeyHookOverridesKey(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(t, gw, func(o *Options) {
		o.CacheKey = func(key, slug, _ string, _ storage.ObjectInfo) string {
			return "custom-" + slug
		}
	})
	require.Equal(t, "custom-hello", m.Resolver.KeyFor("hello", storage.ObjectInfo{Size: 1, Modified: epoch}))
}

func TestResolveUsesPrivateCopyWhenSlugIsLocked(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.set(storage.PackageKey("hello"), "Hello|1.0", epoch)
	m := newTestManager(t, gw, func(o *Options) { o.Packages.LockTimeout = 100 * time.Millisecond })

	unlock, err := m.Staging.Lock(ctx, "hello")
	require.NoError(t, err)
	defer unlock()
	writeStaged(t, m, "hello", "Hello|2.0")

	info, _, err := gw.Info(ctx, storage.PackageKey("hello"))
	require.NoError(t, err)
	meta, ok := m.Resolver.Resolve(ctx, "hello", info)
	require.True(t, ok)
	require.Equal(t, "1.0", meta.Version)
	require.Equal(t, "hello", meta.Slug)
	require.Equal(t, 1, gw.count("fetch"))

	raw, err := os.ReadFile(m.Staging.Stage("hello"))
	require.NoError(t, err, "the lock holder's staging file is left alone")
	require.Equal(t, "Hello|2.0", string(raw))
	entries, err := os.ReadDir(filepath.Join(m.Staging.Dir(), privateDir))
	require.NoError(t, err)
	require.Empty(t, entries)
}
