package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	dir := t.TempDir()
	l := NewLocal(dir, "unit", "https://cdn.example.test", "s3cret")
	if err := os.MkdirAll(filepath.Join(dir, "unit"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLocalPutInfoFetch(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	src := filepath.Join(t.TempDir(), "a.zip")
	writeFile(t, src, "archive")

	if _, ok, err := l.Info(ctx, PackageKey("a")); err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
	if err := l.Put(ctx, PackageKey("a"), src); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, ok, err := l.Info(ctx, PackageKey("a"))
	if err != nil || !ok {
		t.Fatalf("expected object, ok=%v err=%v", ok, err)
	}
	if info.Size != int64(len("archive")) {
		t.Fatalf("unexpected size: %d", info.Size)
	}

	dest := filepath.Join(t.TempDir(), "staged", "a.zip")
	found, err := l.Fetch(ctx, PackageKey("a"), dest)
	if err != nil || !found {
		t.Fatalf("fetch: found=%v err=%v", found, err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "archive" {
		t.Fatalf("unexpected content: %q", data)
	}

	found, err = l.Fetch(ctx, PackageKey("missing"), dest)
	if err != nil || found {
		t.Fatalf("expected missing fetch, found=%v err=%v", found, err)
	}
}

func TestLocalFolderMarker(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	key := FolderKey(PackagesFolder)
	if _, ok, _ := l.Info(ctx, key); ok {
		t.Fatalf("marker should not exist yet")
	}
	if err := l.Put(ctx, key, ""); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	info, ok, err := l.Info(ctx, key)
	if err != nil || !ok || info.Size != 0 {
		t.Fatalf("marker info: %+v ok=%v err=%v", info, ok, err)
	}
	if err := l.Put(ctx, key, ""); err != nil {
		t.Fatalf("second put marker: %v", err)
	}
}

func TestLocalListExcludesMarker(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)
	if err := l.Put(ctx, FolderKey(PackagesFolder), ""); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	src := filepath.Join(t.TempDir(), "x.zip")
	writeFile(t, src, "x")
	for _, slug := range []string{"a", "b"} {
		if err := l.Put(ctx, PackageKey(slug), src); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	items, err := l.List(ctx, PackagesPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 objects, got %d: %+v", len(items), items)
	}
	for _, item := range items {
		if !IsPackageKey(item.Key) {
			t.Fatalf("unexpected key %q", item.Key)
		}
	}
}

func TestLocalSignedURL(t *testing.T) {
	l := newTestLocal(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	raw, err := l.SignedURL(context.Background(), PackageKey("a"), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/unit/wppus-packages/a.zip") {
		t.Fatalf("unexpected path: %s", u.Path)
	}
	expires := u.Query().Get("expires")
	if expires != "1704103260" {
		t.Fatalf("unexpected expiry: %s", expires)
	}
	if u.Query().Get("signature") != Sign("s3cret", PackageKey("a"), expires) {
		t.Fatalf("signature mismatch")
	}

	l.BaseURL = ""
	if _, err := l.SignedURL(context.Background(), PackageKey("a"), time.Minute); !errors.Is(err, ErrSignedURLUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestLocalBuckets(t *testing.T) {
	l := newTestLocal(t)
	names, err := l.Buckets(context.Background())
	if err != nil {
		t.Fatalf("buckets: %v", err)
	}
	if len(names) != 1 || names[0] != "unit" {
		t.Fatalf("unexpected buckets: %v", names)
	}
}

func TestTransportErrorWraps(t *testing.T) {
	base := errors.New("connection refused")
	err := transportErr("info", "k", base)
	if !IsTransport(err) || !errors.Is(err, base) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if transportErr("info", "k", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
