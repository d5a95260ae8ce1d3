package cloud

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/metacache"
	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeGateway is an in-memory bucket.
type fakeGateway struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	calls   map[string]int
	fail    map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string]fakeObject{}, calls: map[string]int{}, fail: map[string]error{}}
}

func (g *fakeGateway) set(key, body string, modified time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = fakeObject{data: []byte(body), modified: modified}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) failOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *fakeGateway) enter(op, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	if err := g.fail[op]; err != nil {
		return &storage.TransportError{Op: op, Key: key, Err: err}
	}
	return nil
}

func (g *fakeGateway) Info(_ context.Context, key string) (storage.ObjectInfo, bool, error) {
	if err := g.enter("info", key); err != nil {
		return storage.ObjectInfo{}, false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	obj, ok := g.objects[key]
	if !ok {
		return storage.ObjectInfo{}, false, nil
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), Modified: obj.modified}, true, nil
}

func (g *fakeGateway) Fetch(_ context.Context, key, dest string) (bool, error) {
	if err := g.enter("fetch", key); err != nil {
		return false, err
	}
	g.mu.Lock()
	obj, ok := g.objects[key]
	g.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(dest, obj.data, 0o600)
}

func (g *fakeGateway) Put(_ context.Context, key, src string) error {
	if err := g.enter("put", key); err != nil {
		return err
	}
	var data []byte
	if src != "" {
		var err error
		if data, err = os.ReadFile(src); err != nil {
			return &storage.TransportError{Op: "put", Key: key, Err: err}
		}
	}
	g.set(key, string(data), time.Now())
	return nil
}

func (g *fakeGateway) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if err := g.enter("list", prefix); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []storage.ObjectInfo
	for key, obj := range g.objects {
		if key == prefix || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), Modified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (g *fakeGateway) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := g.enter("signed_url", key); err != nil {
		return "", err
	}
	return "https://store.test/releases/" + key + "?ttl=" + url.QueryEscape(ttl.String()), nil
}

func (g *fakeGateway) Buckets(context.Context) ([]string, error) {
	if err := g.enter("buckets", ""); err != nil {
		return nil, err
	}
	return []string{"releases"}, nil
}

func (g *fakeGateway) Bucket() string { return "releases" }

// fakeParser reads "name|version[|details_url]" archives; "corrupt" bodies fail.
type fakeParser struct{}

func (fakeParser) Parse(path string) (*archive.Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &archive.ParseError{Path: path, Err: err}
	}
	body := string(raw)
	if strings.HasPrefix(body, "corrupt") {
		return nil, &archive.ParseError{Path: path, Err: errors.New("zip: not a valid zip file")}
	}
	parts := strings.Split(body, "|")
	meta := &archive.Metadata{Name: parts[0], Slug: strings.TrimSuffix(filepath.Base(path), ".zip")}
	if len(parts) > 1 {
		meta.Version = parts[1]
	}
	if len(parts) > 2 {
		meta.DetailsURL = parts[2]
	}
	return meta, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

var epoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, gw storage.Gateway, mutate func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		Gateway: gw,
		Cache:   metacache.NewMemory(),
		Parser:  fakeParser{},
		Logger:  zerolog.Nop(),
		Cloud:   config.CloudConfig{Enabled: true},
		Packages: config.PackagesConfig{
			Dir:         t.TempDir(),
			LockSlugs:   true,
			LockTimeout: time.Second,
		},
		CacheCfg: config.CacheConfig{MetadataTTL: time.Hour, InfoTTL: time.Minute},
		Catalog:  config.CatalogConfig{Parallelism: 2},
		Now:      func() time.Time { return epoch },
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func requireNoStagingFile(t *testing.T, m *Manager, slug string) {
	t.Helper()
	_, err := os.Stat(m.Staging.Stage(slug))
	require.True(t, errors.Is(err, os.ErrNotExist), "staging file for %s still present", slug)
}
