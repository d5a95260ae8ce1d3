package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/cloud"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/lock"
	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
	"github.com/rowjay/pkgcache/internal/util"
)

// ErrNotFound is returned when a package exists in neither tier.
var ErrNotFound = errors.New("package not found")

type App struct {
	Cfg      *config.Config
	Cloud    *cloud.Manager // nil when cloud storage is disabled
	Parser   archive.Parser
	Log      zerolog.Logger
	Notifier notify.Notifier

	// NewGateway builds a gateway from submitted credentials for Test.
	NewGateway func(config.CloudConfig) (storage.Gateway, error)
	now        func() time.Time
}

func New(cfg *config.Config, manager *cloud.Manager, parser archive.Parser, log zerolog.Logger, notifier notify.Notifier) *App {
	if parser == nil {
		parser = archive.NewZipParser()
	}
	return &App{
		Cfg:        cfg,
		Cloud:      manager,
		Parser:     parser,
		Log:        log,
		Notifier:   notifier,
		NewGateway: storage.New,
		now:        time.Now,
	}
}

// CloudEnabled reports whether packages live in object storage.
func (a *App) CloudEnabled() bool {
	return a.Cloud != nil && a.Cfg.Cloud.Enabled
}

// TestResult carries operator-facing messages from a connectivity test.
type TestResult struct {
	Messages []string `json:"messages"`
}

// Test checks submitted credentials: the storage unit must be visible and the
// packages folder must exist or be creatable. Empty fields fall back to the
// saved configuration.
func (a *App) Test(ctx context.Context, creds config.CloudConfig) (TestResult, error) {
	start := a.now()
	merged := mergeCredentials(a.Cfg.Cloud, creds)
	var result TestResult
	opErr := a.test(ctx, merged, &result)
	ev := notify.NewEvent(notify.EventTest, statusFromErr(opErr), "cloud storage connectivity test", start)
	ev.Bucket = merged.Bucket
	a.notify(ctx, ev, opErr)
	return result, opErr
}

func (a *App) test(ctx context.Context, creds config.CloudConfig, result *TestResult) error {
	if errs := config.ValidateCloud(creds); len(errs) > 0 {
		return errors.Join(errs...)
	}
	gw, err := a.NewGateway(creds)
	if err != nil {
		return err
	}
	units, err := gw.Buckets(ctx)
	if err != nil {
		a.Log.Error().Err(err).Str("op", "buckets").Msg("cloud storage test failed")
		return fmt.Errorf("an error occurred when attempting to communicate with the cloud storage service provider: %w", err)
	}
	found := false
	for _, unit := range units {
		if unit == creds.Bucket {
			found = true
			break
		}
	}
	if !found {
		return &config.ConfigError{Field: "cloud.bucket", Reason: "storage unit " + creds.Bucket + " not found"}
	}
	result.Messages = append(result.Messages, "Cloud storage service was reached successfully.")

	folders := cloud.NewFolders(gw, nil, a.Log)
	exists, err := folders.Exists(ctx, storage.PackagesFolder)
	if err != nil {
		return fmt.Errorf("check virtual folder: %w", err)
	}
	if exists {
		result.Messages = append(result.Messages, fmt.Sprintf("Virtual folder %q found.", storage.PackagesFolder))
		return nil
	}
	if err := folders.Create(ctx, storage.PackagesFolder); err != nil {
		a.Log.Warn().Err(err).Str("folder", storage.PackagesFolder).Msg("create virtual folder")
		result.Messages = append(result.Messages, fmt.Sprintf("WARNING: Unable to create virtual folder %q. Cloud storage may not work as expected. Create it manually and test again.", storage.PackagesFolder))
		return nil
	}
	result.Messages = append(result.Messages, fmt.Sprintf("Virtual folder %q was created successfully.", storage.PackagesFolder))
	return nil
}

func mergeCredentials(saved, submitted config.CloudConfig) config.CloudConfig {
	out := saved
	if submitted.AccessKey != "" {
		out.AccessKey = submitted.AccessKey
	}
	if submitted.SecretKey != "" {
		out.SecretKey = submitted.SecretKey
	}
	if submitted.Endpoint != "" {
		out.Endpoint = submitted.Endpoint
	}
	if submitted.Bucket != "" {
		out.Bucket = submitted.Bucket
	}
	if submitted.Region != "" {
		out.Region = submitted.Region
	}
	return out
}

// Bootstrap makes sure the packages folder exists after settings change.
func (a *App) Bootstrap(ctx context.Context) bool {
	if !a.CloudEnabled() {
		return false
	}
	return a.Cloud.Folders.Ensure(ctx, storage.PackagesFolder)
}

// Push publishes a freshly built archive for slug. With cloud storage the
// archive is uploaded and no local copy is kept; otherwise it is stored in
// the packages directory.
func (a *App) Push(ctx context.Context, slug, archivePath string) error {
	start := a.now()
	var opErr error
	defer func() {
		ev := notify.NewEvent(notify.EventPush, statusFromErr(opErr), "push "+slug, start)
		ev.Slug = slug
		if a.CloudEnabled() {
			ev.Bucket = a.Cloud.Gateway.Bucket()
			ev.Key = storage.PackageKey(slug)
		}
		a.notify(ctx, ev, opErr)
	}()

	if opErr = util.ValidSlug(slug); opErr != nil {
		return opErr
	}
	if _, opErr = a.Parser.Parse(archivePath); opErr != nil {
		return opErr
	}
	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		opErr = err
		return err
	}
	defer guard.Release()

	if !a.CloudEnabled() {
		opErr = copyInto(archivePath, util.PackagePath(a.Cfg.Packages.Dir, slug))
		return opErr
	}
	if !a.Cloud.Coordinator.ShouldSaveLocal(ctx, slug, true, true) {
		a.Log.Info().Str("slug", slug).Str("key", storage.PackageKey(slug)).Msg("replacing remote package")
	}
	if !a.Cloud.Coordinator.PushFile(ctx, slug, archivePath) {
		opErr = fmt.Errorf("upload %s to cloud storage failed", slug)
	}
	return opErr
}

// Catalog lists packages matching search from both tiers.
func (a *App) Catalog(ctx context.Context, search string) map[string]archive.Metadata {
	local := a.localCatalog(search)
	if !a.CloudEnabled() {
		return local
	}
	return a.Cloud.Catalog.Assemble(ctx, local, search)
}

// Info returns the metadata of one package.
func (a *App) Info(ctx context.Context, slug string) (*archive.Metadata, error) {
	if err := util.ValidSlug(slug); err != nil {
		return nil, ErrNotFound
	}
	if a.CloudEnabled() {
		if meta, ok := a.Cloud.Resolver.PackageInfo(ctx, slug); ok {
			return meta, nil
		}
		return nil, ErrNotFound
	}
	meta, ok := a.localInfo(util.PackagePath(a.Cfg.Packages.Dir, slug))
	if !ok {
		return nil, ErrNotFound
	}
	return meta, nil
}

// Verify fetches slug's remote archive back and parses it.
func (a *App) Verify(ctx context.Context, slug string) (*archive.Metadata, error) {
	if err := util.ValidSlug(slug); err != nil {
		return nil, ErrNotFound
	}
	if !a.CloudEnabled() {
		return nil, cloud.ErrDisabled
	}
	meta := a.Cloud.Coordinator.RefreshLocalMeta(ctx, slug, nil)
	if meta == nil {
		return nil, ErrNotFound
	}
	return meta, nil
}

// MetadataKey returns the cache key under which slug's metadata is stored.
func (a *App) MetadataKey(ctx context.Context, slug string) (string, error) {
	if err := util.ValidSlug(slug); err != nil {
		return "", ErrNotFound
	}
	if !a.CloudEnabled() {
		return "", cloud.ErrDisabled
	}
	key := a.Cloud.Coordinator.CacheKey(ctx, slug, "")
	if key == "" {
		return "", ErrNotFound
	}
	return key, nil
}

// Warm fills the metadata cache for every remote package and returns how
// many packages were visited.
func (a *App) Warm(ctx context.Context) (int, error) {
	if !a.CloudEnabled() {
		return 0, nil
	}
	objects, err := a.Cloud.Gateway.List(ctx, storage.PackagesPrefix)
	if err != nil {
		return 0, err
	}
	visited := 0
	for _, obj := range objects {
		if ctx.Err() != nil {
			return visited, ctx.Err()
		}
		if !storage.IsPackageKey(obj.Key) {
			continue
		}
		a.Cloud.Coordinator.OnCacheMiss(ctx, storage.SlugFromKey(obj.Key))
		visited++
	}
	return visited, nil
}

// Download hands the path of slug's archive to fn. Remote archives are staged
// for the duration of fn only.
func (a *App) Download(ctx context.Context, slug string, fn func(path string) error) error {
	if err := util.ValidSlug(slug); err != nil {
		return ErrNotFound
	}
	if a.CloudEnabled() {
		err := a.Cloud.Coordinator.WithStaged(ctx, slug, fn)
		if errors.Is(err, cloud.ErrNotRemote) {
			return ErrNotFound
		}
		return err
	}
	path := util.PackagePath(a.Cfg.Packages.Dir, slug)
	if _, err := os.Stat(path); err != nil {
		return ErrNotFound
	}
	return fn(path)
}

// Sweep removes abandoned staging files inside the maintenance window.
func (a *App) Sweep(ctx context.Context) (int, error) {
	if !a.CloudEnabled() {
		return 0, nil
	}
	ok, err := util.InWindow(a.now(), a.Cfg.Schedule.WindowStart, a.Cfg.Schedule.WindowEnd, a.Cfg.Schedule.Timezone)
	if err != nil {
		return 0, err
	}
	if !ok {
		a.Log.Debug().Msg("outside maintenance window; sweep skipped")
		return 0, nil
	}
	return a.Cloud.Staging.Sweep(ctx, a.Cfg.Packages.StaleAfter)
}

func (a *App) localCatalog(search string) map[string]archive.Metadata {
	out := map[string]archive.Metadata{}
	if a.CloudEnabled() {
		return out
	}
	matches, err := filepath.Glob(filepath.Join(a.Cfg.Packages.Dir, "*.zip"))
	if err != nil {
		return out
	}
	sort.Strings(matches)
	for _, path := range matches {
		meta, ok := a.localInfo(path)
		if ok && cloud.Matches(*meta, search) {
			out[meta.Slug] = *meta
		}
	}
	return out
}

func (a *App) localInfo(path string) (*archive.Metadata, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	meta, err := a.Parser.Parse(path)
	if err != nil {
		a.Log.Error().Err(err).Str("path", path).Msg("corrupt archive; will not be displayed or delivered")
		return nil, false
	}
	slug := util.SlugFromPath(path)
	if meta.Type != archive.TypeGeneric {
		meta.Type = archive.TypePlugin
		if meta.DetailsURL != "" {
			meta.Type = archive.TypeTheme
		}
	}
	meta.Slug = slug
	meta.FileName = slug + ".zip"
	meta.FilePath = path
	meta.FileSize = fi.Size()
	meta.FileLastModified = fi.ModTime().Unix()
	return meta, true
}

func (a *App) notify(ctx context.Context, ev notify.Event, err error) {
	if a.Notifier == nil {
		return
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if nerr := a.Notifier.Notify(context.WithoutCancel(ctx), ev); nerr != nil {
		a.Log.Warn().Err(nerr).Str("event", ev.Type).Msg("notification failed")
	}
}

func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func statusFromErr(err error) string {
	if err == nil {
		return notify.StatusSuccess
	}
	return notify.StatusFailure
}

// SortedSlugs returns catalog keys in order.
func SortedSlugs(catalog map[string]archive.Metadata) []string {
	slugs := make([]string, 0, len(catalog))
	for slug := range catalog {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
