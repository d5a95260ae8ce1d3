package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowjay/pkgcache/internal/app"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/cryptoutil"
	"github.com/rowjay/pkgcache/internal/httpapi"
	"github.com/rowjay/pkgcache/internal/logging"
	"github.com/rowjay/pkgcache/internal/storage"
	"github.com/rowjay/pkgcache/internal/util"
	"github.com/rowjay/pkgcache/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	CloudEnabled string
	Backend      string
	LocalPath    string
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	UseSSL       string
	PathStyle    string
	PackagesDir  string
	CacheBackend string
	Listen       string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:           "pkgcache",
		Short:         "Remote-backed package cache for a self-hosted update server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.CloudEnabled, "cloud", "", "Enable cloud storage (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.Backend, "storage", "", "Storage backend (s3, local)")
	rootCmd.PersistentFlags().StringVar(&overrides.LocalPath, "storage-path", "", "Local object store root")
	rootCmd.PersistentFlags().StringVar(&overrides.Endpoint, "s3-endpoint", "", "S3 endpoint")
	rootCmd.PersistentFlags().StringVar(&overrides.Bucket, "s3-bucket", "", "Storage unit (bucket)")
	rootCmd.PersistentFlags().StringVar(&overrides.AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.Region, "s3-region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&overrides.UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.PackagesDir, "packages-dir", "", "Local packages directory")
	rootCmd.PersistentFlags().StringVar(&overrides.CacheBackend, "cache", "", "Metadata cache backend (memory, file, redis, none)")

	rootCmd.AddCommand(newServeCmd(root, overrides))
	rootCmd.AddCommand(newTestCmd(root, overrides))
	rootCmd.AddCommand(newBootstrapCmd(root, overrides))
	rootCmd.AddCommand(newPushCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newInfoCmd(root, overrides))
	rootCmd.AddCommand(newSweepCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the application. The returned cleanup
// closes the metadata cache.
func setup(root *rootFlags, overrides *overrideFlags, reg prometheus.Registerer) (*app.App, zerolog.Logger, func(), error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := logging.Configure(cfg.Global)
	if err := config.Validate(cfg); err != nil {
		return nil, logger, nil, err
	}
	appSvc, closeFn, err := app.Build(cfg, logger, reg)
	if err != nil {
		return nil, logger, nil, err
	}
	cleanup := func() {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("close cache")
		}
	}
	return appSvc, logger, cleanup, nil
}

func operationContext(appSvc *app.App) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), appSvc.Cfg.Global.OperationTimeout)
}

func newServeCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the package catalog and downloads over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			appSvc, logger, cleanup, err := setup(root, overrides, registry)
			if err != nil {
				return err
			}
			defer cleanup()
			cfg := appSvc.Cfg

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if appSvc.CloudEnabled() {
				bootCtx, cancel := operationContext(appSvc)
				appSvc.Bootstrap(bootCtx)
				cancel()
			}

			var redirector httpapi.Redirector
			if appSvc.CloudEnabled() {
				redirector = appSvc.Cloud.Redirector
			}
			router := httpapi.NewRouter(httpapi.Options{
				Packages:   appSvc,
				Redirector: redirector,
				Authorizer: httpapi.StaticKey(cfg.Server.APIKey),
				Gatherer:   registry,
				Logger:     logger,
				Mode:       cfg.Server.Mode,
			})
			srv := &http.Server{
				Addr:         cfg.Server.Listen,
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			go runSweeper(ctx, appSvc, logger)

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("listen", cfg.Server.Listen).Bool("cloud", appSvc.CloudEnabled()).Msg("server started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&overrides.Listen, "listen", "", "Listen address")
	return cmd
}

func runSweeper(ctx context.Context, appSvc *app.App, logger zerolog.Logger) {
	interval := appSvc.Cfg.Schedule.SweepInterval
	if interval <= 0 || !appSvc.CloudEnabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := appSvc.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("staging sweep failed")
			} else if removed > 0 {
				logger.Info().Int("removed", removed).Msg("staging sweep completed")
			}
			if visited, err := appSvc.Warm(ctx); err != nil {
				logger.Warn().Err(err).Msg("metadata warm-up failed")
			} else {
				logger.Debug().Int("packages", visited).Msg("metadata warm-up completed")
			}
		}
	}
}

func newTestCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var retries int
	var backoff time.Duration
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check cloud storage credentials, storage unit and virtual folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, logger, cleanup, err := setupForTest(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, cancel := operationContext(appSvc)
			defer cancel()

			var res app.TestResult
			var testErr error
			err = util.Retry(ctx, retries, backoff, func() error {
				res, testErr = appSvc.Test(ctx, config.CloudConfig{})
				if storage.IsTransport(testErr) {
					return testErr
				}
				return nil
			})
			if err == nil {
				err = testErr
			}
			if err != nil {
				return err
			}
			for _, msg := range res.Messages {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			logger.Info().Msg("cloud storage test completed")
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retry", 1, "Attempts for transport failures")
	cmd.Flags().DurationVar(&backoff, "retry-backoff", 2*time.Second, "Delay between attempts")
	return cmd
}

// setupForTest skips validation so that missing credentials are reported by
// the connectivity test itself.
func setupForTest(root *rootFlags, overrides *overrideFlags) (*app.App, zerolog.Logger, func(), error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := logging.Configure(cfg.Global)
	return app.New(cfg, nil, nil, logger, nil), logger, func() {}, nil
}

func newBootstrapCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the packages virtual folder when missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, logger, cleanup, err := setup(root, overrides, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			if !appSvc.CloudEnabled() {
				return fmt.Errorf("cloud storage is disabled")
			}
			ctx, cancel := operationContext(appSvc)
			defer cancel()
			if !appSvc.Bootstrap(ctx) {
				return fmt.Errorf("virtual folder could not be verified; cloud storage may not work as expected")
			}
			logger.Info().Msg("virtual folder ready")
			return nil
		},
	}
}

func newPushCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var slug, file string
	var verify bool
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish a package archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			if slug == "" {
				slug = util.SlugFromPath(file)
			}
			appSvc, logger, cleanup, err := setup(root, overrides, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, cancel := operationContext(appSvc)
			defer cancel()
			if err := appSvc.Push(ctx, slug, file); err != nil {
				return err
			}
			logger.Info().Str("slug", slug).Bool("cloud", appSvc.CloudEnabled()).Msg("package published")
			if !verify || !appSvc.CloudEnabled() {
				return nil
			}
			meta, err := appSvc.Verify(ctx, slug)
			if err != nil {
				return fmt.Errorf("verify %s: %w", slug, err)
			}
			logger.Info().Str("slug", slug).Str("version", meta.Version).Msg("remote package verified")
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "Package slug (defaults to the archive name)")
	cmd.Flags().StringVar(&file, "file", "", "Path to the package archive")
	cmd.Flags().BoolVar(&verify, "verify", false, "Fetch the uploaded archive back and parse it")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, _, cleanup, err := setup(root, overrides, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, cancel := operationContext(appSvc)
			defer cancel()
			catalog := appSvc.Catalog(ctx, search)
			for _, slug := range app.SortedSlugs(catalog) {
				meta := catalog[slug]
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\t%s\n", slug, meta.Version, meta.Type, meta.FileSize,
					time.Unix(meta.FileLastModified, 0).UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive filter on name or file name")
	return cmd
}

func newInfoCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var slug string
	var cacheKey bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show package metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			if slug == "" {
				return fmt.Errorf("--slug is required")
			}
			appSvc, _, cleanup, err := setup(root, overrides, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, cancel := operationContext(appSvc)
			defer cancel()
			if cacheKey {
				key, err := appSvc.MetadataKey(ctx, slug)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}
			meta, err := appSvc.Info(ctx, slug)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "Package slug")
	cmd.Flags().BoolVar(&cacheKey, "cache-key", false, "Print the metadata cache key instead of the metadata")
	return cmd
}

func newSweepCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove abandoned staging files",
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, logger, cleanup, err := setup(root, overrides, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx, cancel := operationContext(appSvc)
			defer cancel()
			removed, err := appSvc.Sweep(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("removed", removed).Msg("sweep completed")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv(config.KeyEnv)
			}
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key (or PKGCACHE_CONFIG_KEY) are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	genkey := &cobra.Command{
		Use:   "genkey",
		Short: "Print a new config encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cryptoutil.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}

	cmd.AddCommand(encrypt, genkey)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pkgcache %s\n", version.String())
		},
	}
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.CloudEnabled != "" {
		cfg.Cloud.Enabled = parseBool(overrides.CloudEnabled)
	}
	if overrides.Backend != "" {
		cfg.Cloud.Backend = overrides.Backend
	}
	if overrides.LocalPath != "" {
		cfg.Cloud.Local.Path = overrides.LocalPath
	}
	if overrides.Endpoint != "" {
		cfg.Cloud.Endpoint = overrides.Endpoint
	}
	if overrides.Bucket != "" {
		cfg.Cloud.Bucket = overrides.Bucket
	}
	if overrides.AccessKey != "" {
		cfg.Cloud.AccessKey = overrides.AccessKey
	}
	if overrides.SecretKey != "" {
		cfg.Cloud.SecretKey = overrides.SecretKey
	}
	if overrides.Region != "" {
		cfg.Cloud.Region = overrides.Region
	}
	if overrides.UseSSL != "" {
		cfg.Cloud.UseSSL = parseBool(overrides.UseSSL)
	}
	if overrides.PathStyle != "" {
		cfg.Cloud.ForcePathStyle = parseBool(overrides.PathStyle)
	}
	if overrides.PackagesDir != "" {
		cfg.Packages.Dir = overrides.PackagesDir
	}
	if overrides.CacheBackend != "" {
		cfg.Cache.Backend = overrides.CacheBackend
	}
	if overrides.Listen != "" {
		cfg.Server.Listen = overrides.Listen
	}

	cfg.Cloud.Backend = strings.ToLower(cfg.Cloud.Backend)
	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)
}
