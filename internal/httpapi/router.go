// Package httpapi exposes the package catalog, downloads and operator
// endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/app"
	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/version"
)

// Packages is the application surface the handlers call into.
type Packages interface {
	Catalog(ctx context.Context, search string) map[string]archive.Metadata
	Info(ctx context.Context, slug string) (*archive.Metadata, error)
	Download(ctx context.Context, slug string, fn func(path string) error) error
	Test(ctx context.Context, creds config.CloudConfig) (app.TestResult, error)
}

// Redirector answers a download with a redirect and reports whether it did.
type Redirector interface {
	Serve(w http.ResponseWriter, r *http.Request, slug string) bool
}

type Options struct {
	Packages   Packages
	Redirector Redirector // nil disables redirects
	Authorizer Authorizer
	Gatherer   prometheus.Gatherer
	Logger     zerolog.Logger
	Mode       string
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	log := opts.Logger.With().Str("component", "http").Logger()
	router := gin.New()
	router.Use(
		RequestID(),
		Logger(log),
		Recovery(log),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", HeaderAPIKey},
			ExposeHeaders:   []string{headerRequestID},
			MaxAge:          12 * time.Hour,
		}),
	)

	h := &handler{packages: opts.Packages, redirector: opts.Redirector, log: log}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	packages := router.Group("/packages")
	{
		packages.GET("", h.catalog)
		packages.GET("/:slug", h.info)
		packages.GET("/:slug/download", h.download)
	}

	admin := router.Group("/admin", RequireAuth(opts.Authorizer))
	{
		admin.POST("/cloud-storage/test", h.cloudStorageTest)
	}
	return router
}
