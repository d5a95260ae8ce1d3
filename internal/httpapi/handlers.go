package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/app"
	"github.com/rowjay/pkgcache/internal/config"
	"github.com/rowjay/pkgcache/internal/storage"
	"github.com/rowjay/pkgcache/internal/util"
)

type handler struct {
	packages   Packages
	redirector Redirector
	log        zerolog.Logger
}

func (h *handler) catalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.packages.Catalog(c.Request.Context(), c.Query("search")))
}

func (h *handler) info(c *gin.Context) {
	meta, err := h.packages.Info(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.notFoundOr(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *handler) download(c *gin.Context) {
	slug := c.Param("slug")
	if err := util.ValidSlug(slug); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found"})
		return
	}
	if h.redirector != nil && h.redirector.Serve(c.Writer, c.Request, slug) {
		c.Abort()
		return
	}
	err := h.packages.Download(c.Request.Context(), slug, func(path string) error {
		c.FileAttachment(path, slug+".zip")
		return nil
	})
	if err != nil {
		h.notFoundOr(c, err)
	}
}

func (h *handler) notFoundOr(c *gin.Context, err error) {
	if errors.Is(err, app.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found"})
		return
	}
	h.log.Error().Err(err).Str("slug", c.Param("slug")).Str("request_id", c.GetString(ctxRequestID)).Msg("package request failed")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "package temporarily unavailable"})
}

type testRequest struct {
	AccessKey   string `json:"access_key"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
	StorageUnit string `json:"storage_unit"`
	Region      string `json:"region"`
}

func (h *handler) cloudStorageTest(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "received invalid data; reload the page and try again"})
		return
	}
	res, err := h.packages.Test(c.Request.Context(), config.CloudConfig{
		AccessKey: req.AccessKey,
		SecretKey: req.SecretKey,
		Endpoint:  req.Endpoint,
		Bucket:    req.StorageUnit,
		Region:    req.Region,
	})
	if err != nil {
		status := http.StatusBadGateway
		var cerr *config.ConfigError
		if errors.As(err, &cerr) {
			status = http.StatusBadRequest
		} else if !storage.IsTransport(err) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Messages})
}
