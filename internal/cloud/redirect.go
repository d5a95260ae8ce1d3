package cloud

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/metrics"
	"github.com/rowjay/pkgcache/internal/storage"
	"github.com/rowjay/pkgcache/internal/util"
)

// DownloadURLLifetime is how long a signed download link stays valid.
const DownloadURLLifetime = time.Minute

// ErrDisabled is returned when cloud storage is turned off.
var ErrDisabled = errors.New("cloud storage is disabled")

// SignedDownloadURL is a single-object GET link valid until ExpiresAt.
type SignedDownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Redirector answers downloads by sending clients straight to the object store.
type Redirector struct {
	gw      storage.Gateway
	enabled bool
	now     func() time.Time
	log     zerolog.Logger
	metrics metrics.Recorder
}

// Enabled reports whether downloads may be redirected.
func (r *Redirector) Enabled() bool { return r.enabled }

// Redirect signs a download URL for slug's archive.
func (r *Redirector) Redirect(ctx context.Context, slug string) (SignedDownloadURL, error) {
	if !r.enabled {
		return SignedDownloadURL{}, ErrDisabled
	}
	if err := util.ValidSlug(slug); err != nil {
		return SignedDownloadURL{}, err
	}
	issued := r.now()
	url, err := r.gw.SignedURL(ctx, storage.PackageKey(slug), DownloadURLLifetime)
	if err != nil {
		return SignedDownloadURL{}, err
	}
	return SignedDownloadURL{URL: url, ExpiresAt: issued.Add(DownloadURLLifetime)}, nil
}

// Serve issues a redirect for slug and reports whether the request was handled.
// When it returns false nothing has been written to w.
func (r *Redirector) Serve(w http.ResponseWriter, req *http.Request, slug string) bool {
	if !r.enabled {
		return false
	}
	signed, err := r.Redirect(req.Context(), slug)
	if err != nil {
		r.log.Error().Err(err).Str("slug", slug).Str("op", "signed_url").Msg("download redirect unavailable")
		return false
	}
	http.Redirect(w, req, signed.URL, http.StatusFound)
	r.metrics.RecordRedirect()
	return true
}
