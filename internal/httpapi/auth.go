package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// HeaderAPIKey carries the admin API key.
const HeaderAPIKey = "X-Api-Auth-Key"

// Authorizer decides whether a request may use admin routes.
type Authorizer interface {
	Authorize(r *http.Request) bool
}

// StaticKey accepts requests presenting the configured key. An empty key
// accepts nothing.
type StaticKey string

func (k StaticKey) Authorize(r *http.Request) bool {
	if k == "" {
		return false
	}
	got := r.Header.Get(HeaderAPIKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1
}
