package cloud

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/pkgcache/internal/archive"
	"github.com/rowjay/pkgcache/internal/storage"
)

// PackageResolver returns metadata for one slug, or false when it has none.
type PackageResolver interface {
	PackageInfo(ctx context.Context, slug string) (*archive.Metadata, bool)
}

// IncludeFunc may override the inclusion decision for one catalog entry.
type IncludeFunc func(include bool, meta archive.Metadata, search string) bool

// Catalog assembles catalog entries for every archive in the bucket.
type Catalog struct {
	gw          storage.Gateway
	resolver    PackageResolver
	include     IncludeFunc
	parallelism int
	log         zerolog.Logger
}

// Matches reports whether search selects meta: a case-insensitive substring
// of the display name or of "<slug>.zip". An empty search matches everything.
func Matches(meta archive.Metadata, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(meta.Name), needle) ||
		strings.Contains(strings.ToLower(meta.Slug)+".zip", needle)
}

// Assemble returns existing with every matching remote package written over
// it by slug. A listing failure returns existing unchanged.
func (c *Catalog) Assemble(ctx context.Context, existing map[string]archive.Metadata, search string) map[string]archive.Metadata {
	out := make(map[string]archive.Metadata, len(existing))
	for slug, meta := range existing {
		out[slug] = meta
	}

	objects, err := c.gw.List(ctx, storage.PackagesPrefix)
	if err != nil {
		c.log.Error().Err(err).Str("op", "list").Str("key", storage.PackagesPrefix).Msg("list remote packages")
		return out
	}

	var slugs []string
	for _, obj := range objects {
		if storage.IsPackageKey(obj.Key) {
			slugs = append(slugs, storage.SlugFromKey(obj.Key))
		}
	}

	results := make([]*archive.Metadata, len(slugs))
	var g errgroup.Group
	g.SetLimit(max(c.parallelism, 1))
	for i, slug := range slugs {
		i, slug := i, slug
		g.Go(func() error {
			if meta, ok := c.resolver.PackageInfo(ctx, slug); ok {
				results[i] = meta
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, meta := range results {
		if meta == nil {
			continue
		}
		include := Matches(*meta, search)
		if c.include != nil {
			include = c.include(include, *meta, search)
		}
		if include {
			out[meta.Slug] = *meta
		}
	}
	return out
}
