package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidSlug rejects slugs that could escape the packages directory.
func ValidSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug is empty")
	}
	if slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) || strings.HasPrefix(slug, ".") {
		return fmt.Errorf("invalid slug %q", slug)
	}
	return nil
}

// PackagePath is where the local archive for slug lives.
func PackagePath(dir, slug string) string {
	return filepath.Join(dir, slug+".zip")
}

// LockPath is the per-slug lock file inside the packages directory.
func LockPath(dir, slug string) string {
	return filepath.Join(dir, ".locks", slug+".lock")
}

// SlugFromPath derives the slug from an archive file name.
func SlugFromPath(p string) string {
	return strings.TrimSuffix(filepath.Base(p), ".zip")
}
