package storage

import (
	"path"
	"strings"
)

// PackagesPrefix is the virtual folder holding every package archive.
const PackagesPrefix = "wppus-packages/"

// PackagesFolder is PackagesPrefix without its trailing slash.
const PackagesFolder = "wppus-packages"

// PackageKey returns the object key of a package archive.
func PackageKey(slug string) string {
	return PackagesPrefix + slug + ".zip"
}

// SlugFromKey derives the package slug from an archive key.
func SlugFromKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, PackagesPrefix), ".zip")
}

// IsPackageKey reports whether key names an archive directly below PackagesPrefix.
func IsPackageKey(key string) bool {
	if !strings.HasPrefix(key, PackagesPrefix) || !strings.HasSuffix(key, ".zip") {
		return false
	}
	rest := strings.TrimPrefix(key, PackagesPrefix)
	return rest != ".zip" && path.Dir(rest) == "."
}

// FolderKey returns the marker key of a virtual folder.
func FolderKey(name string) string {
	return strings.TrimSuffix(name, "/") + "/"
}
