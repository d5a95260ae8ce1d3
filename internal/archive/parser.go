package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// headerWindow bounds how much of a candidate file is scanned for headers.
const headerWindow = 8 * 1024

// ParseError reports an archive that is corrupt or carries no package header.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse archive %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoHeader = errors.New("no plugin, theme or wppus.json header found")

// Parser turns a local archive into Metadata.
type Parser interface {
	Parse(path string) (*Metadata, error)
}

// ZipParser reads WordPress-style file headers (a plugin's main PHP file or a
// theme's style.css) or a generic package's wppus.json.
type ZipParser struct{}

func NewZipParser() *ZipParser { return &ZipParser{} }

func (p *ZipParser) Parse(archivePath string) (*Metadata, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ParseError{Path: archivePath, Err: err}
	}
	defer reader.Close()

	var themes, plugins, manifests []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || depth(f.Name) > 1 {
			continue
		}
		switch base := path.Base(f.Name); {
		case base == "style.css":
			themes = append(themes, f)
		case base == "wppus.json":
			manifests = append(manifests, f)
		case strings.HasSuffix(base, ".php"):
			plugins = append(plugins, f)
		}
	}

	slug := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	for _, f := range manifests {
		meta, err := parseManifest(f)
		if err != nil {
			return nil, &ParseError{Path: archivePath, Err: err}
		}
		meta.Slug = slug
		return meta, nil
	}
	for _, f := range themes {
		headers, err := readHeaders(f, themeHeaders)
		if err != nil {
			return nil, &ParseError{Path: archivePath, Err: err}
		}
		if headers["name"] == "" {
			continue
		}
		return fromHeaders(headers, slug, TypeTheme), nil
	}
	// The main plugin file sits shallowest; ties resolve alphabetically.
	sort.SliceStable(plugins, func(i, j int) bool {
		if depth(plugins[i].Name) != depth(plugins[j].Name) {
			return depth(plugins[i].Name) < depth(plugins[j].Name)
		}
		return plugins[i].Name < plugins[j].Name
	})
	for _, f := range plugins {
		headers, err := readHeaders(f, pluginHeaders)
		if err != nil {
			return nil, &ParseError{Path: archivePath, Err: err}
		}
		if headers["name"] == "" {
			continue
		}
		return fromHeaders(headers, slug, TypePlugin), nil
	}
	return nil, &ParseError{Path: archivePath, Err: errNoHeader}
}

func depth(name string) int {
	return strings.Count(strings.Trim(name, "/"), "/")
}

var pluginHeaders = map[string]string{
	"name":         "Plugin Name",
	"version":      "Version",
	"author":       "Author",
	"author_uri":   "Author URI",
	"homepage":     "Plugin URI",
	"description":  "Description",
	"requires":     "Requires at least",
	"tested":       "Tested up to",
	"requires_php": "Requires PHP",
}

var themeHeaders = map[string]string{
	"name":         "Theme Name",
	"version":      "Version",
	"author":       "Author",
	"author_uri":   "Author URI",
	"details_url":  "Theme URI",
	"description":  "Description",
	"requires":     "Requires at least",
	"tested":       "Tested up to",
	"requires_php": "Requires PHP",
}

var headerPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, set := range []map[string]string{pluginHeaders, themeHeaders} {
		for _, label := range set {
			if _, ok := headerPatterns[label]; ok {
				continue
			}
			headerPatterns[label] = regexp.MustCompile(`(?mi)^[ \t/*#@]*` + regexp.QuoteMeta(label) + `:(.*)$`)
		}
	}
}

func readHeaders(f *zip.File, wanted map[string]string) (map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	head, err := io.ReadAll(io.LimitReader(rc, headerWindow))
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(head), "\r", "\n")
	headers := map[string]string{}
	for field, label := range wanted {
		if m := headerPatterns[label].FindStringSubmatch(text); m != nil {
			headers[field] = cleanHeader(m[1])
		}
	}
	return headers, nil
}

func cleanHeader(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "*/")
	v = strings.TrimSuffix(v, "?>")
	return strings.TrimSpace(v)
}

func fromHeaders(h map[string]string, slug, kind string) *Metadata {
	return &Metadata{
		Name:        h["name"],
		Slug:        slug,
		Version:     h["version"],
		Type:        kind,
		Author:      h["author"],
		AuthorURI:   h["author_uri"],
		Homepage:    h["homepage"],
		Description: h["description"],
		Requires:    h["requires"],
		Tested:      h["tested"],
		RequiresPHP: h["requires_php"],
		DetailsURL:  h["details_url"],
	}
}

type manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	AuthorURI   string `json:"author_homepage"`
	Homepage    string `json:"homepage"`
	Description string `json:"description"`
}

func parseManifest(f *zip.File) (*Metadata, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var m manifest
	if err := json.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode wppus.json: %w", err)
	}
	if m.Name == "" || m.Version == "" {
		return nil, errors.New("wppus.json requires name and version")
	}
	return &Metadata{
		Name:        m.Name,
		Version:     m.Version,
		Type:        TypeGeneric,
		Author:      m.Author,
		AuthorURI:   m.AuthorURI,
		Homepage:    m.Homepage,
		Description: m.Description,
	}, nil
}

var _ Parser = (*ZipParser)(nil)
