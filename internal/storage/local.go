package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Local keeps objects as plain files below BasePath/<bucket>. Folder markers
// are directories. It is meant for development and tests.
type Local struct {
	BasePath string
	BaseURL  string
	bucket   string
	secret   string
	now      func() time.Time
}

func NewLocal(path, bucket, baseURL, secret string) *Local {
	if bucket == "" {
		bucket = "packages"
	}
	return &Local{BasePath: path, BaseURL: strings.TrimSuffix(baseURL, "/"), bucket: bucket, secret: secret, now: time.Now}
}

func (l *Local) Bucket() string { return l.bucket }

func (l *Local) path(key string) string {
	return filepath.Join(l.BasePath, l.bucket, filepath.FromSlash(key))
}

func (l *Local) Info(ctx context.Context, key string) (ObjectInfo, bool, error) {
	select {
	case <-ctx.Done():
		return ObjectInfo{}, false, transportErr("info", key, ctx.Err())
	default:
	}
	stat, err := os.Stat(l.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ObjectInfo{}, false, nil
		}
		return ObjectInfo{}, false, transportErr("info", key, err)
	}
	if stat.IsDir() != strings.HasSuffix(key, "/") {
		return ObjectInfo{}, false, nil
	}
	size := stat.Size()
	if stat.IsDir() {
		size = 0
	}
	return ObjectInfo{Key: key, Size: size, Modified: stat.ModTime()}, true, nil
}

func (l *Local) Fetch(ctx context.Context, key, dest string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, transportErr("fetch", key, ctx.Err())
	default:
	}
	src, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, transportErr("fetch", key, err)
	}
	defer src.Close()
	if err := copyAtomic(dest, src); err != nil {
		return false, transportErr("fetch", key, err)
	}
	return true, nil
}

func (l *Local) Put(ctx context.Context, key, src string) error {
	select {
	case <-ctx.Done():
		return transportErr("put", key, ctx.Err())
	default:
	}
	target := l.path(key)
	if src == "" {
		if strings.HasSuffix(key, "/") {
			return transportErr("put", key, os.MkdirAll(target, 0o750))
		}
		return transportErr("put", key, copyAtomic(target, strings.NewReader("")))
	}
	in, err := os.Open(src)
	if err != nil {
		return transportErr("put", key, err)
	}
	defer in.Close()
	return transportErr("put", key, copyAtomic(target, in))
}

func (l *Local) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	select {
	case <-ctx.Done():
		return nil, transportErr("list", prefix, ctx.Err())
	default:
	}
	bucketRoot := filepath.Join(l.BasePath, l.bucket)
	root := l.path(prefix)
	infos := []ObjectInfo{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".part") {
			return nil
		}
		rel, relErr := filepath.Rel(bucketRoot, p)
		if relErr != nil {
			return nil
		}
		stat, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		infos = append(infos, ObjectInfo{Key: filepath.ToSlash(rel), Size: stat.Size(), Modified: stat.ModTime()})
		return nil
	})
	if err != nil {
		return nil, transportErr("list", prefix, err)
	}
	return infos, nil
}

// SignedURL links to BaseURL with an expiry and, when a secret is configured,
// an HMAC over key and expiry that the serving side can verify.
func (l *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if l.BaseURL == "" {
		return "", ErrSignedURLUnsupported
	}
	expires := strconv.FormatInt(l.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	if l.secret != "" {
		q.Set("signature", Sign(l.secret, key, expires))
	}
	return fmt.Sprintf("%s/%s/%s?%s", l.BaseURL, l.bucket, key, q.Encode()), nil
}

func (l *Local) Buckets(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.BasePath)
	if err != nil {
		return nil, transportErr("list buckets", "", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Sign returns the hex HMAC-SHA256 of key and expires.
func Sign(secret, key, expires string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func copyAtomic(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := target + ".part"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

var _ Gateway = (*Local)(nil)
