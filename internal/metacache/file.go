package metacache

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rowjay/pkgcache/internal/compress"
)

// Entry layout: big-endian unix expiry (0 for none), one codec tag byte, payload.
const fileHeaderLen = 9

var codecTags = map[string]byte{compress.TypeNone: 'n', compress.TypeGzip: 'g', compress.TypeZstd: 'z'}

// File stores one compressed entry per key below Dir. Entries written with a
// different codec stay readable.
type File struct {
	Dir   string
	codec compress.Codec
	now   func() time.Time
}

func NewFile(dir, compression string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file cache directory is required")
	}
	codec, err := compress.ForName(compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &File{Dir: dir, codec: codec, now: time.Now}, nil
}

func codecForTag(tag byte) (compress.Codec, error) {
	for name, t := range codecTags {
		if t == tag {
			return compress.ForName(name)
		}
	}
	return nil, fmt.Errorf("unknown codec tag %q", tag)
}

func (f *File) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(f.Dir, hex.EncodeToString(sum[:])+".cache")
}

func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	path := f.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(data) < fileHeaderLen {
		_ = os.Remove(path)
		return nil, false, nil
	}
	expires := int64(binary.BigEndian.Uint64(data[:8]))
	if expires != 0 && f.now().Unix() >= expires {
		_ = os.Remove(path)
		return nil, false, nil
	}
	value, err := decodeEntry(data)
	if err != nil {
		_ = os.Remove(path)
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return value, true, nil
}

func decodeEntry(data []byte) ([]byte, error) {
	codec, err := codecForTag(data[8])
	if err != nil {
		return nil, err
	}
	return codec.Decode(data[fileHeaderLen:])
}

func (f *File) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	payload, err := f.codec.Encode(value)
	if err != nil {
		return err
	}
	var expires int64
	if ttl > 0 {
		expires = f.now().Add(ttl).Unix()
	}
	buf := make([]byte, fileHeaderLen, fileHeaderLen+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(expires))
	buf[8] = codecTags[f.codec.Name()]
	buf = append(buf, payload...)

	target := f.path(key)
	tmp, err := os.CreateTemp(f.Dir, ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
