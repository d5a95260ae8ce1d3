// Package compress encodes cached metadata values.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

// Codec compresses whole values. Implementations are safe for concurrent use.
type Codec interface {
	Name() string
	Encode(value []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// ForName returns the codec registered under kind. An empty kind selects zstd.
func ForName(kind string) (Codec, error) {
	switch kind {
	case TypeZstd, "":
		return zstdCodec{}, nil
	case TypeGzip:
		return gzipCodec{}, nil
	case TypeNone:
		return plain{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

type plain struct{}

func (plain) Name() string                    { return TypeNone }
func (plain) Encode(v []byte) ([]byte, error) { return append([]byte(nil), v...), nil }
func (plain) Decode(p []byte) ([]byte, error) { return append([]byte(nil), p...), nil }

type gzipCodec struct{}

func (gzipCodec) Name() string { return TypeGzip }

func (gzipCodec) Encode(v []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(v); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(p []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// The shared encoder and decoder are only used through EncodeAll and
// DecodeAll, which may be called concurrently.
func zstdPair() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return TypeZstd }

func (zstdCodec) Encode(v []byte) ([]byte, error) {
	enc, _, err := zstdPair()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(v, nil), nil
}

func (zstdCodec) Decode(p []byte) ([]byte, error) {
	_, dec, err := zstdPair()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(p, nil)
}
