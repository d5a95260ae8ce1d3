// Package cryptoutil encrypts configuration files at rest with AES-256-GCM.
package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	configMagic = "PKC1"
	configVer   = uint16(1)

	// KeySize is the length of a config key in bytes.
	KeySize = 32
)

// ParseKey decodes a config key given as base64 or hex, optionally marked
// with a "base64:" or "hex:" prefix.
func ParseKey(key string) ([]byte, error) {
	s := strings.TrimSpace(key)
	if s == "" {
		return nil, errors.New("config key is empty")
	}
	decoders := []func(string) ([]byte, error){base64.StdEncoding.DecodeString, hex.DecodeString}
	if rest, ok := strings.CutPrefix(s, "base64:"); ok {
		s, decoders = rest, decoders[:1]
	} else if rest, ok := strings.CutPrefix(s, "hex:"); ok {
		s, decoders = rest, decoders[1:]
	}
	var lastErr error
	for _, decode := range decoders {
		data, err := decode(s)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("decode config key: %w", err)
		case len(data) != KeySize:
			lastErr = fmt.Errorf("config key is %d bytes, want %d", len(data), KeySize)
		default:
			return data, nil
		}
	}
	return nil, lastErr
}

var (
	ErrNotEncrypted = errors.New("payload is not an encrypted config")
	ErrVersion      = errors.New("unsupported encrypted config version")
)

// header is the authenticated prefix of an encrypted config: magic then a
// big-endian format version.
func header() []byte {
	return binary.BigEndian.AppendUint16([]byte(configMagic), configVer)
}

// GenerateKey returns a random config key encoded for ParseKey.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return "base64:" + base64.StdEncoding.EncodeToString(key), nil
}

// EncryptConfig seals plain as header|nonce|ciphertext.
func EncryptConfig(plain, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	hdr := header()
	out := make([]byte, len(hdr)+aead.NonceSize(), len(hdr)+aead.NonceSize()+len(plain)+aead.Overhead())
	copy(out, hdr)
	nonce := out[len(hdr):]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, plain, hdr), nil
}

// DecryptConfig opens a payload produced by EncryptConfig.
func DecryptConfig(sealed, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	hdr := header()
	if len(sealed) < len(hdr)+aead.NonceSize() || !bytes.Equal(sealed[:len(configMagic)], hdr[:len(configMagic)]) {
		return nil, ErrNotEncrypted
	}
	if !bytes.Equal(sealed[:len(hdr)], hdr) {
		return nil, fmt.Errorf("%w: %d", ErrVersion, binary.BigEndian.Uint16(sealed[len(configMagic):len(hdr)]))
	}
	nonce := sealed[len(hdr) : len(hdr)+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, sealed[len(hdr)+aead.NonceSize():], hdr)
	if err != nil {
		return nil, fmt.Errorf("open encrypted config: %w", err)
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("config key is %d bytes, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
