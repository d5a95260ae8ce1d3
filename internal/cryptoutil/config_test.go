package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestParseKeyForms(t *testing.T) {
	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	tests := []struct {
		name string
		key  string
	}{
		{"base64", base64.StdEncoding.EncodeToString(raw)},
		{"base64 prefixed", "base64:" + base64.StdEncoding.EncodeToString(raw)},
		{"hex", hex.EncodeToString(raw)},
		{"hex prefixed", " hex:" + hex.EncodeToString(raw) + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseKey(tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(parsed) != string(raw) {
				t.Fatalf("unexpected key bytes: %x", parsed)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key, err := ParseKey("hex:" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sealed, err := EncryptConfig([]byte("cloud:\n  enabled: true\n"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := DecryptConfig(sealed, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !strings.Contains(string(plain), "enabled: true") {
		t.Fatalf("unexpected plaintext: %q", plain)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := DecryptConfig(tampered, key); err == nil {
		t.Fatalf("expected authentication failure")
	}
	sealed[4] = 9
	if _, err := DecryptConfig(sealed, key); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, err := DecryptConfig([]byte("cloud:\n  enabled: true\n"), key); !errors.Is(err, ErrNotEncrypted) {
		t.Fatalf("expected ErrNotEncrypted, got %v", err)
	}
}

func TestGenerateKeyParses(t *testing.T) {
	encoded, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseKey(encoded); err != nil {
		t.Fatalf("generated key must parse: %v", err)
	}
}

func TestParseKeyRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "   ", "hex:abcd", "base64:" + hex.EncodeToString(make([]byte, KeySize)), "not a key!"} {
		if _, err := ParseKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}
