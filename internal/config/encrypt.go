package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/rowjay/pkgcache/internal/cryptoutil"
)

// EncryptConfigFile writes an encrypted copy of a plaintext config that Load
// can read back with PKGCACHE_CONFIG_KEY. The output must carry an .enc or
// .encrypted suffix and the input must parse in the format that suffix implies.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if !isEncryptedPath(outputPath) {
		return &ConfigError{Field: "output", Reason: "encrypted config must end in .enc or .encrypted"}
	}
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return &ConfigError{Field: "output", Reason: "output must differ from input"}
	}
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	vp := viper.New()
	vp.SetConfigType(configTypeFromPath(outputPath))
	if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
		return fmt.Errorf("parse %s: %w", inputPath, err)
	}
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	tmp := outputPath + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, outputPath)
}
