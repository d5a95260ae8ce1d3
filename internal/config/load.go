package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rowjay/pkgcache/internal/cryptoutil"
)

const (
	envPrefix = "PKGCACHE"
)

// KeyEnv names the variable holding the key for encrypted config files.
const KeyEnv = envPrefix + "_CONFIG_KEY"

// Load merges defaults, an optional config file (plain or encrypted), .env
// and PKGCACHE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	setDefaults(vp)

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := readConfigFile(vp, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func readConfigFile(vp *viper.Viper, path string) error {
	if !isEncryptedPath(path) {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	key := os.Getenv(KeyEnv)
	if key == "" {
		key = vp.GetString("global.config_passphrase")
	}
	if key == "" {
		return errors.New("config file is encrypted but " + KeyEnv + " is not set")
	}
	plain, err := decryptConfig(data, key)
	if err != nil {
		return fmt.Errorf("decrypt config %s: %w", path, err)
	}
	vp.SetConfigType(configTypeFromPath(path))
	if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// findConfigFile looks at PKGCACHE_CONFIG, then the working directory, then
// the user config dir and /etc/pkgcache. Plain files win over encrypted ones
// in the same directory.
func findConfigFile() string {
	if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		return p
	}
	dirs := []string{"."}
	if d, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(d, "pkgcache"))
	}
	dirs = append(dirs, "/etc/pkgcache")
	for _, dir := range dirs {
		for _, suffix := range []string{"", ".enc", ".encrypted"} {
			for _, ext := range []string{"yaml", "yml", "toml", "json"} {
				p := filepath.Join(dir, "pkgcache."+ext+suffix)
				if _, err := os.Stat(p); err == nil {
					return p
				}
			}
		}
	}
	return ""
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

// configTypeFromPath names the viper format under any encryption suffix.
func configTypeFromPath(path string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch filepath.Ext(base) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.log_max_size_mb", 100)
	vp.SetDefault("global.log_max_backups", 5)
	vp.SetDefault("global.log_max_age_days", 30)
	vp.SetDefault("global.operation_timeout", "10m")
	vp.SetDefault("server.listen", ":8080")
	vp.SetDefault("server.mode", "release")
	vp.SetDefault("server.read_timeout", "30s")
	vp.SetDefault("server.write_timeout", "5m")
	vp.SetDefault("cloud.enabled", false)
	vp.SetDefault("cloud.backend", "s3")
	vp.SetDefault("cloud.use_ssl", true)
	vp.SetDefault("packages.dir", "./data/packages")
	vp.SetDefault("packages.lock_slugs", true)
	vp.SetDefault("packages.lock_timeout", "30s")
	vp.SetDefault("packages.stale_after", "1h")
	vp.SetDefault("cache.backend", "file")
	vp.SetDefault("cache.dir", "./data/cache")
	vp.SetDefault("cache.compression", "zstd")
	vp.SetDefault("cache.metadata_ttl", "168h")
	vp.SetDefault("cache.info_ttl", "1m")
	vp.SetDefault("cache.key_prefix", "pkgcache:")
	vp.SetDefault("catalog.parallelism", 4)
	vp.SetDefault("schedule.sweep_interval", "15m")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 10 * time.Minute
	}
	if cfg.Cache.MetadataTTL == 0 {
		cfg.Cache.MetadataTTL = 7 * 24 * time.Hour
	}
	if cfg.Cache.InfoTTL == 0 {
		cfg.Cache.InfoTTL = time.Minute
	}
	if cfg.Catalog.Parallelism <= 0 {
		cfg.Catalog.Parallelism = 1
	}
	cfg.Cloud.Backend = strings.ToLower(cfg.Cloud.Backend)
	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)
}

func expandEnv(cfg *Config) {
	cfg.Cloud.AccessKey = os.ExpandEnv(cfg.Cloud.AccessKey)
	cfg.Cloud.SecretKey = os.ExpandEnv(cfg.Cloud.SecretKey)
	cfg.Cloud.SessionToken = os.ExpandEnv(cfg.Cloud.SessionToken)
	cfg.Cache.RedisPassword = os.ExpandEnv(cfg.Cache.RedisPassword)
	cfg.Cache.RedisURL = os.ExpandEnv(cfg.Cache.RedisURL)
	cfg.Server.APIKey = os.ExpandEnv(cfg.Server.APIKey)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
