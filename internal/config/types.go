package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Server        ServerConfig        `mapstructure:"server"`
	Cloud         CloudConfig         `mapstructure:"cloud"`
	Packages      PackagesConfig      `mapstructure:"packages"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LogFile          string        `mapstructure:"log_file"`   // optional; rotated when set
	LogMaxSizeMB     int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups    int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays    int           `mapstructure:"log_max_age_days"`
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
}

type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"`
}

// CloudConfig is the cloud storage settings surface. Bucket is the storage unit.
type CloudConfig struct {
	Enabled         bool       `mapstructure:"enabled"`
	Backend         string     `mapstructure:"backend"` // s3, local
	Endpoint        string     `mapstructure:"endpoint"`
	Region          string     `mapstructure:"region"`
	Bucket          string     `mapstructure:"bucket"`
	AccessKey       string     `mapstructure:"access_key"`
	SecretKey       string     `mapstructure:"secret_key"`
	SessionToken    string     `mapstructure:"session_token"`
	UseSSL          bool       `mapstructure:"use_ssl"`
	ForcePathStyle  bool       `mapstructure:"force_path_style"`
	TLSInsecureSkip bool       `mapstructure:"tls_insecure_skip"`
	FingerprintETag bool       `mapstructure:"fingerprint_etag"`
	Local           LocalStore `mapstructure:"local"`
}

type LocalStore struct {
	Path    string `mapstructure:"path"`
	BaseURL string `mapstructure:"base_url"`
}

type PackagesConfig struct {
	Dir         string        `mapstructure:"dir"`
	LockSlugs   bool          `mapstructure:"lock_slugs"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, file, redis, none
	Dir           string        `mapstructure:"dir"`
	Compression   string        `mapstructure:"compression"` // file backend: zstd, gzip, none
	MetadataTTL   time.Duration `mapstructure:"metadata_ttl"`
	InfoTTL       time.Duration `mapstructure:"info_ttl"`
	RedisURL      string        `mapstructure:"redis_url"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

type CatalogConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}

type ScheduleConfig struct {
	WindowStart   string        `mapstructure:"window_start"` // HH:MM local time
	WindowEnd     string        `mapstructure:"window_end"`
	Timezone      string        `mapstructure:"timezone"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}
