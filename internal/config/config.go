package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	S3            S3Config            `mapstructure:"s3" yaml:"s3"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Backup        BackupConfig        `mapstructure:"backup" yaml:"backup"`
	Restore       RestoreConfig       `mapstructure:"restore" yaml:"restore"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Tools         ToolsConfig         `mapstructure:"tools" yaml:"tools"`
	Retention     RetentionConfig     `mapstructure:"retention" yaml:"retention"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Lock          LockConfig          `mapstructure:"lock" yaml:"lock"`
}

type S3Config struct {
	Endpoint           string `mapstructure:"endpoint" yaml:"endpoint"`
	Region             string `mapstructure:"region" yaml:"region"`
	AccessKey          string `mapstructure:"access_key" yaml:"access_key" validate:"required"`
	SecretKey          string `mapstructure:"secret_key" yaml:"secret_key" validate:"required"`
	Bucket             string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	Subfolder          string `mapstructure:"subfolder" yaml:"subfolder"`
	PathStyle          bool   `mapstructure:"path_style" yaml:"path_style"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// ObjectLock sends Content-MD5 with every upload request.
	ObjectLock bool `mapstructure:"object_lock" yaml:"object_lock"`
	PartSizeMB int  `mapstructure:"part_size_mb" yaml:"part_size_mb" validate:"gte=5,lte=5120"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url" validate:"required"`
}

type BackupConfig struct {
	Schedule     string `mapstructure:"schedule" yaml:"schedule" validate:"required"`
	RunOnStartup bool   `mapstructure:"run_on_startup" yaml:"run_on_startup"`
	SingleShot   bool   `mapstructure:"single_shot" yaml:"single_shot"`
	FilePrefix   string `mapstructure:"file_prefix" yaml:"file_prefix" validate:"required"`
	// Options holds extra pg_dump arguments separated by whitespace.
	Options         string `mapstructure:"options" yaml:"options"`
	Verbose         bool   `mapstructure:"verbose" yaml:"verbose"`
	Compression     string `mapstructure:"compression" yaml:"compression"`
	TempDir         string `mapstructure:"temp_dir" yaml:"temp_dir"`
	StderrTailBytes int    `mapstructure:"stderr_tail_bytes" yaml:"stderr_tail_bytes" validate:"gte=0"`
}

type RestoreConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	JWTSecret      string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
	VerifyChecksum bool          `mapstructure:"verify_checksum" yaml:"verify_checksum"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port" yaml:"port" validate:"required,numeric"`
	PublicDir      string   `mapstructure:"public_dir" yaml:"public_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Metrics        bool     `mapstructure:"metrics" yaml:"metrics"`
	// LoginRatePerMinute bounds login attempts per client IP.
	LoginRatePerMinute int `mapstructure:"login_rate_per_minute" yaml:"login_rate_per_minute" validate:"gte=1"`
}

type ToolsConfig struct {
	PgDump    string `mapstructure:"pg_dump" yaml:"pg_dump"`
	PgRestore string `mapstructure:"pg_restore" yaml:"pg_restore"`
	Gzip      string `mapstructure:"gzip" yaml:"gzip"`
	Zstd      string `mapstructure:"zstd" yaml:"zstd"`
}

type RetentionConfig struct {
	Days   int `mapstructure:"days" yaml:"days" validate:"gte=0"`
	Weeks  int `mapstructure:"weeks" yaml:"weeks" validate:"gte=0"`
	Months int `mapstructure:"months" yaml:"months" validate:"gte=0"`
	// KeepLast archives are never pruned regardless of age.
	KeepLast int `mapstructure:"keep_last" yaml:"keep_last" validate:"gte=0"`
	// AfterBackup prunes right after every successful backup.
	AfterBackup bool `mapstructure:"after_backup" yaml:"after_backup"`
}

type NotificationsConfig struct {
	Discord DiscordConfig `mapstructure:"discord" yaml:"discord"`
}

type DiscordConfig struct {
	Enabled        bool            `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL     string          `mapstructure:"webhook_url" yaml:"webhook_url" validate:"required_if=Enabled true,omitempty,url"`
	Events         []string        `mapstructure:"events" yaml:"events" validate:"dive,oneof=start success warning error prune restore"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
	Retry          DiscordRetry    `mapstructure:"retry" yaml:"retry"`
	Mentions       DiscordMentions `mapstructure:"mentions" yaml:"mentions"`
}

type DiscordRetry struct {
	Attempts  int `mapstructure:"attempts" yaml:"attempts" validate:"gte=0,lte=10"`
	BackoffMs int `mapstructure:"backoff_ms" yaml:"backoff_ms" validate:"gte=0"`
}

type DiscordMentions struct {
	OnError string `mapstructure:"on_error" yaml:"on_error"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`
}

type LockConfig struct {
	// Backend is "local" (lock file in Dir) or "s3" (lock object next to the
	// backups, for several hosts sharing one prefix).
	Backend string        `mapstructure:"backend" yaml:"backend" validate:"oneof=local s3"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
}

// PartSizeBytes is the multipart threshold and part size.
func (c S3Config) PartSizeBytes() int64 {
	return int64(c.PartSizeMB) * 1024 * 1024
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
