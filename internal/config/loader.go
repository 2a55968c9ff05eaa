package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/pgbackuper/config.yaml"
	EnvConfigPath     = "PGBACKUPER_CONFIG"
)

// ResolveConfigPath returns $PGBACKUPER_CONFIG or the default path.
func ResolveConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath
}

type binding struct {
	key  string
	def  any
	envs []string
}

// Legacy names come first so existing deployments keep working unchanged.
var bindings = []binding{
	{"s3.endpoint", "", []string{"CLOUDFLARE_R2_ENDPOINT", "PGBACKUPER_S3_ENDPOINT"}},
	{"s3.region", "auto", []string{"PGBACKUPER_S3_REGION"}},
	{"s3.access_key", "", []string{"CLOUDFLARE_R2_ACCESS_KEY_ID", "PGBACKUPER_S3_ACCESS_KEY"}},
	{"s3.secret_key", "", []string{"CLOUDFLARE_R2_SECRET_ACCESS_KEY", "PGBACKUPER_S3_SECRET_KEY"}},
	{"s3.bucket", "", []string{"CLOUDFLARE_R2_BUCKET_NAME", "PGBACKUPER_S3_BUCKET"}},
	{"s3.subfolder", "backup-db", []string{"BUCKET_SUBFOLDER", "PGBACKUPER_S3_SUBFOLDER"}},
	{"s3.path_style", false, []string{"PGBACKUPER_S3_PATH_STYLE"}},
	{"s3.insecure_skip_verify", false, []string{"PGBACKUPER_S3_INSECURE_SKIP_VERIFY"}},
	{"s3.object_lock", false, []string{"SUPPORT_OBJECT_LOCK", "PGBACKUPER_S3_OBJECT_LOCK"}},
	{"s3.part_size_mb", 8, []string{"PGBACKUPER_S3_PART_SIZE_MB"}},

	{"database.url", "", []string{"BACKUP_DATABASE_URL", "PGBACKUPER_DATABASE_URL"}},

	{"backup.schedule", "0 5 * * *", []string{"BACKUP_CRON_SCHEDULE", "PGBACKUPER_SCHEDULE"}},
	{"backup.run_on_startup", false, []string{"RUN_ON_STARTUP"}},
	{"backup.single_shot", false, []string{"SINGLE_SHOT_MODE"}},
	{"backup.file_prefix", "backup", []string{"BACKUP_FILE_PREFIX"}},
	{"backup.options", "", []string{"BACKUP_OPTIONS"}},
	{"backup.verbose", false, []string{"BACKUP_VERBOSE"}},
	{"backup.compression", "gzip", []string{"PGBACKUPER_COMPRESSION"}},
	{"backup.temp_dir", "", []string{"PGBACKUPER_TEMP_DIR"}},
	{"backup.stderr_tail_bytes", 8 * 1024, []string{"PGBACKUPER_STDERR_TAIL_BYTES"}},

	{"restore.enabled", false, []string{"RESTORE_ENABLED"}},
	{"restore.api_key", "", []string{"API_KEY"}},
	{"restore.jwt_secret", "", []string{"JWT_SECRET"}},
	{"restore.token_ttl", 7 * 24 * time.Hour, []string{"PGBACKUPER_TOKEN_TTL"}},
	{"restore.verify_checksum", true, []string{"PGBACKUPER_VERIFY_CHECKSUM"}},

	{"server.port", "3000", []string{"PORT"}},
	{"server.public_dir", "", []string{"PGBACKUPER_PUBLIC_DIR"}},
	{"server.allowed_origins", []string{}, []string{"PGBACKUPER_ALLOWED_ORIGINS"}},
	{"server.metrics", true, []string{"PGBACKUPER_METRICS"}},
	{"server.login_rate_per_minute", 10, []string{"PGBACKUPER_LOGIN_RATE_PER_MINUTE"}},

	{"tools.pg_dump", "pg_dump", []string{"PGBACKUPER_PG_DUMP"}},
	{"tools.pg_restore", "pg_restore", []string{"PGBACKUPER_PG_RESTORE"}},
	{"tools.gzip", "gzip", []string{"PGBACKUPER_GZIP"}},
	{"tools.zstd", "zstd", []string{"PGBACKUPER_ZSTD"}},

	{"retention.days", 0, []string{"PGBACKUPER_RETENTION_DAYS"}},
	{"retention.weeks", 0, []string{"PGBACKUPER_RETENTION_WEEKS"}},
	{"retention.months", 0, []string{"PGBACKUPER_RETENTION_MONTHS"}},
	{"retention.keep_last", 0, []string{"PGBACKUPER_RETENTION_KEEP_LAST"}},
	{"retention.after_backup", false, []string{"PGBACKUPER_RETENTION_AFTER_BACKUP"}},

	{"notifications.discord.enabled", false, []string{"PGBACKUPER_DISCORD_ENABLED"}},
	{"notifications.discord.webhook_url", "", []string{"PGBACKUPER_DISCORD_WEBHOOK_URL"}},
	{"notifications.discord.events", []string{}, []string{"PGBACKUPER_DISCORD_EVENTS"}},
	{"notifications.discord.timeout_seconds", 10, []string{"PGBACKUPER_DISCORD_TIMEOUT_SECONDS"}},
	{"notifications.discord.retry.attempts", 3, []string{"PGBACKUPER_DISCORD_RETRY_ATTEMPTS"}},
	{"notifications.discord.retry.backoff_ms", 1000, []string{"PGBACKUPER_DISCORD_RETRY_BACKOFF_MS"}},
	{"notifications.discord.mentions.on_error", "", []string{"PGBACKUPER_DISCORD_MENTION_ON_ERROR"}},

	{"log.level", "info", []string{"PGBACKUPER_LOG_LEVEL", "LOG_LEVEL"}},
	{"log.format", "json", []string{"PGBACKUPER_LOG_FORMAT", "LOG_FORMAT"}},

	{"lock.backend", "local", []string{"PGBACKUPER_LOCK_BACKEND"}},
	{"lock.dir", filepath.Join(os.TempDir(), "pgbackuper"), []string{"PGBACKUPER_LOCK_DIR"}},
	{"lock.ttl", 6 * time.Hour, []string{"PGBACKUPER_LOCK_TTL"}},
}

type LoadOptions struct {
	// ConfigPath is an explicit config file; it must exist. When empty the
	// resolved default path is read if present.
	ConfigPath string
	CheckPerms bool
	// EnvFile is loaded into the process environment without overriding
	// variables that are already set. Defaults to ".env"; a missing file is ignored.
	EnvFile string
}

// Load reads configuration from the environment, an optional .env file and
// an optional YAML file. Environment variables take precedence over the file.
func Load(opts LoadOptions) (*viper.Viper, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.key, err)
		}
	}

	path := opts.ConfigPath
	explicit := path != ""
	if !explicit {
		path = ResolveConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return v, nil
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	if opts.CheckPerms {
		if err := checkConfigPermissions(path); err != nil {
			return nil, err
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return v, nil
}

// LoadConfig is Load followed by Unmarshal and Validate.
func LoadConfig(opts LoadOptions) (*Config, error) {
	v, err := Load(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkConfigPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mode := info.Mode().Perm()

	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %s (recommended: 0600)", path, mode)
	}
	return nil
}

// ReadFile decodes only the YAML file at path over the defaults, ignoring
// the environment, so that rewriting it never persists secrets from env.
// A missing file yields Defaults.
func ReadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
