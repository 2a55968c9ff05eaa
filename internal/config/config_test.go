package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// validEnv sets the minimum environment for a valid configuration.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("CLOUDFLARE_R2_ACCESS_KEY_ID", strings.Repeat("a", 32))
	t.Setenv("CLOUDFLARE_R2_SECRET_ACCESS_KEY", strings.Repeat("s", 64))
	t.Setenv("CLOUDFLARE_R2_BUCKET_NAME", "backups")
	t.Setenv("CLOUDFLARE_R2_ENDPOINT", "https://account.r2.cloudflarestorage.com")
	t.Setenv("BACKUP_DATABASE_URL", "postgresql://app:pw@db:5432/app")
}

func noEnvFile(t *testing.T) LoadOptions {
	return LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoadConfig_Defaults(t *testing.T) {
	validEnv(t)
	cfg, err := LoadConfig(noEnvFile(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backup.Schedule != "0 5 * * *" {
		t.Errorf("schedule = %q", cfg.Backup.Schedule)
	}
	if cfg.Backup.FilePrefix != "backup" || cfg.S3.Subfolder != "backup-db" {
		t.Errorf("prefix = %q, subfolder = %q", cfg.Backup.FilePrefix, cfg.S3.Subfolder)
	}
	if cfg.Server.Port != "3000" || cfg.S3.Region != "auto" || cfg.Backup.Compression != "gzip" {
		t.Errorf("port = %q, region = %q, compression = %q", cfg.Server.Port, cfg.S3.Region, cfg.Backup.Compression)
	}
	if cfg.S3.PartSizeBytes() != 8*1024*1024 {
		t.Errorf("part size = %d", cfg.S3.PartSizeBytes())
	}
	if cfg.Restore.TokenTTL != 7*24*time.Hour {
		t.Errorf("token ttl = %v", cfg.Restore.TokenTTL)
	}
	if cfg.Backup.StderrTailBytes != 8192 || !cfg.Restore.VerifyChecksum {
		t.Errorf("backup = %+v, restore = %+v", cfg.Backup, cfg.Restore)
	}
	if cfg.Backup.RunOnStartup || cfg.Backup.SingleShot || cfg.Restore.Enabled || cfg.S3.ObjectLock {
		t.Error("boolean flags should default to false")
	}
}

func TestLoadConfig_LegacyEnvNames(t *testing.T) {
	validEnv(t)
	t.Setenv("BACKUP_CRON_SCHEDULE", "30 2 * * 1")
	t.Setenv("RUN_ON_STARTUP", "true")
	t.Setenv("SINGLE_SHOT_MODE", "true")
	t.Setenv("BACKUP_FILE_PREFIX", "prod")
	t.Setenv("BUCKET_SUBFOLDER", "pg/prod")
	t.Setenv("SUPPORT_OBJECT_LOCK", "true")
	t.Setenv("BACKUP_OPTIONS", "--exclude-table=audit --no-comments")
	t.Setenv("BACKUP_VERBOSE", "true")
	t.Setenv("PORT", "8080")
	t.Setenv("PGBACKUPER_TOKEN_TTL", "12h")
	t.Setenv("PGBACKUPER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig(noEnvFile(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backup.Schedule != "30 2 * * 1" || !cfg.Backup.RunOnStartup || !cfg.Backup.SingleShot {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.Backup.FilePrefix != "prod" || cfg.S3.Subfolder != "pg/prod" || !cfg.S3.ObjectLock {
		t.Errorf("prefix/subfolder/object lock = %q %q %v", cfg.Backup.FilePrefix, cfg.S3.Subfolder, cfg.S3.ObjectLock)
	}
	if cfg.Backup.Options != "--exclude-table=audit --no-comments" || !cfg.Backup.Verbose {
		t.Errorf("options = %q verbose = %v", cfg.Backup.Options, cfg.Backup.Verbose)
	}
	if cfg.Server.Port != "8080" || cfg.Restore.TokenTTL != 12*time.Hour {
		t.Errorf("port = %q ttl = %v", cfg.Server.Port, cfg.Restore.TokenTTL)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	validEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "s3:\n  bucket: from-file\n  subfolder: file-sub\nbackup:\n  compression: zstd\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := noEnvFile(t)
	opts.ConfigPath = path
	cfg, err := LoadConfig(opts)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.S3.Bucket != "backups" {
		t.Errorf("bucket = %q, environment should win over file", cfg.S3.Bucket)
	}
	if cfg.S3.Subfolder != "file-sub" || cfg.Backup.Compression != "zstd" {
		t.Errorf("subfolder = %q compression = %q", cfg.S3.Subfolder, cfg.Backup.Compression)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	opts := noEnvFile(t)
	opts.ConfigPath = filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(opts); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestLoad_CheckPerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := noEnvFile(t)
	opts.ConfigPath = path
	opts.CheckPerms = true
	if _, err := Load(opts); err == nil {
		t.Error("world-readable config should be rejected")
	}
	opts.CheckPerms = false
	if _, err := Load(opts); err != nil {
		t.Errorf("Load without perms check: %v", err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	validEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("PGBACKUPER_TEST_ONLY_PREFIX=fromdotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGBACKUPER_TEST_ONLY_PREFIX", "")
	os.Unsetenv("PGBACKUPER_TEST_ONLY_PREFIX")
	if _, err := Load(LoadOptions{EnvFile: envFile}); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PGBACKUPER_TEST_ONLY_PREFIX"); got != "fromdotenv" {
		t.Errorf("env file not loaded, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{"valid", func(c *Config) {}, nil, ""},
		{"access key too long", func(c *Config) { c.S3.AccessKey = strings.Repeat("a", 128) }, ErrInvalidCredentials, "128 characters"},
		{"secret too short", func(c *Config) { c.S3.SecretKey = strings.Repeat("s", 32) }, ErrInvalidCredentials, "32 characters"},
		{"missing bucket", func(c *Config) { c.S3.Bucket = "" }, nil, "S3.Bucket is required"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, nil, "Database.URL is required"},
		{"mysql url", func(c *Config) { c.Database.URL = "mysql://db/app" }, ErrInvalidDatabaseURL, ""},
		{"bad compression", func(c *Config) { c.Backup.Compression = "brotli" }, ErrInvalidCompression, ""},
		{"bad schedule", func(c *Config) { c.Backup.Schedule = "every day" }, nil, "invalid backup schedule"},
		{"part size too small", func(c *Config) { c.S3.PartSizeMB = 1 }, nil, "S3.PartSizeMB"},
		{"restore without api key", func(c *Config) {
			c.Restore.Enabled = true
			c.Restore.JWTSecret = strings.Repeat("j", 32)
		}, nil, "API_KEY"},
		{"restore with short jwt secret", func(c *Config) {
			c.Restore.Enabled = true
			c.Restore.APIKey = strings.Repeat("k", 16)
			c.Restore.JWTSecret = "short"
		}, nil, "JWT_SECRET"},
		{"restore fully configured", func(c *Config) {
			c.Restore.Enabled = true
			c.Restore.APIKey = strings.Repeat("k", 16)
			c.Restore.JWTSecret = strings.Repeat("j", 16)
		}, nil, ""},
		{"discord without webhook", func(c *Config) { c.Notifications.Discord.Enabled = true }, nil, "WebhookURL is required"},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "etcd" }, nil, "Lock.Backend must be one of"},
		{"s3 lock backend", func(c *Config) { c.Lock.Backend = "s3" }, nil, ""},
		{"discord unknown event", func(c *Config) { c.Notifications.Discord.Events = []string{"explode"} }, nil, "one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Sample()
			cfg.S3.AccessKey = strings.Repeat("a", 32)
			cfg.S3.SecretKey = strings.Repeat("s", 64)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == nil && tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) should fail")
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Sample()
	cfg.Retention = RetentionConfig{Days: 14, KeepLast: 3}
	if err := Write(cfg, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "token_ttl: 168h0m0s") {
		t.Errorf("durations should be written in human form:\n%s", data)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	loaded, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if loaded.S3.Bucket != cfg.S3.Bucket || loaded.Database.URL != cfg.Database.URL {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Restore.TokenTTL != cfg.Restore.TokenTTL || loaded.Lock.TTL != cfg.Lock.TTL {
		t.Errorf("durations = %v %v", loaded.Restore.TokenTTL, loaded.Lock.TTL)
	}
	if loaded.Retention.Days != 14 || loaded.Retention.KeepLast != 3 {
		t.Errorf("retention = %+v", loaded.Retention)
	}
}

func TestRetention_MaxAgeDays(t *testing.T) {
	tests := []struct {
		r    RetentionConfig
		want int
	}{
		{RetentionConfig{}, 0},
		{RetentionConfig{Days: 30}, 30},
		{RetentionConfig{Days: 7, Weeks: 2}, 14},
		{RetentionConfig{Days: 30, Weeks: 4, Months: 2}, 60},
		{RetentionConfig{KeepLast: 5}, 0},
	}
	for _, tt := range tests {
		if got := tt.r.MaxAgeDays(); got != tt.want {
			t.Errorf("%+v.MaxAgeDays() = %d, want %d", tt.r, got, tt.want)
		}
		if tt.r.Enabled() != (tt.want > 0) {
			t.Errorf("%+v.Enabled() = %v", tt.r, tt.r.Enabled())
		}
	}
}

func TestReadFile_IgnoresEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Sample()
	if err := Write(cfg, path); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGBACKUPER_S3_BUCKET", "from-env")

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.S3.Bucket != "my-backups" {
		t.Errorf("bucket = %q, want the file value", got.S3.Bucket)
	}

	missing, err := ReadFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("ReadFile(missing): %v", err)
	}
	if missing.Backup.Schedule != Defaults().Backup.Schedule {
		t.Errorf("missing file should yield defaults, got %+v", missing.Backup)
	}
}

func TestSplitPassword(t *testing.T) {
	tests := []struct {
		raw      string
		wantURL  string
		wantPass string
	}{
		{"postgres://u:p@h:5432/db", "postgres://u@h:5432/db", "p"},
		{"postgresql://u:p%2Fw@h/db?sslmode=disable", "postgresql://u@h/db?sslmode=disable", "p/w"},
		{"postgres://u@h/db?password=q&sslmode=require", "postgres://u@h/db?sslmode=require", "q"},
		{"postgres://u@h/db", "postgres://u@h/db", ""},
		{"postgres://h/db", "postgres://h/db", ""},
	}
	for _, tt := range tests {
		gotURL, env := SplitPassword(tt.raw)
		if gotURL != tt.wantURL {
			t.Errorf("SplitPassword(%q) url = %q, want %q", tt.raw, gotURL, tt.wantURL)
		}
		var gotPass string
		if len(env) == 1 {
			gotPass = strings.TrimPrefix(env[0], "PGPASSWORD=")
		}
		if gotPass != tt.wantPass || (tt.wantPass == "" && env != nil) {
			t.Errorf("SplitPassword(%q) env = %v, want password %q", tt.raw, env, tt.wantPass)
		}
	}
}
