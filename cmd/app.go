package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/backup"
	"PgBackuper/internal/catalog"
	"PgBackuper/internal/config"
	"PgBackuper/internal/lock"
	"PgBackuper/internal/logging"
	"PgBackuper/internal/metrics"
	"PgBackuper/internal/notifier"
	"PgBackuper/internal/restore"
	"PgBackuper/internal/s3"
)

// app holds what every command builds from the loaded configuration.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	s3       *s3.Client
	notifier notifier.Notifier
	metrics  metrics.Recorder
	registry *prometheus.Registry
}

func loadConfig(checkPerms bool) (*config.Config, error) {
	return config.LoadConfig(config.LoadOptions{
		ConfigPath: configPath,
		EnvFile:    envFile,
		CheckPerms: checkPerms,
	})
}

func newLogger(cfg *config.Config) zerolog.Logger {
	lc := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	return logging.New(lc)
}

// newApp loads and validates configuration and connects the S3 client.
// withMetrics registers Prometheus collectors; commands that exit right away
// use a no-op recorder.
func newApp(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg), metrics: metrics.Noop{}}

	a.s3, err = s3.New(ctx, s3Options(cfg.S3))
	if err != nil {
		return nil, err
	}

	a.notifier, err = notifier.New(cfg.Notifications, databaseLabel(cfg.Database.URL))
	if err != nil {
		a.log.Warn().Err(err).Msg("discord notifications disabled")
		a.notifier = notifier.Nop{}
	}

	if withMetrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := metrics.NewProm(a.registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.metrics = prom
	}
	return a, nil
}

func s3Options(c config.S3Config) s3.Options {
	return s3.Options{
		Endpoint:                c.Endpoint,
		Region:                  c.Region,
		AccessKey:               c.AccessKey,
		SecretKey:               c.SecretKey,
		Bucket:                  c.Bucket,
		PathStyle:               c.PathStyle,
		InsecureSkipVerify:      c.InsecureSkipVerify,
		DisableRequestChecksums: true,
	}
}

// databaseLabel names the database in notifications without credentials.
func databaseLabel(url string) string {
	return logging.RedactURL(url)
}

func (a *app) lister() *catalog.Lister {
	return catalog.NewLister(a.s3, a.cfg.S3.Subfolder)
}

func (a *app) retention() *catalog.Retention {
	return &catalog.Retention{
		Lister:  a.lister(),
		Deleter: a.s3,
		Policy: catalog.Policy{
			Days:     a.cfg.Retention.MaxAgeDays(),
			KeepLast: a.cfg.Retention.KeepLast,
		},
	}
}

func (a *app) backupLocker() (lock.Locker, error) {
	if a.cfg.Lock.Backend == "s3" {
		return lock.NewS3(lock.S3Options{
			Store:  a.s3,
			Prefix: archive.ListPrefix(a.cfg.S3.Subfolder),
			TTL:    a.cfg.Lock.TTL,
		})
	}
	return lock.NewLocal(lock.LocalOptions{Dir: a.cfg.Lock.Dir, TTL: a.cfg.Lock.TTL})
}

func (a *app) backupService() (*backup.Service, error) {
	opts, err := backup.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	locker, err := a.backupLocker()
	if err != nil {
		return nil, err
	}
	if err := ensureDir(opts.TempDir); err != nil {
		return nil, err
	}
	options := []backup.Option{
		backup.WithNotifier(a.notifier),
		backup.WithMetrics(a.metrics),
		backup.WithLocker(locker),
	}
	if a.cfg.Retention.AfterBackup && a.cfg.Retention.Enabled() {
		options = append(options, backup.WithPruner(a.retention()))
	}
	return backup.New(opts, a.s3, a.log, options...), nil
}

func (a *app) restoreService() (*restore.Service, error) {
	opts := restore.OptionsFromConfig(a.cfg)
	if err := ensureDir(opts.TempDir); err != nil {
		return nil, err
	}
	return restore.New(opts, a.s3, a.log,
		restore.WithNotifier(a.notifier),
		restore.WithMetrics(a.metrics),
	), nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	return nil
}
