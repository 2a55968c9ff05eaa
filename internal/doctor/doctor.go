// Package doctor runs environment checks before backups are trusted to run
// unattended.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/config"
	"PgBackuper/internal/lock"
	"PgBackuper/internal/logging"
	"PgBackuper/internal/s3"
)

type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Run executes checks in order, each bounded by timeout.
func Run(ctx context.Context, checks []Check, timeout time.Duration) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		detail, err := c.Run(cctx)
		cancel()
		if err != nil {
			results = append(results, CheckResult{Name: c.Name, Detail: err.Error()})
			continue
		}
		results = append(results, CheckResult{Name: c.Name, OK: true, Detail: detail})
	}
	return results
}

// Checks returns the standard checks for cfg.
func Checks(cfg *config.Config) []Check {
	format, _ := archive.ParseFormat(cfg.Backup.Compression)
	compressor := format.Compressor(archive.Tools{Gzip: cfg.Tools.Gzip, Zstd: cfg.Tools.Zstd})
	tempDir := cfg.Backup.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	checks := []Check{
		{Name: "s3", Run: func(ctx context.Context) (string, error) { return checkS3(ctx, cfg.S3) }},
		{Name: "database", Run: func(ctx context.Context) (string, error) { return checkDatabase(ctx, cfg.Database.URL) }},
		{Name: "pg_dump", Run: tool(cfg.Tools.PgDump, "pg_dump")},
		{Name: compressor.Name, Run: tool(compressor.Path, compressor.Name)},
	}
	if cfg.Restore.Enabled {
		checks = append(checks, Check{Name: "pg_restore", Run: tool(cfg.Tools.PgRestore, "pg_restore")})
	}
	return append(checks,
		Check{Name: "temp dir", Run: func(context.Context) (string, error) { return checkDir(tempDir) }},
		Check{Name: "lock", Run: func(ctx context.Context) (string, error) { return checkLock(ctx, cfg) }},
	)
}

func newClient(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	client, err := s3.New(ctx, s3.Options{
		Endpoint:                cfg.Endpoint,
		Region:                  cfg.Region,
		AccessKey:               cfg.AccessKey,
		SecretKey:               cfg.SecretKey,
		Bucket:                  cfg.Bucket,
		PathStyle:               cfg.PathStyle,
		InsecureSkipVerify:      cfg.InsecureSkipVerify,
		DisableRequestChecksums: true,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client init failed: %w", err)
	}
	return client, nil
}

func checkS3(ctx context.Context, cfg config.S3Config) (string, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := client.Ping(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("bucket %s reachable (prefix=%q)", cfg.Bucket, archive.ListPrefix(cfg.Subfolder)), nil
}

func checkDatabase(ctx context.Context, url string) (string, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", logging.RedactURL(url), err)
	}
	defer conn.Close(context.WithoutCancel(ctx))
	var version string
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return "postgres " + version, nil
}

func tool(path, fallback string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		if path == "" {
			path = fallback
		}
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%s not found: %w", path, err)
		}
		return resolved, nil
	}
}

func checkDir(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "pgbackuper-doctor-*")
	if err != nil {
		return "", fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("test"); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return dir + " writable", nil
}

// checkLock takes and releases a lock named "doctor" on the configured
// backend, so it never contends with a running backup.
func checkLock(ctx context.Context, cfg *config.Config) (string, error) {
	var (
		l     lock.Locker
		where string
	)
	if cfg.Lock.Backend == "s3" {
		client, err := newClient(ctx, cfg.S3)
		if err != nil {
			return "", err
		}
		sl, err := lock.NewS3(lock.S3Options{Store: client, Prefix: archive.ListPrefix(cfg.S3.Subfolder), Name: "doctor", TTL: cfg.Lock.TTL})
		if err != nil {
			return "", err
		}
		l, where = sl, "s3://"+cfg.S3.Bucket+"/"+sl.Key()
	} else {
		ll, err := lock.NewLocal(lock.LocalOptions{Dir: cfg.Lock.Dir, Name: "doctor", TTL: cfg.Lock.TTL})
		if err != nil {
			return "", err
		}
		l, where = ll, filepath.Dir(ll.Path())
	}
	if err := l.Acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire: %w", err)
	}
	if err := l.Release(context.WithoutCancel(ctx)); err != nil {
		return "", fmt.Errorf("release: %w", err)
	}
	return where + " accessible", nil
}
