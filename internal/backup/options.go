package backup

import (
	"os"
	"strings"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/config"
	"PgBackuper/internal/s3"
)

type Options struct {
	DatabaseURL string
	FilePrefix  string
	Subfolder   string
	Format      archive.Format
	// ExtraArgs are appended to the pg_dump argument vector.
	ExtraArgs []string
	Verbose   bool
	// TempDir holds the dump until it is uploaded. Empty means os.TempDir().
	TempDir   string
	PgDump    string
	Tools     archive.Tools
	TailBytes int
	Upload    s3.UploadOptions
}

// OptionsFromConfig maps a validated config onto backup options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	format, err := archive.ParseFormat(cfg.Backup.Compression)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DatabaseURL: cfg.Database.URL,
		FilePrefix:  cfg.Backup.FilePrefix,
		Subfolder:   cfg.S3.Subfolder,
		Format:      format,
		ExtraArgs:   strings.Fields(cfg.Backup.Options),
		Verbose:     cfg.Backup.Verbose,
		TempDir:     cfg.Backup.TempDir,
		PgDump:      cfg.Tools.PgDump,
		Tools:       archive.Tools{Gzip: cfg.Tools.Gzip, Zstd: cfg.Tools.Zstd},
		TailBytes:   cfg.Backup.StderrTailBytes,
		Upload: s3.UploadOptions{
			PartSize: cfg.S3.PartSizeBytes(),
			Checksum: cfg.S3.ObjectLock,
		},
	}, nil
}

func (o Options) tempDir() string {
	if o.TempDir != "" {
		return o.TempDir
	}
	return os.TempDir()
}

func (o Options) pgDump() string {
	if o.PgDump != "" {
		return o.PgDump
	}
	return "pg_dump"
}

// DumpArgs is the pg_dump argument vector. The password is not part of it;
// see DumpEnv.
func (o Options) DumpArgs() []string {
	conn, _ := config.SplitPassword(o.DatabaseURL)
	args := []string{"--dbname=" + conn, "--format=tar"}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return append(args, o.ExtraArgs...)
}

// DumpEnv carries the database password to pg_dump as PGPASSWORD.
func (o Options) DumpEnv() []string {
	_, env := config.SplitPassword(o.DatabaseURL)
	return env
}
