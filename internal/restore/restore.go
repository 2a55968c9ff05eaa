// Package restore downloads an archive and pipes it through the matching
// decompressor into pg_restore.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/config"
	"PgBackuper/internal/logging"
	"PgBackuper/internal/metrics"
	"PgBackuper/internal/notifier"
	"PgBackuper/internal/pipeline"
	"PgBackuper/internal/s3"
)

type Options struct {
	// TempDir receives the downloaded archive. Empty means os.TempDir().
	TempDir   string
	PgRestore string
	Tools     archive.Tools
	TailBytes int
	// VerifyChecksum compares the download against the BLAKE3 digest stored
	// at upload time, when the object carries one.
	VerifyChecksum bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:        cfg.Backup.TempDir,
		PgRestore:      cfg.Tools.PgRestore,
		Tools:          archive.Tools{Gzip: cfg.Tools.Gzip, Zstd: cfg.Tools.Zstd},
		TailBytes:      cfg.Backup.StderrTailBytes,
		VerifyChecksum: cfg.Restore.VerifyChecksum,
	}
}

// RestoreArgs is the pg_restore argument vector for a URL without a
// password (see config.SplitPassword). Ownership and privileges
// are not restored since the roles may not exist on the target.
func RestoreArgs(databaseURL string) []string {
	return []string{"-d", databaseURL, "--no-owner", "--no-acl"}
}

type Downloader interface {
	DownloadFile(ctx context.Context, key, path string) (s3.DownloadResult, error)
}

// Result is the outcome of a restore. Restore never returns an error; every
// failure is reported here.
type Result struct {
	OK       bool             `json:"ok"`
	Message  string           `json:"message"`
	Outcome  pipeline.Outcome `json:"-"`
	Duration time.Duration    `json:"-"`
}

type Service struct {
	opts     Options
	dl       Downloader
	log      zerolog.Logger
	metrics  metrics.Recorder
	notifier notifier.Notifier
	seq      atomic.Uint64
}

type Option func(*Service)

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(opts Options, dl Downloader, log zerolog.Logger, options ...Option) *Service {
	s := &Service{
		opts:     opts,
		dl:       dl,
		log:      log.With().Str("component", "restore").Logger(),
		metrics:  metrics.Noop{},
		notifier: notifier.Nop{},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Restore restores the archive at key into databaseURL.
func (s *Service) Restore(ctx context.Context, key, databaseURL string) (res Result) {
	start := time.Now()
	log := s.log.With().Str("key", key).Str("database", logging.RedactURL(databaseURL)).Logger()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("restore panicked: %v", r)
			res = Result{Message: err.Error(), Outcome: pipeline.Classify(err)}
		}
		res.Duration = time.Since(start)
		s.finish(ctx, log, key, res)
	}()

	log.Info().Msg("starting restore")
	err := s.restore(ctx, log, key, databaseURL)
	if err != nil {
		return Result{Message: err.Error(), Outcome: pipeline.Classify(err)}
	}
	return Result{OK: true, Message: "restore completed", Outcome: pipeline.Outcome{Kind: pipeline.KindSuccess}}
}

func (s *Service) finish(ctx context.Context, log zerolog.Logger, key string, res Result) {
	s.metrics.ObserveRestore(string(res.Outcome.Kind), res.Duration)
	if res.OK {
		log.Info().Dur("duration", res.Duration).Msg("restore completed")
	} else {
		log.Error().Str("outcome", string(res.Outcome.Kind)).Dur("duration", res.Duration).Msg(res.Message)
	}
	if err := s.notifier.NotifyRestore(ctx, key, res.OK, res.Message); err != nil {
		log.Warn().Err(err).Msg("restore notification failed")
	}
}

func (s *Service) restore(ctx context.Context, log zerolog.Logger, key, databaseURL string) error {
	format, ok := archive.FormatFromKey(key)
	if !ok {
		return &pipeline.ValidationError{Path: key, Reason: "not a recognized archive suffix"}
	}
	if err := config.ValidateDatabaseURL(databaseURL); err != nil {
		return &pipeline.ValidationError{Path: key, Reason: err.Error()}
	}

	path := s.tempPath(format)
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not remove downloaded archive")
		}
	}()

	dl, err := s.dl.DownloadFile(ctx, key, path)
	if err != nil {
		return err
	}
	log.Info().Int64("bytes", dl.Size).Msg("archive downloaded")

	if s.opts.VerifyChecksum && dl.BLAKE3 != "" {
		d, err := s3.SumFile(path)
		if err != nil {
			return &pipeline.FilesystemError{Op: "checksum", Path: path, Err: err}
		}
		if got := d.BLAKE3Hex(); !strings.EqualFold(got, dl.BLAKE3) {
			return &pipeline.ValidationError{Path: key, Reason: fmt.Sprintf("blake3 mismatch: stored %s, downloaded %s", dl.BLAKE3, got)}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return &pipeline.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	conn, env := config.SplitPassword(databaseURL)
	result, err := pipeline.Run(ctx, pipeline.Spec{
		Stdin:    f,
		Producer: format.Decompressor(s.opts.Tools),
		Consumer: pipeline.Command{
			Name: "pg_restore",
			Path: s.pgRestore(),
			Args: RestoreArgs(conn),
			Env:  env,
		},
		TailBytes: s.opts.TailBytes,
	})
	if err != nil {
		var exitErr *pipeline.ExitError
		if errors.As(err, &exitErr) {
			// The failing process's stderr is already in err; add the peer's.
			peer, peerStderr := "pg_restore", result.ConsumerStderr
			if exitErr.Name == "pg_restore" {
				peer, peerStderr = format.Decompressor(s.opts.Tools).Name, result.ProducerStderr
			}
			if peerStderr = strings.TrimSpace(peerStderr); peerStderr != "" {
				return fmt.Errorf("%w (%s stderr: %s)", err, peer, peerStderr)
			}
		}
		return err
	}
	if warn := strings.TrimSpace(result.ConsumerStderr); warn != "" {
		log.Warn().Str("stderr", warn).Msg("pg_restore reported warnings")
	}
	return nil
}

func (s *Service) tempPath(format archive.Format) string {
	dir := s.opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("restore-%d-%d%s", time.Now().UnixMilli(), s.seq.Add(1), format.Extension())
	return filepath.Join(dir, name)
}

func (s *Service) pgRestore() string {
	if s.opts.PgRestore != "" {
		return s.opts.PgRestore
	}
	return "pg_restore"
}
