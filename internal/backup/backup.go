// Package backup runs one database backup: dump, validate, upload and
// clean up the local archive.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/catalog"
	"PgBackuper/internal/lock"
	"PgBackuper/internal/logging"
	"PgBackuper/internal/metrics"
	"PgBackuper/internal/notifier"
	"PgBackuper/internal/pipeline"
	"PgBackuper/internal/s3"
)

// ErrInProgress is returned by Run while another backup is running.
var ErrInProgress = errors.New("backup already in progress")

type Uploader interface {
	UploadFile(ctx context.Context, key, path string, opts s3.UploadOptions) (s3.UploadResult, error)
}

type Pruner interface {
	Prune(ctx context.Context) (catalog.PruneResult, error)
}

type Report struct {
	Filename string
	Key      string
	Size     int64
	Duration time.Duration
	Outcome  pipeline.Outcome
	// Warnings is the stderr of a successful dump, which pg_dump only writes
	// when something deserves a look.
	Warnings string
}

type Service struct {
	opts     Options
	uploader Uploader
	log      zerolog.Logger
	notifier notifier.Notifier
	metrics  metrics.Recorder
	pruner   Pruner
	now      func() time.Time
	guard    lock.Guard
	locker   lock.Locker
}

type Option func(*Service)

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPruner applies retention after every successful backup.
func WithPruner(p Pruner) Option {
	return func(s *Service) { s.pruner = p }
}

// WithLocker additionally holds l for the duration of each run, so that
// separate processes sharing l never dump concurrently.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(opts Options, uploader Uploader, log zerolog.Logger, options ...Option) *Service {
	s := &Service{
		opts:     opts,
		uploader: uploader,
		log:      log.With().Str("component", "backup").Logger(),
		notifier: notifier.Nop{},
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Running reports whether a backup is currently in progress.
func (s *Service) Running() bool {
	return s.guard.Busy()
}

// Run performs one backup. It returns ErrInProgress without doing anything
// when a backup is already running. Any other error is one of the pipeline
// error types; the local archive is removed on every path.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if !s.guard.TryAcquire() {
		s.metrics.IncBackupSkipped()
		return Report{}, ErrInProgress
	}
	defer s.guard.Release()
	if s.locker != nil {
		if err := s.locker.Acquire(ctx); err != nil {
			if errors.Is(err, lock.ErrLocked) {
				s.metrics.IncBackupSkipped()
				return Report{}, fmt.Errorf("%w: %v", ErrInProgress, err)
			}
			return Report{}, &pipeline.FilesystemError{Op: "lock", Path: "backup", Err: err}
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn().Err(err).Msg("could not release backup lock")
			}
		}()
	}

	start := s.now()
	filename := archive.Filename(s.opts.FilePrefix, s.opts.Format, start)
	report := Report{
		Filename: filename,
		Key:      archive.ObjectKey(s.opts.Subfolder, filename),
	}
	log := s.log.With().Str("file", filename).Logger()
	log.Info().
		Str("database", logging.RedactURL(s.opts.DatabaseURL)).
		Str("key", report.Key).
		Msg("starting backup")
	if err := s.notifier.NotifyStart(ctx, filename); err != nil {
		log.Warn().Err(err).Msg("start notification failed")
	}

	err := s.run(ctx, log, &report, filepath.Join(s.opts.tempDir(), filename))
	report.Duration = s.now().Sub(start)
	report.Outcome = pipeline.Classify(err)
	s.metrics.ObserveBackup(string(report.Outcome.Kind), report.Duration, report.Size)

	if err != nil {
		ev := log.Error().Err(err).Str("outcome", string(report.Outcome.Kind)).Dur("duration", report.Duration)
		if report.Outcome.ExitCode != 0 {
			ev = ev.Int("exit_code", report.Outcome.ExitCode)
		}
		ev.Msg("backup failed")
		if nerr := s.notifier.NotifyError(ctx, filename, err); nerr != nil {
			log.Warn().Err(nerr).Msg("error notification failed")
		}
		return report, err
	}

	log.Info().
		Str("key", report.Key).
		Str("size", humanize.IBytes(uint64(report.Size))).
		Dur("duration", report.Duration).
		Msg("backup completed")
	if report.Warnings != "" {
		if nerr := s.notifier.NotifyWarning(ctx, filename, report.Warnings); nerr != nil {
			log.Warn().Err(nerr).Msg("warning notification failed")
		}
	}
	if nerr := s.notifier.NotifySuccess(ctx, filename, report.Duration, report.Size); nerr != nil {
		log.Warn().Err(nerr).Msg("success notification failed")
	}
	s.prune(ctx)
	return report, nil
}

func (s *Service) run(ctx context.Context, log zerolog.Logger, report *Report, path string) error {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not remove local archive")
		}
	}()

	warnings, err := s.dump(ctx, log, path)
	if err != nil {
		return err
	}
	if warnings != "" {
		report.Warnings = warnings
		log.Warn().Str("stderr", warnings).Msg("dump succeeded with possible warnings")
	}

	artifact, err := archive.Validate(path)
	if err != nil {
		return err
	}
	report.Size = artifact.Size
	log.Info().Str("size", humanize.IBytes(uint64(artifact.Size))).Msg("archive validated, uploading")

	res, err := s.uploader.UploadFile(ctx, report.Key, path, s.opts.Upload)
	if err != nil {
		return err
	}
	log.Debug().Int("parts", res.Parts).Str("blake3", res.BLAKE3).Msg("upload finished")
	return nil
}

// dump runs pg_dump piped into the compressor and returns the stderr text
// of a successful run.
func (s *Service) dump(ctx context.Context, log zerolog.Logger, path string) (string, error) {
	sink, err := pipeline.NewFileSink(path)
	if err != nil {
		return "", err
	}
	spec := pipeline.Spec{
		Producer: pipeline.Command{
			Name: "pg_dump",
			Path: s.opts.pgDump(),
			Args: s.opts.DumpArgs(),
			Env:  s.opts.DumpEnv(),
		},
		Consumer:  s.opts.Format.Compressor(s.opts.Tools),
		Sink:      sink,
		TailBytes: s.opts.TailBytes,
	}
	var lw *logging.LineWriter
	if s.opts.Verbose {
		lw = logging.NewLineWriter(log, zerolog.DebugLevel, "dump stderr")
		spec.StderrLog = lw
	}
	res, err := pipeline.Run(ctx, spec)
	if lw != nil {
		lw.Flush()
	}
	if err != nil {
		return "", err
	}
	// --verbose makes pg_dump chatty on stderr, so it only signals trouble
	// when verbose output was not requested.
	if s.opts.Verbose {
		return "", nil
	}
	return strings.TrimSpace(res.ProducerStderr + res.ConsumerStderr), nil
}

func (s *Service) prune(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	res, err := s.pruner.Prune(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("retention prune failed")
	}
	if len(res.Deleted) > 0 || err != nil {
		s.log.Info().Int("retained", res.Retained).Int("deleted", len(res.Deleted)).Msg("retention applied")
		if nerr := s.notifier.NotifyPrune(ctx, res.Retained, len(res.Deleted)); nerr != nil {
			s.log.Warn().Err(nerr).Msg("prune notification failed")
		}
	}
}
