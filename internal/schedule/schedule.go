// Package schedule runs a single job on a five-field cron expression.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts standard five-field expressions and descriptors like @daily.
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	return parser.Parse(expr)
}

// NextRun returns the first activation of expr strictly after now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(now), nil
}

type Scheduler struct {
	cron   *cron.Cron
	expr   string
	id     cron.EntryID
	log    zerolog.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New registers job under expr. Ticks that fire while a previous run is
// still going are skipped. A panicking job is logged and recovered.
func New(expr string, loc *time.Location, job func(ctx context.Context), log zerolog.Logger) (*Scheduler, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	clog := cronLogger{log: log.With().Str("component", "scheduler").Logger()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s := &Scheduler{cron: c, expr: expr, log: clog.log}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.id = c.Schedule(sched, cron.FuncJob(func() { job(ctx) }))
	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info().Str("schedule", s.expr).Time("next", s.Next()).Msg("scheduler started")
}

// Stop prevents further ticks, cancels the context handed to a running job
// and waits for it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next is the next activation; zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
