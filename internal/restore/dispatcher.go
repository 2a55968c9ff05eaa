package restore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PgBackuper/internal/lock"
)

// ErrInProgress is returned by Start while another restore is running.
var ErrInProgress = errors.New("restore already in progress")

type Restorer interface {
	Restore(ctx context.Context, key, databaseURL string) Result
}

type Task struct {
	ID        uuid.UUID  `json:"taskId"`
	Key       string     `json:"backupKey"`
	StartedAt time.Time  `json:"startedAt"`
	Done      bool       `json:"done"`
	Result    *Result    `json:"result,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Dispatcher runs at most one restore at a time in the background.
type Dispatcher struct {
	r     Restorer
	log   zerolog.Logger
	guard lock.Guard
	wg    sync.WaitGroup

	mu   sync.Mutex
	last *Task
}

func NewDispatcher(r Restorer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{r: r, log: log.With().Str("component", "restore-dispatcher").Logger()}
}

// Start launches a restore and returns its task ID without waiting. The
// restore outlives the caller's request, so it runs on a background context.
func (d *Dispatcher) Start(key, databaseURL string) (uuid.UUID, error) {
	if !d.guard.TryAcquire() {
		return uuid.Nil, ErrInProgress
	}
	task := &Task{ID: uuid.New(), Key: key, StartedAt: time.Now().UTC()}
	d.mu.Lock()
	d.last = task
	d.mu.Unlock()

	d.log.Info().Str("task", task.ID.String()).Str("key", key).Msg("restore accepted")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.guard.Release()
		res := d.r.Restore(context.Background(), key, databaseURL)
		ended := time.Now().UTC()
		d.mu.Lock()
		task.Done = true
		task.Result = &res
		task.EndedAt = &ended
		d.mu.Unlock()
		d.log.Info().Str("task", task.ID.String()).Bool("ok", res.OK).Msg("restore task finished")
	}()
	return task.ID, nil
}

func (d *Dispatcher) Running() bool {
	return d.guard.Busy()
}

// Last returns a copy of the most recent task, if any.
func (d *Dispatcher) Last() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Task{}, false
	}
	return *d.last, true
}

// Wait blocks until the running restore, if any, has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
