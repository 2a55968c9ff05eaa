package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"PgBackuper/internal/s3"
)

// ObjectStore is the part of *s3.Client the bucket lock needs.
type ObjectStore interface {
	PutIfAbsent(ctx context.Context, key string, body []byte) error
	ModTime(ctx context.Context, key string) (time.Time, error)
	DeleteObject(ctx context.Context, key string) error
}

// S3Locker is a lock object in the bucket, created with a conditional put so
// that daemons on different hosts backing up to the same prefix exclude each
// other. An object older than TTL is treated as stale and replaced.
type S3Locker struct {
	store ObjectStore
	key   string
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	held  bool
}

type S3Options struct {
	Store ObjectStore
	// Prefix is the catalog prefix the lock guards, e.g. "backup-db/".
	Prefix string
	Name   string
	TTL    time.Duration
}

func NewS3(opts S3Options) (*S3Locker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("s3 lock: store is required")
	}
	name := opts.Name
	if name == "" || strings.ContainsAny(name, `/\`) {
		name = DefaultName
	}
	return &S3Locker{
		store: opts.Store,
		key:   opts.Prefix + "." + name + ".lock",
		ttl:   opts.TTL,
		now:   time.Now,
	}, nil
}

// Key is the object key of the lock.
func (l *S3Locker) Key() string {
	return l.key
}

func (l *S3Locker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("%w: already held by this process", ErrLocked)
	}

	err := l.put(ctx)
	if !errors.Is(err, s3.ErrExists) {
		if err == nil {
			l.held = true
		}
		return err
	}

	mod, err := l.store.ModTime(ctx, l.key)
	switch {
	case s3.IsNotFound(err):
		// Released between our put and head; try once more.
	case err != nil:
		return fmt.Errorf("s3 lock: %w", err)
	case l.ttl <= 0 || l.now().Sub(mod) < l.ttl:
		return fmt.Errorf("%w: s3://%s since %s", ErrLocked, l.key, mod.UTC().Format(time.RFC3339))
	default:
		if err := l.store.DeleteObject(ctx, l.key); err != nil {
			return fmt.Errorf("s3 lock: remove stale lock: %w", err)
		}
	}

	err = l.put(ctx)
	if errors.Is(err, s3.ErrExists) {
		return fmt.Errorf("%w: s3://%s", ErrLocked, l.key)
	}
	if err == nil {
		l.held = true
	}
	return err
}

func (l *S3Locker) put(ctx context.Context) error {
	host, _ := os.Hostname()
	body := fmt.Sprintf("%s pid=%d %s\n", host, os.Getpid(), l.now().UTC().Format(time.RFC3339))
	err := l.store.PutIfAbsent(ctx, l.key, []byte(body))
	if err != nil && !errors.Is(err, s3.ErrExists) {
		return fmt.Errorf("s3 lock: %w", err)
	}
	return err
}

func (l *S3Locker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	if err := l.store.DeleteObject(ctx, l.key); err != nil {
		return fmt.Errorf("s3 lock release: %w", err)
	}
	l.held = false
	return nil
}
