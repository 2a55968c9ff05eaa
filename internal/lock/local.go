package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultName = "pgbackuper"

// LocalLocker is an O_EXCL lock file. A file older than TTL is treated as
// left behind by a crashed run and replaced.
type LocalLocker struct {
	path string
	ttl  time.Duration
	file *os.File
	mu   sync.Mutex
	held bool
}

type LocalOptions struct {
	Dir  string
	Name string
	TTL  time.Duration
}

func NewLocal(opts LocalOptions) (*LocalLocker, error) {
	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), DefaultName)
	}
	name := opts.Name
	if name == "" || filepath.Base(name) != name {
		name = DefaultName
	}
	return &LocalLocker{path: filepath.Join(dir, name+".lock"), ttl: opts.TTL}, nil
}

func (l *LocalLocker) Path() string {
	return l.path
}

func (l *LocalLocker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("%w: already held by this process", ErrLocked)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	file, err := l.create()
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		if !l.stale() {
			return fmt.Errorf("%w: %s (pid %s)", ErrLocked, l.path, l.owner())
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock file: %w", err)
		}
		if file, err = l.create(); err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("%w: %s", ErrLocked, l.path)
			}
			return fmt.Errorf("create lock file after stale remove: %w", err)
		}
	}

	if _, err := fmt.Fprintf(file, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("sync lock file: %w", err)
	}
	l.file = file
	l.held = true
	return nil
}

func (l *LocalLocker) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o640)
}

func (l *LocalLocker) stale() bool {
	if l.ttl <= 0 {
		return false
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return os.IsNotExist(err)
	}
	return time.Since(info.ModTime()) >= l.ttl
}

// owner is the pid recorded in the lock file, or "unknown".
func (l *LocalLocker) owner() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	first, _, _ := strings.Cut(string(data), "\n")
	if _, err := strconv.Atoi(first); err != nil {
		return "unknown"
	}
	return first
}

func (l *LocalLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	l.held = false
	if len(errs) > 0 {
		return fmt.Errorf("release lock: %v", errs)
	}
	return nil
}
