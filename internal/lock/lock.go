// Package lock serializes backup and restore runs. Guard covers one process
// and LocalLocker one host; S3Locker spans hosts sharing a bucket.
package lock

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrLocked is returned when the lock is held by someone else.
var ErrLocked = errors.New("lock is held")

type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Guard is a single-slot, non-blocking in-process lock. The zero value is
// unlocked.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire takes the slot and reports whether it succeeded. It never blocks.
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.busy.Store(false)
}

func (g *Guard) Busy() bool {
	return g.busy.Load()
}
