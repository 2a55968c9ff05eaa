package notifier

import (
	"context"
	"time"

	"PgBackuper/internal/config"
)

const (
	EventStart   = "start"
	EventSuccess = "success"
	EventWarning = "warning"
	EventError   = "error"
	EventPrune   = "prune"
	EventRestore = "restore"
)

// Notifier reports backup lifecycle events. backup is the archive filename
// or object key the event is about.
type Notifier interface {
	NotifyStart(ctx context.Context, backup string) error
	NotifySuccess(ctx context.Context, backup string, duration time.Duration, size int64) error
	NotifyWarning(ctx context.Context, backup, message string) error
	NotifyError(ctx context.Context, backup string, err error) error
	NotifyPrune(ctx context.Context, retained, deleted int) error
	NotifyRestore(ctx context.Context, key string, ok bool, message string) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyStart(context.Context, string) error                         { return nil }
func (Nop) NotifySuccess(context.Context, string, time.Duration, int64) error { return nil }
func (Nop) NotifyWarning(context.Context, string, string) error               { return nil }
func (Nop) NotifyError(context.Context, string, error) error                  { return nil }
func (Nop) NotifyPrune(context.Context, int, int) error                       { return nil }
func (Nop) NotifyRestore(context.Context, string, bool, string) error         { return nil }

// New returns a Discord notifier when it is enabled in cfg, Nop otherwise.
// database labels every message.
func New(cfg config.NotificationsConfig, database string) (Notifier, error) {
	if !cfg.Discord.Enabled {
		return Nop{}, nil
	}
	return NewDiscordNotifier(cfg.Discord, database)
}
