package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"PgBackuper/internal/auth"
	"PgBackuper/internal/backup"
	"PgBackuper/internal/restore"
	"PgBackuper/internal/schedule"
	"PgBackuper/internal/server"
)

var daemonShutdownTimeout time.Duration

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().DurationVar(&daemonShutdownTimeout, "shutdown-timeout", 5*time.Minute, "How long to wait for a running restore on shutdown")
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run backups on the cron schedule and serve the restore API",
	Long: "Run a backup at startup when run_on_startup or single_shot is set (single_shot exits afterwards), " +
		"then back up on the configured cron schedule until SIGINT/SIGTERM. When restore is enabled, the " +
		"HTTP restore API and UI are served on the configured port.",
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	svc, err := a.backupService()
	if err != nil {
		return err
	}
	log := a.log

	if a.cfg.Backup.RunOnStartup || a.cfg.Backup.SingleShot {
		log.Info().Msg("running backup at startup")
		// A failed startup backup is already logged; the schedule still starts.
		_, err := svc.Run(ctx)
		if a.cfg.Backup.SingleShot {
			if err != nil {
				return err
			}
			log.Info().Msg("single-shot backup finished, exiting")
			return nil
		}
	}

	var (
		srv        *server.Server
		dispatcher *restore.Dispatcher
		srvErr     = make(chan error, 1)
	)
	if a.cfg.Restore.Enabled || a.cfg.Server.Metrics {
		deps := server.Deps{Gatherer: a.registry}
		if a.cfg.Restore.Enabled {
			manager, err := auth.NewManager(a.cfg.Restore.APIKey, a.cfg.Restore.JWTSecret, a.cfg.Restore.TokenTTL)
			if err != nil {
				return err
			}
			rs, err := a.restoreService()
			if err != nil {
				return err
			}
			dispatcher = restore.NewDispatcher(rs, log)
			deps.Auth = manager
			deps.Lister = a.lister()
			deps.Restores = dispatcher
		}
		srv = server.New(a.cfg.Server, deps, log)
		go func() { srvErr <- srv.ListenAndServe() }()
	}

	sched, err := schedule.New(a.cfg.Backup.Schedule, time.Local, scheduledBackup(svc, log), log)
	if err != nil {
		return err
	}
	sched.Start()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-srvErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("http server failed")
			runErr = fmt.Errorf("http server: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), daemonShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
	}
	if dispatcher != nil {
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("restore still running at shutdown")
		}
	}
	return runErr
}

func scheduledBackup(svc *backup.Service, log zerolog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		_, err := svc.Run(ctx)
		if errors.Is(err, backup.ErrInProgress) {
			log.Warn().Err(err).Msg("scheduled backup skipped")
		}
	}
}
