package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	restoreKey         string
	restoreDatabaseURL string
	restoreLatest      bool
)

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVar(&restoreKey, "key", "", "Object key of the backup to restore")
	restoreCmd.Flags().BoolVar(&restoreLatest, "latest", false, "Restore the newest backup")
	restoreCmd.Flags().StringVar(&restoreDatabaseURL, "database-url", "", "Target database (default database.url)")
	restoreCmd.MarkFlagsMutuallyExclusive("key", "latest")
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download a backup and restore it with pg_restore",
	Long: "Download the archive at --key (or the newest with --latest), decompress it and pipe it into " +
		"pg_restore --no-owner --no-acl against --database-url. Runs in the foreground and exits 1 on failure.",
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	if restoreKey == "" && !restoreLatest {
		return errors.New("one of --key or --latest is required")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	url := restoreDatabaseURL
	if url == "" {
		url = a.cfg.Database.URL
	}
	key := restoreKey
	if restoreLatest {
		entries, err := a.lister().List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("no backups found")
		}
		key = entries[0].Key
	}

	svc, err := a.restoreService()
	if err != nil {
		return err
	}
	res := svc.Restore(ctx, key, url)
	if !res.OK {
		return errors.New(res.Message)
	}
	cmd.Println(res.Message)
	return nil
}
