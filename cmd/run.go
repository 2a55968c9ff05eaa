package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backup now and exit",
	Long:  "Dump the database, validate and upload the archive, then exit. Exits 1 when the backup fails or another backup holds the lock.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	svc, err := a.backupService()
	if err != nil {
		return err
	}
	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Uploaded %s (%d bytes) in %s\n", report.Key, report.Size, report.Duration.Round(time.Millisecond))
	return nil
}
