package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"PgBackuper/internal/schedule"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest backup, the next scheduled run and bucket usage",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	lister := a.lister()
	entries, err := lister.List(cmd.Context())
	if err != nil {
		return err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	cmd.Printf("Bucket:      %s/%s\n", a.s3.Bucket(), lister.Prefix())
	cmd.Printf("Backups:     %d (%s)\n", len(entries), humanize.IBytes(uint64(total)))
	if len(entries) > 0 {
		latest := entries[0]
		cmd.Printf("Latest:      %s (%s, %s)\n", latest.Key, humanize.IBytes(uint64(latest.Size)), humanize.Time(latest.Modified))
	} else {
		cmd.Println("Latest:      none")
	}

	now := time.Now()
	next, err := schedule.NextRun(a.cfg.Backup.Schedule, now)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	cmd.Printf("Schedule:    %s\n", a.cfg.Backup.Schedule)
	cmd.Printf("Next run:    %s (%s)\n", next.Format(time.RFC3339), humanize.RelTime(now, next, "ago", "from now"))

	if a.cfg.Retention.Enabled() {
		cmd.Printf("Retention:   %d days, keep last %d\n", a.cfg.Retention.MaxAgeDays(), a.cfg.Retention.KeepLast)
	} else {
		cmd.Println("Retention:   disabled")
	}
	return nil
}
