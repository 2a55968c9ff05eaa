package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"PgBackuper/internal/catalog"
)

var pruneDryRun bool

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Print what would be deleted without deleting")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than the retention window",
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	r := a.retention()
	if !r.Policy.Enabled() {
		cmd.Println("Retention is disabled; nothing to prune.")
		return nil
	}

	if pruneDryRun {
		entries, err := r.Lister.List(cmd.Context())
		if err != nil {
			return err
		}
		res, err := catalog.Prune(cmd.Context(), dryRunDeleter{}, entries, r.Policy, time.Now())
		if err != nil {
			return err
		}
		for _, key := range res.Deleted {
			cmd.Printf("would delete %s\n", key)
		}
		cmd.Printf("%d would be deleted, %d retained\n", len(res.Deleted), res.Retained)
		return nil
	}

	res, err := r.Prune(cmd.Context())
	for _, key := range res.Deleted {
		cmd.Printf("deleted %s\n", key)
	}
	cmd.Printf("%d deleted, %d retained\n", len(res.Deleted), res.Retained)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	return nil
}

// dryRunDeleter accepts every delete without touching the bucket.
type dryRunDeleter struct{}

func (dryRunDeleter) DeleteObject(context.Context, string) error { return nil }
