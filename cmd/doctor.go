package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"PgBackuper/internal/doctor"
	"PgBackuper/internal/s3"
)

var (
	doctorTimeout      time.Duration
	doctorCreateBucket bool
)

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second, "Per-check timeout")
	doctorCmd.Flags().BoolVar(&doctorCreateBucket, "create-bucket", false, "Create the bucket if it does not exist")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, S3 and database connectivity, tools, temp dir and lock",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(true)
	if err != nil {
		cmd.Printf("config       ERROR: %v\n", err)
		return err
	}
	cmd.Println("config       OK")

	if doctorCreateBucket {
		client, err := s3.New(ctx, s3Options(cfg.S3))
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	allOK := true
	for _, r := range doctor.Run(ctx, doctor.Checks(cfg), doctorTimeout) {
		status := "OK"
		if !r.OK {
			status = "ERROR"
			allOK = false
		}
		cmd.Printf("%-12s %s: %s\n", r.Name, status, r.Detail)
	}
	if !allOK {
		return fmt.Errorf("one or more checks failed; see output above")
	}
	return nil
}
