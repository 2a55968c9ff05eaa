package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PgBackuper/internal/config"
	"PgBackuper/internal/schedule"
)

var (
	initForce          bool
	initNonInteractive bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Write the sample config without prompting")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long:  "Write a config file (mode 0600) with S3, database and schedule settings, prompting for each unless --non-interactive is set.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFilePath()
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Sample()
	if !initNonInteractive {
		if err := promptInit(cmd, bufio.NewReader(cmd.InOrStdin()), cfg); err != nil {
			return err
		}
	}
	if err := config.Write(cfg, path); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	cmd.Println("Next: pgbackuper doctor, then pgbackuper install-systemd")
	return nil
}

func promptInit(cmd *cobra.Command, r *bufio.Reader, cfg *config.Config) error {
	cfg.S3.Endpoint = prompt(cmd, r, "S3 endpoint (empty for AWS)", cfg.S3.Endpoint)
	cfg.S3.Region = prompt(cmd, r, "S3 region", cfg.S3.Region)
	cfg.S3.Bucket = prompt(cmd, r, "Bucket", cfg.S3.Bucket)
	cfg.S3.Subfolder = prompt(cmd, r, "Subfolder", cfg.S3.Subfolder)
	cfg.S3.AccessKey = prompt(cmd, r, "Access key ID", cfg.S3.AccessKey)
	cfg.S3.SecretKey = prompt(cmd, r, "Secret access key", cfg.S3.SecretKey)
	cfg.S3.PathStyle = confirm(cmd, r, "Use path-style addressing (MinIO)?", cfg.S3.PathStyle)

	cfg.Database.URL = prompt(cmd, r, "Database URL", cfg.Database.URL)
	if err := config.ValidateDatabaseURL(cfg.Database.URL); err != nil {
		return err
	}
	cfg.Backup.Schedule = prompt(cmd, r, "Backup cron schedule", cfg.Backup.Schedule)
	if _, err := schedule.Parse(cfg.Backup.Schedule); err != nil {
		return err
	}
	cfg.Backup.Compression = prompt(cmd, r, "Compression (gzip, zstd, none)", cfg.Backup.Compression)

	if confirm(cmd, r, "Enable the restore API?", cfg.Restore.Enabled) {
		cfg.Restore.Enabled = true
		cfg.Restore.APIKey = prompt(cmd, r, "Restore API key", cfg.Restore.APIKey)
		cfg.Restore.JWTSecret = prompt(cmd, r, "JWT secret", cfg.Restore.JWTSecret)
	}
	return nil
}
