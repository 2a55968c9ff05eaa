package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "pgbackuper",
	Short: "Scheduled PostgreSQL backups to S3-compatible storage, with restore",
	Long: "pgbackuper dumps a PostgreSQL database with pg_dump, compresses and validates the archive, " +
		"uploads it to S3-compatible storage (Cloudflare R2, MinIO, AWS) and restores it on demand with pg_restore.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "Config file (default $PGBACKUPER_CONFIG or /etc/pgbackuper/config.yaml)")
	f.StringVar(&envFile, "env-file", "", "Dotenv file loaded before reading the environment (default .env)")
	f.StringVar(&logLevel, "log-level", "", "Override log level (trace, debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "Override log format (json, console)")
}

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
