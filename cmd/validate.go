package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and file permissions",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(true); err != nil {
		return err
	}
	cmd.Println("Configuration OK")
	return nil
}
