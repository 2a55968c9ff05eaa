package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"PgBackuper/internal/systemd"
)

var uninstallSystemdUnitDir string

func init() {
	rootCmd.AddCommand(uninstallSystemdCmd)
	uninstallSystemdCmd.Flags().StringVar(&uninstallSystemdUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory for systemd unit files")
}

var uninstallSystemdCmd = &cobra.Command{
	Use:   "uninstall-systemd",
	Short: "Stop and remove the pgbackuper systemd units",
	RunE:  runUninstallSystemd,
}

func runUninstallSystemd(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("uninstall-systemd is only supported on Linux")
	}

	svcName, timerName := systemd.UnitFileNames()
	removed := 0
	for _, name := range []string{timerName, svcName} {
		_ = exec.Command("systemctl", "disable", "--now", name).Run()
		p := filepath.Join(uninstallSystemdUnitDir, name)
		if err := os.Remove(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("remove %s: %w", p, err)
		}
		removed++
		cmd.Printf("Removed %s\n", p)
	}

	if removed == 0 {
		cmd.Println("No pgbackuper units installed")
		return nil
	}
	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	cmd.Println("Reloaded systemd daemon")
	return nil
}
