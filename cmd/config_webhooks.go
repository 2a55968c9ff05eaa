package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"PgBackuper/internal/config"
)

var (
	webhookURLFlag     string
	discordEnableFlag  bool
	discordDisableFlag bool
	mentionOnErrorFlag string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configWebhooksCmd)
	configWebhooksCmd.Flags().StringVar(&webhookURLFlag, "webhook-url", "", "Discord webhook URL (or set PGBACKUPER_DISCORD_WEBHOOK_URL)")
	configWebhooksCmd.Flags().BoolVar(&discordEnableFlag, "discord-enable", false, "Enable Discord notifications")
	configWebhooksCmd.Flags().BoolVar(&discordDisableFlag, "discord-disable", false, "Disable Discord notifications")
	configWebhooksCmd.Flags().StringVar(&mentionOnErrorFlag, "mention-on-error", "", "Mention added to error notifications, e.g. <@&role-id>")
	configWebhooksCmd.MarkFlagsMutuallyExclusive("discord-enable", "discord-disable")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configWebhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Configure Discord notifications",
	Long:  "Show the current Discord settings and optionally set the webhook URL or enable/disable notifications. Run without flags for interactive prompts.",
	RunE:  runConfigWebhooks,
}

func configFilePath() string {
	if configPath != "" {
		return configPath
	}
	return config.ResolveConfigPath()
}

func runConfigWebhooks(cmd *cobra.Command, args []string) error {
	path := configFilePath()
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}

	hasFlags := webhookURLFlag != "" || discordEnableFlag || discordDisableFlag || mentionOnErrorFlag != ""
	if hasFlags {
		applyWebhookFlags(&cfg.Notifications.Discord)
	} else {
		cmd.Println("Current notification settings:")
		printWebhookStatus(cmd, cfg.Notifications.Discord)
		cmd.Println()
		promptWebhooks(cmd, bufio.NewReader(cmd.InOrStdin()), &cfg.Notifications.Discord)
	}

	if err := saveConfig(cfg, path); err != nil {
		return err
	}
	cmd.Printf("Configuration saved to %s\n", path)
	printWebhookStatus(cmd, cfg.Notifications.Discord)
	return nil
}

func applyWebhookFlags(d *config.DiscordConfig) {
	if webhookURLFlag != "" {
		d.WebhookURL = strings.TrimSpace(webhookURLFlag)
	}
	if mentionOnErrorFlag != "" {
		d.Mentions.OnError = strings.TrimSpace(mentionOnErrorFlag)
	}
	if discordEnableFlag {
		d.Enabled = true
	}
	if discordDisableFlag {
		d.Enabled = false
	}
}

func promptWebhooks(cmd *cobra.Command, r *bufio.Reader, d *config.DiscordConfig) {
	label := "Discord webhook URL"
	if d.WebhookURL != "" {
		label += " (Enter to keep current)"
	}
	if v := prompt(cmd, r, label, ""); v != "" {
		d.WebhookURL = v
	}
	d.Enabled = confirm(cmd, r, "Enable Discord notifications?", d.Enabled || d.WebhookURL != "")
}

// saveConfig validates the section-level rules that do not depend on the
// environment and writes the file.
func saveConfig(cfg *config.Config, path string) error {
	d := cfg.Notifications.Discord
	if d.Enabled && d.WebhookURL == "" && os.Getenv("PGBACKUPER_DISCORD_WEBHOOK_URL") == "" {
		return fmt.Errorf("discord is enabled but no webhook URL is set")
	}
	return config.Write(cfg, path)
}

func printWebhookStatus(cmd *cobra.Command, d config.DiscordConfig) {
	cmd.Printf("  Discord: %s\n", onOff(d.Enabled))
	switch {
	case d.WebhookURL != "":
		cmd.Printf("    Webhook URL: %s\n", maskWebhookURL(d.WebhookURL))
	case os.Getenv("PGBACKUPER_DISCORD_WEBHOOK_URL") != "":
		cmd.Println("    Webhook URL: (from env)")
	default:
		cmd.Println("    Webhook URL: (not set)")
	}
	if d.Mentions.OnError != "" {
		cmd.Printf("    Mention on error: %s\n", d.Mentions.OnError)
	}
}

// maskWebhookURL hides the token part of a webhook URL.
func maskWebhookURL(s string) string {
	const keep = 40
	if len(s) <= keep {
		return s
	}
	return s[:keep] + "..."
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func prompt(cmd *cobra.Command, r *bufio.Reader, label, def string) string {
	if def != "" {
		cmd.Printf("%s [%s]: ", label, def)
	} else {
		cmd.Printf("%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return def
	}
	if v := strings.TrimSpace(line); v != "" {
		return v
	}
	return def
}

func confirm(cmd *cobra.Command, r *bufio.Reader, question string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	switch strings.ToLower(prompt(cmd, r, question+" ("+hint+")", "")) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
