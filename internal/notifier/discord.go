package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"PgBackuper/internal/config"
)

type DiscordNotifier struct {
	webhookURL string
	attempts   int
	backoff    time.Duration
	mention    string
	events     map[string]struct{}
	host       string
	database   string
	client     *http.Client
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

// Discord rejects embed descriptions longer than 4096 characters.
const maxDescription = 4000

func NewDiscordNotifier(cfg config.DiscordConfig, database string) (*DiscordNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("discord notifier enabled without webhook_url")
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	events := make(map[string]struct{})
	for _, e := range cfg.Events {
		events[e] = struct{}{}
	}
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		attempts:   attempts,
		backoff:    time.Duration(cfg.Retry.BackoffMs) * time.Millisecond,
		mention:    cfg.Mentions.OnError,
		events:     events,
		host:       host,
		database:   database,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (d *DiscordNotifier) allowed(event string) bool {
	if len(d.events) == 0 {
		return true
	}
	_, ok := d.events[event]
	return ok
}

func (d *DiscordNotifier) fields(extra ...discordField) []discordField {
	base := []discordField{
		{Name: "Host", Value: d.host, Inline: true},
		{Name: "Database", Value: d.database, Inline: true},
	}
	return append(base, extra...)
}

func (d *DiscordNotifier) send(ctx context.Context, embed discordEmbed, mention string) error {
	if len(embed.Description) > maxDescription {
		embed.Description = embed.Description[:maxDescription] + "..."
	}
	embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(discordPayload{Content: mention, Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		if i > 0 && d.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("status %s", resp.Status)
	}
	return fmt.Errorf("discord webhook failed after %d attempts: %w", d.attempts, lastErr)
}

func (d *DiscordNotifier) NotifyStart(ctx context.Context, backup string) error {
	if !d.allowed(EventStart) {
		return nil
	}
	return d.send(ctx, discordEmbed{
		Title:  "Backup started",
		Color:  0x3498db,
		Fields: d.fields(discordField{Name: "Backup", Value: backup}),
	}, "")
}

func (d *DiscordNotifier) NotifySuccess(ctx context.Context, backup string, duration time.Duration, size int64) error {
	if !d.allowed(EventSuccess) {
		return nil
	}
	return d.send(ctx, discordEmbed{
		Title: "Backup success",
		Color: 0x2ecc71,
		Fields: d.fields(
			discordField{Name: "Backup", Value: backup},
			discordField{Name: "Duration", Value: duration.Round(time.Millisecond).String(), Inline: true},
			discordField{Name: "Size", Value: fmt.Sprintf("%d bytes", size), Inline: true},
		),
	}, "")
}

func (d *DiscordNotifier) NotifyWarning(ctx context.Context, backup, message string) error {
	if !d.allowed(EventWarning) {
		return nil
	}
	return d.send(ctx, discordEmbed{
		Title:       "Backup warning",
		Description: message,
		Color:       0xf1c40f,
		Fields:      d.fields(discordField{Name: "Backup", Value: backup}),
	}, d.mention)
}

func (d *DiscordNotifier) NotifyError(ctx context.Context, backup string, err error) error {
	if !d.allowed(EventError) {
		return nil
	}
	return d.send(ctx, discordEmbed{
		Title:       "Backup failed",
		Description: err.Error(),
		Color:       0xe74c3c,
		Fields:      d.fields(discordField{Name: "Backup", Value: backup}),
	}, d.mention)
}

func (d *DiscordNotifier) NotifyPrune(ctx context.Context, retained, deleted int) error {
	if !d.allowed(EventPrune) {
		return nil
	}
	return d.send(ctx, discordEmbed{
		Title: "Prune completed",
		Color: 0x9b59b6,
		Fields: d.fields(
			discordField{Name: "Retained", Value: fmt.Sprintf("%d", retained), Inline: true},
			discordField{Name: "Deleted", Value: fmt.Sprintf("%d", deleted), Inline: true},
		),
	}, "")
}

func (d *DiscordNotifier) NotifyRestore(ctx context.Context, key string, ok bool, message string) error {
	if !d.allowed(EventRestore) {
		return nil
	}
	embed := discordEmbed{
		Title:       "Restore completed",
		Description: message,
		Color:       0x1abc9c,
		Fields:      d.fields(discordField{Name: "Backup", Value: key}),
	}
	mention := ""
	if !ok {
		embed.Title = "Restore failed"
		embed.Color = 0xe74c3c
		mention = d.mention
	}
	return d.send(ctx, embed, mention)
}
