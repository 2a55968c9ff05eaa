package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PgBackuper/internal/config"
)

type webhook struct {
	mu       sync.Mutex
	payloads []discordPayload
	fail     int
}

func (w *webhook) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fail > 0 {
			w.fail--
			rw.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var p discordPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.payloads = append(w.payloads, p)
		rw.WriteHeader(http.StatusNoContent)
	}
}

func newDiscord(t *testing.T, hook *webhook, cfg config.DiscordConfig) *DiscordNotifier {
	t.Helper()
	srv := httptest.NewServer(hook.handler())
	t.Cleanup(srv.Close)
	cfg.Enabled = true
	cfg.WebhookURL = srv.URL
	d, err := NewDiscordNotifier(cfg, "app@db")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDiscord_Payloads(t *testing.T) {
	hook := &webhook{}
	d := newDiscord(t, hook, config.DiscordConfig{Mentions: config.DiscordMentions{OnError: "@oncall"}})
	ctx := context.Background()

	if err := d.NotifySuccess(ctx, "backup-x.tar.gz", 2*time.Second, 1024); err != nil {
		t.Fatal(err)
	}
	if err := d.NotifyError(ctx, "backup-y.tar.gz", errors.New("pg_dump exited with code 1")); err != nil {
		t.Fatal(err)
	}
	if err := d.NotifyRestore(ctx, "backup-db/backup-x.tar.gz", false, "pg_restore exited with code 1"); err != nil {
		t.Fatal(err)
	}

	if len(hook.payloads) != 3 {
		t.Fatalf("got %d payloads, want 3", len(hook.payloads))
	}
	ok := hook.payloads[0].Embeds[0]
	if ok.Title != "Backup success" || ok.Timestamp == "" || hook.payloads[0].Content != "" {
		t.Errorf("success payload = %+v", hook.payloads[0])
	}
	var sawDB bool
	for _, f := range ok.Fields {
		if f.Name == "Database" && f.Value == "app@db" {
			sawDB = true
		}
	}
	if !sawDB {
		t.Errorf("success fields = %+v, missing database", ok.Fields)
	}
	if hook.payloads[1].Embeds[0].Description != "pg_dump exited with code 1" || hook.payloads[1].Content != "@oncall" {
		t.Errorf("error payload = %+v", hook.payloads[1])
	}
	if hook.payloads[2].Embeds[0].Title != "Restore failed" {
		t.Errorf("restore payload = %+v", hook.payloads[2])
	}
}

func TestDiscord_EventFilter(t *testing.T) {
	hook := &webhook{}
	d := newDiscord(t, hook, config.DiscordConfig{Events: []string{EventError}})
	ctx := context.Background()
	_ = d.NotifyStart(ctx, "b")
	_ = d.NotifySuccess(ctx, "b", time.Second, 1)
	_ = d.NotifyError(ctx, "b", errors.New("boom"))
	if len(hook.payloads) != 1 || hook.payloads[0].Embeds[0].Title != "Backup failed" {
		t.Errorf("payloads = %+v", hook.payloads)
	}
}

func TestDiscord_Retry(t *testing.T) {
	hook := &webhook{fail: 2}
	d := newDiscord(t, hook, config.DiscordConfig{Retry: config.DiscordRetry{Attempts: 3, BackoffMs: 1}})
	if err := d.NotifyStart(context.Background(), "b"); err != nil {
		t.Fatalf("NotifyStart after retries: %v", err)
	}
	if len(hook.payloads) != 1 {
		t.Errorf("payloads = %d", len(hook.payloads))
	}

	hook.fail = 5
	if err := d.NotifyStart(context.Background(), "b"); err == nil {
		t.Error("expected failure after exhausting retries")
	}
}

func TestNew_DisabledIsNop(t *testing.T) {
	n, err := New(config.NotificationsConfig{}, "db")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(Nop); !ok {
		t.Errorf("New(disabled) = %T, want Nop", n)
	}
	if _, err := New(config.NotificationsConfig{Discord: config.DiscordConfig{Enabled: true}}, "db"); err == nil {
		t.Error("enabled without webhook should fail")
	}
}
