package systemd

import (
	"strings"
	"testing"
)

func TestGenerate_Daemon(t *testing.T) {
	units, err := Generate(GeneratorOptions{
		Binary:     "/usr/local/bin/pgbackuper",
		ConfigPath: "/etc/pgbackuper/config.yaml",
		Hardening:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"[Unit]",
		"[Service]",
		"Type=simple",
		"Restart=on-failure",
		"ExecStart=/usr/local/bin/pgbackuper daemon",
		"Environment=PGBACKUPER_CONFIG=/etc/pgbackuper/config.yaml",
		"ProtectSystem=full",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(units.Service, want) {
			t.Errorf("service missing %q:\n%s", want, units.Service)
		}
	}
	if units.Timer != "" {
		t.Error("daemon mode should not emit a timer")
	}
}

func TestGenerate_Timer(t *testing.T) {
	units, err := Generate(GeneratorOptions{Mode: ModeTimer, Schedule: "0 5 * * *"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(units.Service, "Type=oneshot") || !strings.Contains(units.Service, DefaultBinary+" run") {
		t.Errorf("service:\n%s", units.Service)
	}
	if strings.Contains(units.Service, "ProtectSystem") {
		t.Error("hardening emitted without being requested")
	}
	if !strings.Contains(units.Timer, "OnCalendar=*-*-* 05:00:00") || !strings.Contains(units.Timer, "Requires=pgbackuper.service") {
		t.Errorf("timer:\n%s", units.Timer)
	}
}

func TestGenerate_Errors(t *testing.T) {
	if _, err := Generate(GeneratorOptions{Mode: "cron"}); err == nil {
		t.Error("unknown mode accepted")
	}
	if _, err := Generate(GeneratorOptions{Mode: ModeTimer, Schedule: "0 5 * JAN *"}); err == nil {
		t.Error("month name accepted")
	}
}

func TestOnCalendar(t *testing.T) {
	tests := []struct {
		expr, want string
	}{
		{"0 5 * * *", "*-*-* 05:00:00"},
		{"30 2 1 * *", "*-*-01 02:30:00"},
		{"*/15 * * * *", "*-*-* *:00/15:00"},
		{"0 1,13 * * *", "*-*-* 01,13:00:00"},
		{"0 3 * * 1-5", "Mon..Fri *-*-* 03:00:00"},
		{"0 3 * * 0,6", "Sun,Sat *-*-* 03:00:00"},
		{"0 0-12/6 * * *", "*-*-* 00,06,12:00:00"},
		{"0 4 1-7 1 *", "*-01-01..07 04:00:00"},
		{"@daily", "daily"},
		{"@hourly", "hourly"},
	}
	for _, tt := range tests {
		got, err := OnCalendar(tt.expr)
		if err != nil {
			t.Errorf("OnCalendar(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("OnCalendar(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
	for _, bad := range []string{"", "0 5 * *", "x 5 * * *", "0 5 * * 9", "0 5 */0 * *"} {
		if _, err := OnCalendar(bad); err == nil {
			t.Errorf("OnCalendar(%q) should fail", bad)
		}
	}
}

func TestUnitFileNames(t *testing.T) {
	svc, timer := UnitFileNames()
	if svc != "pgbackuper.service" || timer != "pgbackuper.timer" {
		t.Errorf("names = %s %s", svc, timer)
	}
}
