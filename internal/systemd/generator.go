// Package systemd renders unit files that run pgbackuper under systemd,
// either as a long-running daemon or as a oneshot service driven by a timer.
package systemd

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultUnitDir    = "/etc/systemd/system"
	DefaultBinary     = "/usr/local/bin/pgbackuper"
	DefaultConfigPath = "/etc/pgbackuper/config.yaml"
	UnitName          = "pgbackuper"
)

type Mode string

const (
	// ModeDaemon runs "pgbackuper daemon", which schedules backups itself and
	// serves the restore API.
	ModeDaemon Mode = "daemon"
	// ModeTimer runs "pgbackuper run" from a systemd timer.
	ModeTimer Mode = "timer"
)

type GeneratorOptions struct {
	Binary     string
	ConfigPath string
	Mode       Mode
	// Schedule is the cron expression converted into OnCalendar in timer mode.
	Schedule  string
	Hardening bool
}

type GeneratedUnits struct {
	Service string
	// Timer is empty in daemon mode.
	Timer string
}

// UnitFileNames returns the service and timer file names.
func UnitFileNames() (service, timer string) {
	return UnitName + ".service", UnitName + ".timer"
}

func Generate(opts GeneratorOptions) (*GeneratedUnits, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	switch opts.Mode {
	case ModeDaemon, "":
		return &GeneratedUnits{Service: buildService(opts.Binary+" daemon", opts.ConfigPath, false, opts.Hardening)}, nil
	case ModeTimer:
		calendar, err := OnCalendar(opts.Schedule)
		if err != nil {
			return nil, err
		}
		return &GeneratedUnits{
			Service: buildService(opts.Binary+" run", opts.ConfigPath, true, opts.Hardening),
			Timer:   buildTimer(calendar),
		}, nil
	default:
		return nil, fmt.Errorf("unknown unit mode %q", opts.Mode)
	}
}

func buildService(execStart, configPath string, oneshot, hardening bool) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=pgbackuper PostgreSQL backups\n")
	b.WriteString("After=network-online.target\n")
	b.WriteString("Wants=network-online.target\n\n")

	b.WriteString("[Service]\n")
	if oneshot {
		b.WriteString("Type=oneshot\n")
	} else {
		b.WriteString("Type=simple\n")
		b.WriteString("Restart=on-failure\n")
		b.WriteString("RestartSec=10\n")
	}
	b.WriteString(fmt.Sprintf("ExecStart=%s\n", execStart))
	b.WriteString("Environment=PGBACKUPER_CONFIG=" + configPath + "\n")

	if hardening {
		b.WriteString("ProtectSystem=full\n")
		b.WriteString("ProtectHome=read-only\n")
		b.WriteString("PrivateTmp=yes\n")
		b.WriteString("NoNewPrivileges=yes\n")
		b.WriteString("ProtectKernelTunables=yes\n")
		b.WriteString("ProtectKernelModules=yes\n")
		b.WriteString("ProtectControlGroups=yes\n")
		b.WriteString("RestrictRealtime=yes\n")
		b.WriteString("RestrictSUIDSGID=yes\n")
		b.WriteString("LockPersonality=yes\n")
		b.WriteString("ProtectClock=yes\n")
		b.WriteString("ProtectHostname=yes\n")
		b.WriteString("ProtectKernelLogs=yes\n")
		b.WriteString("RestrictNamespaces=yes\n")
		b.WriteString("RestrictAddressFamilies=AF_UNIX AF_INET AF_INET6\n")
	}

	if !oneshot {
		b.WriteString("\n[Install]\n")
		b.WriteString("WantedBy=multi-user.target\n")
	}
	return b.String()
}

func buildTimer(calendar string) string {
	service, _ := UnitFileNames()
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=pgbackuper backup schedule\n")
	b.WriteString("Requires=" + service + "\n\n")

	b.WriteString("[Timer]\n")
	b.WriteString("OnCalendar=" + calendar + "\n")
	b.WriteString("Persistent=yes\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=timers.target\n")
	return b.String()
}

var descriptors = map[string]string{
	"@yearly":   "yearly",
	"@annually": "yearly",
	"@monthly":  "monthly",
	"@weekly":   "weekly",
	"@daily":    "daily",
	"@midnight": "daily",
	"@hourly":   "hourly",
}

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// OnCalendar converts a five-field numeric cron expression into a systemd
// calendar specification. Month and weekday names are not supported.
func OnCalendar(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if d, ok := descriptors[expr]; ok {
		return d, nil
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "", fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(fields))
	}
	minute, err := convertField(fields[0])
	if err != nil {
		return "", fmt.Errorf("minute: %w", err)
	}
	hour, err := convertField(fields[1])
	if err != nil {
		return "", fmt.Errorf("hour: %w", err)
	}
	dom, err := convertField(fields[2])
	if err != nil {
		return "", fmt.Errorf("day of month: %w", err)
	}
	month, err := convertField(fields[3])
	if err != nil {
		return "", fmt.Errorf("month: %w", err)
	}
	spec := fmt.Sprintf("*-%s-%s %s:%s:00", month, dom, hour, minute)
	if fields[4] == "*" || fields[4] == "?" {
		return spec, nil
	}
	dow, err := convertWeekdays(fields[4])
	if err != nil {
		return "", fmt.Errorf("day of week: %w", err)
	}
	return dow + " " + spec, nil
}

// convertField maps cron list, range and step syntax onto systemd's
// ("a-b" becomes "a..b", "*/n" becomes "0/n").
func convertField(f string) (string, error) {
	if f == "*" || f == "?" {
		return "*", nil
	}
	parts := strings.Split(f, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		base, step, hasStep := strings.Cut(p, "/")
		if hasStep {
			if n, err := strconv.Atoi(step); err != nil || n <= 0 {
				return "", fmt.Errorf("bad step %q", p)
			}
		}
		var conv string
		switch {
		case base == "*":
			conv = "*"
			if hasStep {
				conv = "00"
			}
		case strings.Contains(base, "-"):
			lo, hi, _ := strings.Cut(base, "-")
			a, err1 := pad(lo)
			b, err2 := pad(hi)
			if err1 != nil || err2 != nil {
				return "", fmt.Errorf("bad range %q", p)
			}
			if hasStep {
				// systemd cannot bound a repetition, so expand it.
				ai, _ := strconv.Atoi(lo)
				bi, _ := strconv.Atoi(hi)
				si, _ := strconv.Atoi(step)
				var vals []string
				for v := ai; v <= bi; v += si {
					vals = append(vals, fmt.Sprintf("%02d", v))
				}
				out = append(out, strings.Join(vals, ","))
				continue
			}
			conv = a + ".." + b
		default:
			v, err := pad(base)
			if err != nil {
				return "", fmt.Errorf("bad value %q", p)
			}
			conv = v
		}
		if hasStep {
			conv += "/" + step
		}
		out = append(out, conv)
	}
	return strings.Join(out, ","), nil
}

func pad(s string) (string, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return "", fmt.Errorf("not a number: %q", s)
	}
	return fmt.Sprintf("%02d", v), nil
}

func convertWeekdays(f string) (string, error) {
	var out []string
	for _, p := range strings.Split(f, ",") {
		lo, hi, isRange := strings.Cut(p, "-")
		a, err := weekday(lo)
		if err != nil {
			return "", err
		}
		if !isRange {
			out = append(out, a)
			continue
		}
		b, err := weekday(hi)
		if err != nil {
			return "", err
		}
		out = append(out, a+".."+b)
	}
	return strings.Join(out, ","), nil
}

func weekday(s string) (string, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 7 {
		return "", fmt.Errorf("bad weekday %q", s)
	}
	return weekdays[v], nil
}
