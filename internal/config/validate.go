package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/schedule"
)

var (
	ErrInvalidCompression = errors.New("invalid compression: must be gzip, zstd or none")
	ErrInvalidDatabaseURL = errors.New("invalid database url: scheme must be postgres:// or postgresql://")
	ErrInvalidCredentials = errors.New("invalid s3 credentials")
)

const (
	maxAccessKeyLen  = 50
	minSecretKeyLen  = 40
	minRestoreSecret = 16
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	// Swapped credentials are the most common misconfiguration; access key
	// ids are about 32 characters and secrets about 64.
	if n := len(cfg.S3.AccessKey); n > maxAccessKeyLen {
		return fmt.Errorf("%w: access key id has %d characters, expected about 32 (secret pasted in its place?)", ErrInvalidCredentials, n)
	}
	if n := len(cfg.S3.SecretKey); n > 0 && n < minSecretKeyLen {
		return fmt.Errorf("%w: secret access key has %d characters, expected about 64 (swapped with the access key id?)", ErrInvalidCredentials, n)
	}

	if _, err := archive.ParseFormat(cfg.Backup.Compression); err != nil {
		return fmt.Errorf("%w: got %q", ErrInvalidCompression, cfg.Backup.Compression)
	}
	if err := ValidateDatabaseURL(cfg.Database.URL); err != nil {
		return err
	}
	if _, err := schedule.Parse(cfg.Backup.Schedule); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", cfg.Backup.Schedule, err)
	}

	if cfg.Restore.Enabled {
		if len(cfg.Restore.APIKey) < minRestoreSecret {
			return fmt.Errorf("restore is enabled: API_KEY must have at least %d characters", minRestoreSecret)
		}
		if len(cfg.Restore.JWTSecret) < minRestoreSecret {
			return fmt.Errorf("restore is enabled: JWT_SECRET must have at least %d characters", minRestoreSecret)
		}
	}
	return nil
}

// ValidateDatabaseURL checks that raw is a postgres connection URL.
func ValidateDatabaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return nil
	default:
		return ErrInvalidDatabaseURL
	}
}

// SplitPassword moves the password out of a postgres URL so that it can be
// handed to pg_dump/pg_restore as PGPASSWORD instead of on the command line,
// where any local user could read it. Both the user-info password and a
// password query parameter are handled. URLs without a password, or that do
// not parse, are returned unchanged with no environment.
func SplitPassword(raw string) (string, []string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw, nil
	}
	var password string
	if u.User != nil {
		if p, ok := u.User.Password(); ok {
			password = p
			u.User = url.User(u.User.Username())
		}
	}
	if q := u.Query(); q.Has("password") {
		if password == "" {
			password = q.Get("password")
		}
		q.Del("password")
		u.RawQuery = q.Encode()
	}
	if password == "" {
		return raw, nil
	}
	return u.String(), []string{"PGPASSWORD=" + password}
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gte", "gt", "lte":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
