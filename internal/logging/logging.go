// Package logging builds the zerolog loggers handed to every component.
package logging

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// Level is one of trace, debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is json (default) or console.
	Format string
	Output io.Writer
}

func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(out).With().Timestamp().Logger()
	level, err := parseLevel(cfg.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Level).Msg("invalid log level, defaulting to info")
	}
	return logger.Level(level)
}

func parseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, err
	}
	return level, nil
}

// LineWriter turns each written line into one log event at level, with the
// line text in the "line" field. A trailing partial line is held until the
// next newline or Flush.
type LineWriter struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	msg    string
	buf    []byte
}

func NewLineWriter(logger zerolog.Logger, level zerolog.Level, msg string) *LineWriter {
	return &LineWriter{logger: logger, level: level, msg: msg}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	w.logger.WithLevel(w.level).Str("line", string(line)).Msg(w.msg)
}

// RedactURL hides the password of a connection URL. Strings that do not
// parse as URLs are returned fully masked.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}
