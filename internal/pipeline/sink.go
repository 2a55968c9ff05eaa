package pipeline

import (
	"io"
	"os"
)

// Sink receives the consumer's stdout. Close must not return until the
// written bytes are durable; the runner treats a failed Close as a failed run.
type Sink interface {
	io.WriteCloser
}

type FileSink struct {
	f    *os.File
	path string
}

// NewFileSink creates (or truncates) path with mode 0600.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, &FilesystemError{Op: "create", Path: path, Err: err}
	}
	return &FileSink{f: f, path: path}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *FileSink) Close() error {
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return &FilesystemError{Op: "sync", Path: s.path, Err: err}
	}
	if err := s.f.Close(); err != nil {
		return &FilesystemError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileSink) Path() string { return s.path }

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }
func (discardSink) Close() error                { return nil }

// Discard is a Sink that drops everything, for consumers whose output is irrelevant.
var Discard Sink = discardSink{}
