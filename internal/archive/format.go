package archive

import (
	"errors"
	"fmt"
	"strings"

	"PgBackuper/internal/pipeline"
)

type Format string

const (
	FormatGzip Format = "gzip"
	FormatZstd Format = "zstd"
	FormatNone Format = "none"
)

var ErrNotArchive = errors.New("not a backup archive")

var ErrInvalidFormat = errors.New("invalid compression: must be gzip, zstd or none")

// suffixes are checked longest first so ".tar.gz" wins over ".tar".
var suffixes = []struct {
	ext    string
	format Format
}{
	{".tar.gz", FormatGzip},
	{".tar.zst", FormatZstd},
	{".tar", FormatNone},
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatGzip, "gz", "":
		return FormatGzip, nil
	case FormatZstd, "zst":
		return FormatZstd, nil
	case FormatNone, "tar":
		return FormatNone, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidFormat, s)
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatZstd:
		return ".tar.zst"
	case FormatNone:
		return ".tar"
	default:
		return ".tar.gz"
	}
}

// FormatFromKey derives the compression format from an object key or file name.
func FormatFromKey(key string) (Format, bool) {
	lower := strings.ToLower(key)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.format, true
		}
	}
	return "", false
}

func IsArchiveKey(key string) bool {
	_, ok := FormatFromKey(key)
	return ok
}

// Tools holds the binaries used to compress and decompress archives.
type Tools struct {
	Gzip string
	Zstd string
	Cat  string
}

func DefaultTools() Tools {
	return Tools{Gzip: "gzip", Zstd: "zstd", Cat: "cat"}
}

func (t Tools) withDefaults() Tools {
	d := DefaultTools()
	if t.Gzip == "" {
		t.Gzip = d.Gzip
	}
	if t.Zstd == "" {
		t.Zstd = d.Zstd
	}
	if t.Cat == "" {
		t.Cat = d.Cat
	}
	return t
}

// Compressor returns the stdin-to-stdout compression command for f.
func (f Format) Compressor(t Tools) pipeline.Command {
	t = t.withDefaults()
	switch f {
	case FormatZstd:
		return pipeline.Command{Name: "zstd", Path: t.Zstd, Args: []string{"-q", "-c"}}
	case FormatNone:
		return pipeline.Command{Name: "cat", Path: t.Cat}
	default:
		return pipeline.Command{Name: "gzip", Path: t.Gzip, Args: []string{"-c"}}
	}
}

// Decompressor returns the stdin-to-stdout decompression command for f.
func (f Format) Decompressor(t Tools) pipeline.Command {
	t = t.withDefaults()
	switch f {
	case FormatZstd:
		return pipeline.Command{Name: "zstd", Path: t.Zstd, Args: []string{"-q", "-d", "-c"}}
	case FormatNone:
		return pipeline.Command{Name: "cat", Path: t.Cat}
	default:
		return pipeline.Command{Name: "gunzip", Path: t.Gzip, Args: []string{"-d", "-c"}}
	}
}
