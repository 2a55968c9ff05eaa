package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"PgBackuper/internal/pipeline"
)

// Artifact is a local archive produced by a dump. It belongs to the
// orchestrator that created it.
type Artifact struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Validate checks that path exists, is non-empty and yields at least one
// decompressed byte. A dump process can exit 0 while writing nothing, so the
// exit code alone is not trusted.
func Validate(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, invalid(path, "archive file does not exist")
		}
		return Artifact{}, &pipeline.FilesystemError{Op: "stat", Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return Artifact{}, invalid(path, "archive is not a regular file")
	}
	if info.Size() == 0 {
		return Artifact{}, invalid(path, "archive is empty (0 bytes)")
	}
	format, ok := FormatFromKey(path)
	if !ok {
		return Artifact{}, invalid(path, "unrecognized archive suffix")
	}

	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, &pipeline.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r, closeFn, err := decompress(f, format)
	if err != nil {
		return Artifact{}, invalid(path, fmt.Sprintf("corrupt %s header: %v", format, err))
	}
	defer closeFn()

	var first [1]byte
	n, err := io.ReadFull(r, first[:])
	if n == 0 {
		if err == io.EOF {
			return Artifact{}, invalid(path, "archive decompresses to zero bytes")
		}
		return Artifact{}, invalid(path, fmt.Sprintf("corrupt archive: %v", err))
	}

	return Artifact{Path: path, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

func decompress(r io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { _ = gr.Close() }, nil
	case FormatZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

func invalid(path, reason string) error {
	return &pipeline.ValidationError{Path: path, Reason: reason}
}
