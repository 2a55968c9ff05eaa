package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"PgBackuper/internal/pipeline"
)

// ErrObjectNotFound wraps lookups of keys that do not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

type DownloadResult struct {
	Key  string
	Size int64
	// BLAKE3 is the digest recorded at upload time, empty if none was stored.
	BLAKE3 string
}

// DownloadFile writes the object at key to a new file at path. The file must
// not already exist. A partially written file is removed on failure.
func (c *Client) DownloadFile(ctx context.Context, key, path string) (DownloadResult, error) {
	res := DownloadResult{Key: key}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return res, &pipeline.TransportError{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()
	res.BLAKE3 = out.Metadata[MetaBLAKE3]

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return res, &pipeline.FilesystemError{Op: "create", Path: path, Err: err}
	}
	n, copyErr := io.Copy(f, out.Body)
	syncErr := f.Sync()
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		os.Remove(path)
		return res, &pipeline.TransportError{Op: "read", Key: key, Err: copyErr}
	case syncErr != nil:
		os.Remove(path)
		return res, &pipeline.FilesystemError{Op: "sync", Path: path, Err: syncErr}
	case closeErr != nil:
		os.Remove(path)
		return res, &pipeline.FilesystemError{Op: "close", Path: path, Err: closeErr}
	}
	res.Size = n
	return res, nil
}
