package s3

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"PgBackuper/internal/pipeline"
)

const DefaultPartSizeBytes = 8 * 1024 * 1024

type UploadOptions struct {
	// PartSize is the multipart threshold and part size; files at or below it
	// go up in a single PutObject.
	PartSize int64
	// Checksum sends Content-MD5 on every request and stores a BLAKE3 digest
	// in the object metadata. Object-lock buckets reject uploads without it.
	Checksum    bool
	ContentType string
}

type UploadResult struct {
	Key    string
	Size   int64
	Parts  int
	MD5    string
	BLAKE3 string
}

// UploadFile uploads the file at path under key. Failures are returned as
// *pipeline.TransportError or, for local I/O, *pipeline.FilesystemError.
func (c *Client) UploadFile(ctx context.Context, key, path string, opts UploadOptions) (UploadResult, error) {
	res := UploadResult{Key: key}
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSizeBytes
	}
	if partSize < MinPartSizeBytes {
		partSize = MinPartSizeBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return res, &pipeline.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return res, &pipeline.FilesystemError{Op: "stat", Path: path, Err: err}
	}
	res.Size = info.Size()

	var meta map[string]string
	if opts.Checksum {
		d, err := Sum(f)
		if err != nil {
			return res, &pipeline.FilesystemError{Op: "checksum", Path: path, Err: err}
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return res, &pipeline.FilesystemError{Op: "seek", Path: path, Err: err}
		}
		res.MD5 = d.ContentMD5()
		res.BLAKE3 = d.BLAKE3Hex()
		meta = map[string]string{MetaBLAKE3: res.BLAKE3}
	}

	if res.Size <= partSize {
		in := &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(res.Size),
			Metadata:      meta,
		}
		if opts.ContentType != "" {
			in.ContentType = aws.String(opts.ContentType)
		}
		if opts.Checksum {
			in.ContentMD5 = aws.String(res.MD5)
		}
		if _, err := c.api.PutObject(ctx, in); err != nil {
			return res, &pipeline.TransportError{Op: "put", Key: key, Err: err}
		}
		res.Parts = 1
		return res, nil
	}

	parts, n, err := c.UploadMultipart(ctx, key, f, partSize, MultipartOptions{
		PartMD5:     opts.Checksum,
		Metadata:    meta,
		ContentType: opts.ContentType,
	})
	if err != nil {
		return res, &pipeline.TransportError{Op: "multipart upload", Key: key, Err: err}
	}
	if n != res.Size {
		return res, &pipeline.TransportError{Op: "multipart upload", Key: key,
			Err: fmt.Errorf("uploaded %d bytes, file has %d", n, res.Size)}
	}
	res.Parts = parts
	return res, nil
}
