package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type MultipartOptions struct {
	// PartMD5 attaches Content-MD5 to every part, as object-lock buckets require.
	PartMD5     bool
	Metadata    map[string]string
	ContentType string
}

// UploadMultipart streams body in partSizeBytes chunks, holding at most one
// part in memory. The upload is aborted on any failure. It returns the
// number of parts and bytes uploaded.
func (c *Client) UploadMultipart(ctx context.Context, key string, body io.Reader, partSizeBytes int64, opts MultipartOptions) (int, int64, error) {
	if partSizeBytes < MinPartSizeBytes {
		partSizeBytes = MinPartSizeBytes
	}

	create := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		create.ContentType = aws.String(opts.ContentType)
	}
	createOut, err := c.api.CreateMultipartUpload(ctx, create)
	if err != nil {
		return 0, 0, fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := createOut.UploadId
	defer func() {
		if uploadID != nil {
			// Abort with a fresh context so a cancelled ctx still cleans up server-side parts.
			_, _ = c.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(c.bucket),
				Key:      aws.String(key),
				UploadId: uploadID,
			})
		}
	}()

	var completed []types.CompletedPart
	var total int64
	partNumber := int32(1)
	buf := make([]byte, partSizeBytes)

	for {
		n, readErr := io.ReadFull(body, buf)
		if n == 0 && (readErr == io.EOF || readErr == io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return 0, total, fmt.Errorf("read part %d: %w", partNumber, readErr)
		}

		part := &s3.UploadPartInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		}
		if opts.PartMD5 {
			part.ContentMD5 = aws.String(contentMD5(buf[:n]))
		}
		uploadOut, err := c.api.UploadPart(ctx, part)
		if err != nil {
			return 0, total, fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		completed = append(completed, types.CompletedPart{
			ETag:       uploadOut.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		total += int64(n)
		partNumber++

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	if len(completed) == 0 {
		return 0, 0, fmt.Errorf("no parts uploaded")
	}

	_, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return 0, total, fmt.Errorf("complete multipart upload: %w", err)
	}
	uploadID = nil
	return len(completed), total, nil
}
