package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/pipeline"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListObjects returns every object under prefix, following continuation
// tokens until the listing is exhausted. keep may be nil.
func (c *Client) ListObjects(ctx context.Context, prefix string, keep func(key string) bool) ([]ObjectInfo, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(c.api, in)

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &pipeline.TransportError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || (keep != nil && !keep(key)) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// ListArchives lists objects under prefix whose keys carry a recognized
// archive suffix.
func (c *Client) ListArchives(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return c.ListObjects(ctx, prefix, archive.IsArchiveKey)
}
