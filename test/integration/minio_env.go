//go:build integration

package integration

import (
	"os"
	"strings"
)

func getMinIOEnv() (endpoint, accessKey, secretKey, bucket string) {
	endpoint = os.Getenv("PGBACKUPER_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	accessKey = os.Getenv("PGBACKUPER_MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = "minioadmin"
	}
	secretKey = os.Getenv("PGBACKUPER_MINIO_SECRET_KEY")
	if secretKey == "" {
		secretKey = "minioadmin"
	}
	bucket = os.Getenv("PGBACKUPER_MINIO_BUCKET")
	if bucket == "" {
		bucket = "pgbackuper-test"
	}
	return strings.TrimSuffix(endpoint, "/"), accessKey, secretKey, bucket
}
