//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/backup"
	"PgBackuper/internal/catalog"
	"PgBackuper/internal/restore"
	"PgBackuper/internal/s3"
)

func script(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func newClient(t *testing.T, ctx context.Context) *s3.Client {
	t.Helper()
	endpoint, accessKey, secretKey, bucket := getMinIOEnv()
	client, err := s3.New(ctx, s3.Options{
		Endpoint:                endpoint,
		Region:                  "us-east-1",
		AccessKey:               accessKey,
		SecretKey:               secretKey,
		Bucket:                  bucket,
		PathStyle:               true,
		InsecureSkipVerify:      true,
		DisableRequestChecksums: true,
	})
	if err != nil {
		t.Fatalf("s3.New: %v", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	return client
}

func TestMinIO_BackupListRestorePrune(t *testing.T) {
	if _, err := exec.LookPath("gzip"); err != nil {
		t.Skip("gzip not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client := newClient(t, ctx)
	subfolder := "integration-test/run-" + time.Now().UTC().Format("20060102150405")

	payload := bytes.Repeat([]byte("pg_dump tar stream "), 4096)
	src := filepath.Join(t.TempDir(), "dump.tar")
	if err := os.WriteFile(src, payload, 0o600); err != nil {
		t.Fatal(err)
	}
	pgDump := script(t, "pg_dump", "cat "+src)

	svc := backup.New(backup.Options{
		DatabaseURL: "postgresql://u:p@localhost:5432/app",
		FilePrefix:  "backup",
		Subfolder:   subfolder,
		Format:      archive.FormatGzip,
		TempDir:     t.TempDir(),
		PgDump:      pgDump,
		Upload:      s3.UploadOptions{Checksum: true},
	}, client, zerolog.Nop())
	report, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	entries, err := catalog.NewLister(client, subfolder).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != report.Key || entries[0].Size != report.Size {
		t.Fatalf("entries = %+v, report = %+v", entries, report)
	}

	restoreDir := t.TempDir()
	pgRestore := script(t, "pg_restore", fmt.Sprintf("cat > %s/restored", restoreDir))
	rs := restore.New(restore.Options{TempDir: t.TempDir(), PgRestore: pgRestore, VerifyChecksum: true}, client, zerolog.Nop())
	res := rs.Restore(ctx, report.Key, "postgresql://u:p@localhost:5432/target")
	if !res.OK {
		t.Fatalf("restore: %+v", res)
	}
	restored, err := os.ReadFile(filepath.Join(restoreDir, "restored"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, payload) {
		t.Errorf("restored %d bytes, want %d", len(restored), len(payload))
	}

	r := &catalog.Retention{
		Lister:  catalog.NewLister(client, subfolder),
		Deleter: client,
		Policy:  catalog.Policy{Days: 1},
		Now:     func() time.Time { return time.Now().Add(72 * time.Hour) },
	}
	pruned, err := r.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(pruned.Deleted) != 1 || pruned.Deleted[0] != report.Key {
		t.Errorf("pruned = %+v", pruned)
	}
	if _, err := client.DownloadFile(ctx, report.Key, filepath.Join(t.TempDir(), "gone")); !s3.IsNotFound(err) {
		t.Errorf("download after prune: err = %v, want not found", err)
	}
}
