package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"PgBackuper/internal/s3"
)

// pagedSource serves objects in pages, the way ListObjectsV2 does, and
// returns them in bucket (key) order rather than time order.
type pagedSource struct {
	objects  []s3.ObjectInfo
	pageSize int
	pages    int
	err      error
}

func (p *pagedSource) ListArchives(ctx context.Context, prefix string) ([]s3.ObjectInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	sorted := append([]s3.ObjectInfo(nil), p.objects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	var out []s3.ObjectInfo
	for start := 0; start < len(sorted); start += p.pageSize {
		end := start + p.pageSize
		if end > len(sorted) {
			end = len(sorted)
		}
		p.pages++
		out = append(out, sorted[start:end]...)
	}
	return out, nil
}

type recordingDeleter struct {
	deleted []string
	fail    map[string]bool
}

func (r *recordingDeleter) DeleteObject(ctx context.Context, key string) error {
	if r.fail[key] {
		return errors.New("access denied")
	}
	r.deleted = append(r.deleted, key)
	return nil
}

var base = time.Date(2025, 2, 1, 5, 0, 0, 0, time.UTC)

func fixture(n int) []s3.ObjectInfo {
	var out []s3.ObjectInfo
	for i := 0; i < n; i++ {
		// Keys sort opposite to time so bucket order is not recency order.
		out = append(out, s3.ObjectInfo{
			Key:          fmt.Sprintf("backup-db/z%02d.tar.gz", n-i),
			Size:         int64(100 + i),
			LastModified: base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
	return out
}

func TestList_SortedAcrossPages(t *testing.T) {
	src := &pagedSource{objects: fixture(7), pageSize: 3}
	l := NewLister(src, "/backup-db/")
	if l.Prefix() != "backup-db/" {
		t.Errorf("prefix = %q", l.Prefix())
	}
	entries, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if src.pages != 3 {
		t.Errorf("pages = %d, want 3", src.pages)
	}
	if len(entries) != 7 {
		t.Fatalf("len = %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].LastModified < entries[i].LastModified {
			t.Errorf("entries not descending at %d: %s < %s", i, entries[i-1].LastModified, entries[i].LastModified)
		}
	}
	first := entries[0]
	if first.Name != "z01.tar.gz" || first.Key != "backup-db/z01.tar.gz" || first.LastModified != "2025-02-07T05:00:00.000Z" {
		t.Errorf("first = %+v", first)
	}
}

func TestList_Idempotent(t *testing.T) {
	objs := fixture(4)
	// Two objects with identical timestamps must still order deterministically.
	objs = append(objs, s3.ObjectInfo{Key: "backup-db/a-same.tar", LastModified: objs[3].LastModified})
	src := &pagedSource{objects: objs, pageSize: 2}
	l := NewLister(src, "backup-db")
	a, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	src.objects[0], src.objects[4] = src.objects[4], src.objects[0]
	b, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("listing changed between calls:\n%v\n%v", a, b)
	}
	if a[0].Key != "backup-db/a-same.tar" {
		t.Errorf("tie should break by key ascending, got %q first", a[0].Key)
	}
}

func TestList_Empty(t *testing.T) {
	entries, err := NewLister(&pagedSource{pageSize: 2}, "").List(context.Background())
	if err != nil || len(entries) != 0 {
		t.Errorf("entries = %v, err = %v", entries, err)
	}
}

func TestList_Error(t *testing.T) {
	boom := errors.New("list failed")
	if _, err := NewLister(&pagedSource{err: boom, pageSize: 1}, "x").List(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func entriesFor(t *testing.T, n int) []Entry {
	t.Helper()
	e, err := NewLister(&pagedSource{objects: fixture(n), pageSize: 100}, "backup-db").List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestPrune(t *testing.T) {
	now := base.Add(10 * 24 * time.Hour) // entries are 10..4 days old
	tests := []struct {
		name        string
		policy      Policy
		wantDeleted int
	}{
		{"disabled", Policy{}, 0},
		{"keep everything younger than 30d", Policy{Days: 30}, 0},
		{"older than 7d", Policy{Days: 7}, 3},
		{"older than 7d but keep 5", Policy{Days: 7, KeepLast: 5}, 2},
		{"keep last larger than set", Policy{Days: 1, KeepLast: 50}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDeleter{}
			res, err := Prune(context.Background(), d, entriesFor(t, 7), tt.policy, now)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Deleted) != tt.wantDeleted || len(d.deleted) != tt.wantDeleted {
				t.Errorf("deleted = %v, want %d", res.Deleted, tt.wantDeleted)
			}
			if res.Retained+len(res.Deleted) != 7 {
				t.Errorf("retained %d + deleted %d != 7", res.Retained, len(res.Deleted))
			}
		})
	}
}

func TestPrune_AtCutoffRetained(t *testing.T) {
	entries := []Entry{{Key: "k.tar.gz", Modified: base}}
	res, err := Prune(context.Background(), &recordingDeleter{}, entries, Policy{Days: 1}, base.AddDate(0, 0, 1))
	if err != nil || len(res.Deleted) != 0 {
		t.Errorf("entry at cutoff deleted: %+v %v", res, err)
	}
}

func TestPrune_DeleteFailureContinues(t *testing.T) {
	entries := entriesFor(t, 7)
	oldest := entries[len(entries)-1].Key
	d := &recordingDeleter{fail: map[string]bool{oldest: true}}
	res, err := Prune(context.Background(), d, entries, Policy{Days: 7}, base.Add(10*24*time.Hour))
	if err == nil {
		t.Fatal("expected joined delete error")
	}
	if len(res.Deleted) != 2 || res.Retained != 5 {
		t.Errorf("res = %+v", res)
	}
}

func TestRetention_Prune(t *testing.T) {
	d := &recordingDeleter{}
	r := &Retention{
		Lister:  NewLister(&pagedSource{objects: fixture(7), pageSize: 2}, "backup-db"),
		Deleter: d,
		Policy:  Policy{Days: 7, KeepLast: 1},
		Now:     func() time.Time { return base.Add(10 * 24 * time.Hour) },
	}
	res, err := r.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Deleted) != 3 {
		t.Errorf("deleted = %v", res.Deleted)
	}
}
