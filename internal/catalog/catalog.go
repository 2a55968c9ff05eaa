// Package catalog lists the archives stored under the backup prefix and
// applies the retention policy to them.
package catalog

import (
	"context"
	"sort"
	"time"

	"PgBackuper/internal/archive"
	"PgBackuper/internal/s3"
)

type Entry struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	// LastModified is UTC ISO-8601 with milliseconds.
	LastModified string    `json:"lastModified"`
	Size         int64     `json:"size"`
	Modified     time.Time `json:"-"`
}

type Source interface {
	ListArchives(ctx context.Context, prefix string) ([]s3.ObjectInfo, error)
}

type Lister struct {
	src    Source
	prefix string
}

func NewLister(src Source, subfolder string) *Lister {
	return &Lister{src: src, prefix: archive.ListPrefix(subfolder)}
}

func (l *Lister) Prefix() string {
	return l.prefix
}

// List returns every archive under the prefix, newest first. Nothing is
// cached; each call lists the bucket again.
func (l *Lister) List(ctx context.Context) ([]Entry, error) {
	objects, err := l.src.ListArchives(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(objects))
	for _, o := range objects {
		entries = append(entries, Entry{
			Key:          o.Key,
			Name:         archive.DisplayName(o.Key),
			LastModified: archive.ISO8601(o.LastModified),
			Size:         o.Size,
			Modified:     o.LastModified,
		})
	}
	Sort(entries)
	return entries, nil
}

// Sort orders entries by modification time descending, then key ascending.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Modified.Equal(b.Modified) {
			return a.Modified.After(b.Modified)
		}
		return a.Key < b.Key
	})
}
