package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Deleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// Policy deletes archives older than Days, always keeping the newest
// KeepLast. Days <= 0 disables pruning.
type Policy struct {
	Days     int
	KeepLast int
}

func (p Policy) Enabled() bool {
	return p.Days > 0
}

type PruneResult struct {
	Retained int
	Deleted  []string
}

// Prune deletes expired entries through d. An entry modified exactly at the
// cutoff is retained. Deletion failures do not stop the pass; they are
// joined into the returned error and the entries count as retained.
func Prune(ctx context.Context, d Deleter, entries []Entry, p Policy, now time.Time) (PruneResult, error) {
	sorted := append([]Entry(nil), entries...)
	Sort(sorted)
	if !p.Enabled() {
		return PruneResult{Retained: len(sorted)}, nil
	}
	cutoff := now.AddDate(0, 0, -p.Days)

	var res PruneResult
	var errs []error
	for i, e := range sorted {
		if i < p.KeepLast || !e.Modified.Before(cutoff) {
			res.Retained++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := d.DeleteObject(ctx, e.Key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", e.Key, err))
			res.Retained++
			continue
		}
		res.Deleted = append(res.Deleted, e.Key)
	}
	return res, errors.Join(errs...)
}

// Retention lists the catalog and prunes it in one call.
type Retention struct {
	Lister  *Lister
	Deleter Deleter
	Policy  Policy
	Now     func() time.Time
}

func (r *Retention) Prune(ctx context.Context) (PruneResult, error) {
	entries, err := r.Lister.List(ctx)
	if err != nil {
		return PruneResult{}, err
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	return Prune(ctx, r.Deleter, entries, r.Policy, now)
}
