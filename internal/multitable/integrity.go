package multitable

import (
	"context"
	"fmt"

	"salesetl/internal/metrics"
	"salesetl/internal/storage"
)

// OrphanCount is the number of rows of Child whose Column has no parent row.
type OrphanCount struct {
	Child   string
	Column  string
	Parent  string
	Orphans int64
}

// CheckIntegrity counts orphaned foreign keys for every reference in specs.
// A clean load reports zero for every entry.
func CheckIntegrity(ctx context.Context, repo storage.MultiRepository, specs []storage.TableSpec) ([]OrphanCount, error) {
	var out []OrphanCount
	for _, spec := range specs {
		for _, fk := range spec.ForeignKeys() {
			n, err := repo.CountOrphans(ctx, spec.Name, fk.Name, fk.References.Table, fk.References.Column)
			if err != nil {
				return nil, fmt.Errorf("integrity %s.%s: %w", spec.Name, fk.Name, err)
			}
			if n > 0 {
				metrics.IncCounter(metrics.OrphanRowsTotal, float64(n), metrics.Labels{"kind": spec.Name})
			}
			out = append(out, OrphanCount{Child: spec.Name, Column: fk.Name, Parent: fk.References.Table, Orphans: n})
		}
	}
	return out, nil
}

// TotalOrphans sums Orphans over counts.
func TotalOrphans(counts []OrphanCount) int64 {
	var n int64
	for _, c := range counts {
		n += c.Orphans
	}
	return n
}
