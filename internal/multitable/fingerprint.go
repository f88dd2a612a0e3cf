package multitable

import (
	"context"
	"fmt"

	"salesetl/internal/storage"
	"salesetl/internal/transformer/builtin"
)

// TableFingerprint is a SHA-256 over every row of a table ordered by its
// primary key.
type TableFingerprint struct {
	Table  string
	Rows   int64
	SHA256 string
}

// Fingerprint hashes each table in specs. Two loads of the same source must
// yield identical fingerprints.
//
// Edge cases:
//   - Tables without a primary key cannot be ordered and are rejected.
//   - Values are hashed as the driver returns them; compare fingerprints from
//     the same backend kind only.
func Fingerprint(ctx context.Context, repo storage.MultiRepository, specs []storage.TableSpec) ([]TableFingerprint, error) {
	out := make([]TableFingerprint, 0, len(specs))
	for _, spec := range specs {
		if spec.PrimaryKey == nil {
			return nil, fmt.Errorf("fingerprint %s: table has no primary key", spec.Name)
		}
		h := builtin.NewRowHash()
		err := repo.ScanRows(ctx, spec.Name, spec.ColumnNames(), spec.PrimaryKey.Name, func(row []any) error {
			h.Add(row)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", spec.Name, err)
		}
		out = append(out, TableFingerprint{Table: spec.Name, Rows: h.Rows(), SHA256: h.Sum()})
	}
	return out, nil
}

// DiffFingerprints returns the names of tables whose fingerprints differ
// between a and b, including tables present on one side only.
func DiffFingerprints(a, b []TableFingerprint) []string {
	bm := make(map[string]TableFingerprint, len(b))
	for _, f := range b {
		bm[f.Table] = f
	}
	var diff []string
	for _, f := range a {
		g, ok := bm[f.Table]
		if !ok || g != f {
			diff = append(diff, f.Table)
		}
		delete(bm, f.Table)
	}
	for _, f := range b {
		if _, ok := bm[f.Table]; ok {
			diff = append(diff, f.Table)
		}
	}
	return diff
}
