package multitable

import (
	"context"
	"fmt"

	"salesetl/internal/storage"
)

// Mapping resolves natural keys of one dimension table to surrogate keys.
//
// A Mapping is built once per load run from the freshly loaded table and is
// never reused across runs: surrogate keys are regenerated on every reload.
type Mapping struct {
	table string
	keys  map[string]int64
}

// NewMapping wraps m. The map is not copied.
func NewMapping(table string, m map[string]int64) Mapping {
	if m == nil {
		m = map[string]int64{}
	}
	return Mapping{table: table, keys: m}
}

// Resolve returns the surrogate key for natural.
//
// Errors:
//   - *LookupMissError (wrapping ErrLookupMiss) if natural is unknown. There is
//     no zero-value fallback.
func (m Mapping) Resolve(natural string) (int64, error) {
	id, ok := m.keys[natural]
	if !ok {
		return 0, &LookupMissError{Table: m.table, Key: natural}
	}
	return id, nil
}

func (m Mapping) Table() string { return m.table }
func (m Mapping) Len() int      { return len(m.keys) }

// BuildLookup reads every (surrogate, natural) pair of table into a Mapping.
// Composite natural keys are joined with a single space ("Jane Doe").
//
// Duplicate natural keys resolve to the last row read; LoadDimension never
// writes duplicates.
func BuildLookup(ctx context.Context, repo storage.MultiRepository, table, surrogateColumn string, naturalColumns ...string) (Mapping, error) {
	if len(naturalColumns) == 0 {
		return Mapping{}, fmt.Errorf("lookup %s: no natural key columns", table)
	}
	m, err := repo.SelectAllKeyValue(ctx, table, naturalColumns, surrogateColumn)
	if err != nil {
		return Mapping{}, fmt.Errorf("lookup %s: %w", table, err)
	}
	return NewMapping(table, m), nil
}

// BuildLookupFor builds the lookup for a dimension spec using its primary key
// and Load.NaturalKey.
func BuildLookupFor(ctx context.Context, repo storage.MultiRepository, spec storage.TableSpec) (Mapping, error) {
	if spec.PrimaryKey == nil {
		return Mapping{}, fmt.Errorf("lookup %s: table has no primary key", spec.Name)
	}
	return BuildLookup(ctx, repo, spec.Name, spec.PrimaryKey.Name, spec.Load.NaturalKey...)
}
