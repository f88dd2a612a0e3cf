package multitable

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"salesetl/internal/parser/tsv"
	"salesetl/internal/storage"
)

// Logger is the minimal logging interface used by the multitable engine.
// *log.Logger and logging.Printer satisfy this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// RecordSource is a re-openable stream of export records. tsv.Source and
// tsv.Slice implement it.
type RecordSource interface {
	Each(ctx context.Context, fn func(tsv.Record) error) error
}

// Tuple is one dimension row without its surrogate key. Elements are string,
// int64 or float64.
type Tuple []any

// CompareTuples orders tuples element by element: strings bytewise, numbers
// numerically, numbers before strings. A tuple that is a prefix of another
// sorts first.
func CompareTuples(a, b Tuple) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValue(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareValue(a, b any) int {
	af, aNum := number(a)
	bf, bNum := number(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(storage.NormalizeKey(a), storage.NormalizeKey(b))
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// canonical returns the dedupe key of the values at idx (all values when idx is nil).
func (t Tuple) canonical(idx []int) string {
	var b strings.Builder
	if idx == nil {
		for i, v := range t {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(storage.NormalizeKey(v))
		}
		return b.String()
	}
	for i, n := range idx {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(storage.NormalizeKey(t[n]))
	}
	return b.String()
}

// LoadDimension builds and inserts one dimension table.
//
// Algorithm:
//   - stream every record and collect the tuples extract returns
//   - deduplicate on the whole tuple
//   - sort ascending with CompareTuples
//   - assign surrogate keys 1..N in sorted order and insert in one transaction
//
// Surrogate keys are therefore a pure function of the source content, not of
// line order.
//
// Errors:
//   - Errors from extract abort the load (lookup misses, malformed records).
//   - ErrKeyConflict if two distinct tuples share spec.Load.NaturalKey.
//   - Any insert error; nothing is committed in that case.
func LoadDimension(ctx context.Context, repo storage.MultiRepository, spec storage.TableSpec, src RecordSource, extract Extractor) (int64, error) {
	naturalIdx, err := naturalKeyIndex(spec)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]Tuple)
	naturals := make(map[string]string)

	err = src.Each(ctx, func(rec tsv.Record) error {
		tuples, err := extract(rec)
		if err != nil {
			return err
		}
		for _, t := range tuples {
			if len(t) != len(spec.Columns) {
				return fmt.Errorf("%s: extractor returned %d values, table has %d columns", spec.Name, len(t), len(spec.Columns))
			}
			key := t.canonical(nil)
			if _, ok := seen[key]; ok {
				continue
			}
			nk := t.canonical(naturalIdx)
			if prev, ok := naturals[nk]; ok && prev != key {
				return fmt.Errorf("line %d: %w: %s %q maps to both %v and %v",
					rec.Line, ErrKeyConflict, spec.Name, strings.ReplaceAll(nk, "\x1f", " "), seen[prev], t)
			}
			naturals[nk] = key
			seen[key] = t
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	tuples := make([]Tuple, 0, len(seen))
	for _, t := range seen {
		tuples = append(tuples, t)
	}
	slices.SortFunc(tuples, CompareTuples)

	rows := make([][]any, len(tuples))
	for i, t := range tuples {
		row := make([]any, 0, len(t)+1)
		row = append(row, int64(i+1))
		rows[i] = append(row, t...)
	}

	return repo.InsertRows(ctx, spec.Name, spec.ColumnNames(), rows)
}

func naturalKeyIndex(spec storage.TableSpec) ([]int, error) {
	if len(spec.Load.NaturalKey) == 0 {
		return nil, fmt.Errorf("%s: no natural key configured", spec.Name)
	}
	idx := make([]int, 0, len(spec.Load.NaturalKey))
	for _, name := range spec.Load.NaturalKey {
		i := slices.IndexFunc(spec.Columns, func(c storage.ColumnSpec) bool { return c.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%s: natural key column %q is not a column", spec.Name, name)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// LoadFacts builds and inserts OrderDetail.
//
// For each record the customer is resolved once; then every aligned
// (product, quantity, date) triple becomes one row sharing that customer.
// OrderIDs are assigned 1..N in record order.
//
// Edge cases:
//   - Product, quantity and date lists must have equal lengths.
//   - Dates must be YYYYMMDD; quantities must be integers.
//
// Errors:
//   - *tsv.MalformedRecordError for misaligned lists or a bad quantity.
//   - *LookupMissError for an unknown customer or product.
//   - ErrInvalidDate (wrapped with the line) for a bad date.
func LoadFacts(ctx context.Context, repo storage.MultiRepository, src RecordSource, customers, products Mapping) (int64, error) {
	var rows [][]any
	var orderID int64

	err := src.Each(ctx, func(rec tsv.Record) error {
		name, err := rec.Field(fieldName)
		if err != nil {
			return err
		}
		customerID, err := resolveAt(customers, CustomerKey(SplitName(name)), rec.Line)
		if err != nil {
			return err
		}

		lists, err := alignedLists(rec, fieldProducts, fieldQuantities, fieldOrderDates)
		if err != nil {
			return err
		}
		for i, product := range lists[0] {
			productID, err := resolveAt(products, product, rec.Line)
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(lists[1][i])
			if err != nil {
				return &tsv.MalformedRecordError{
					Line:   rec.Line,
					Reason: fmt.Sprintf("quantity %q of product %q is not an integer", lists[1][i], product),
				}
			}
			date, err := ReformatDate(lists[2][i])
			if err != nil {
				return fmt.Errorf("line %d: %w", rec.Line, err)
			}
			orderID++
			rows = append(rows, []any{orderID, customerID, productID, date, int64(qty)})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return repo.InsertRows(ctx, OrderDetailTable, OrderDetailSpec.ColumnNames(), rows)
}
