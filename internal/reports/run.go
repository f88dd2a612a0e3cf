package reports

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Result is a fully materialized report.
type Result struct {
	Report  string
	Columns []string
	Rows    [][]any
}

// Run executes the named report with args bound as positional parameters.
//
// Errors:
//   - Unknown report name.
//   - Wrong number of arguments for the report.
//   - Any query or scan error.
func Run(ctx context.Context, q Querier, name string, args ...any) (Result, error) {
	r, ok := Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("reports: unknown report %q", name)
	}
	if len(args) != len(r.Params) {
		return Result{}, fmt.Errorf("reports: %s takes %d argument(s) (%s), got %d",
			name, len(r.Params), strings.Join(r.Params, ", "), len(args))
	}

	rows, err := q.QueryContext(ctx, r.SQL, args...)
	if err != nil {
		return Result{}, fmt.Errorf("reports: %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("reports: %s: columns: %w", name, err)
	}

	res := Result{Report: name, Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("reports: %s: scan: %w", name, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("reports: %s: rows: %w", name, err)
	}
	return res, nil
}

// WriteTSV writes res as a header line followed by one tab-separated line per
// row. NULL is written as an empty field.
func WriteTSV(w io.Writer, res Result) error {
	if _, err := io.WriteString(w, strings.Join(res.Columns, "\t")+"\n"); err != nil {
		return err
	}
	fields := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i, v := range row {
			fields[i] = FormatValue(v)
		}
		if _, err := io.WriteString(w, strings.Join(fields, "\t")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a scanned value for display. Floats use the shortest
// decimal form without exponents.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return fmt.Sprint(v)
	}
}
