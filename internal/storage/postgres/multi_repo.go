package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesetl/internal/storage"
)

// maxParams is the Postgres wire-protocol limit on bind parameters.
const maxParams = 65535

/*
MultiRepo implements storage.MultiRepository for Postgres.

It provides:
  - Drop/create of the normalized tables (DROP ... CASCADE)
  - Single-transaction multi-row inserts
  - Key lookups and ordered scans for fingerprints and integrity checks

Foreign keys are always enforced by Postgres; there is no per-connection
switch to flip.
*/
type MultiRepo struct {
	pool *pgxpool.Pool
}

// NewMulti creates a new Postgres-backed MultiRepo.
func NewMulti(ctx context.Context, cfg storage.MultiConfig) (storage.MultiRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &MultiRepo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *MultiRepo) Close() {
	r.pool.Close()
}

// EnsureTable drops (optionally) and creates a table.
func (r *MultiRepo) EnsureTable(ctx context.Context, t storage.TableSpec, dropFirst bool) error {
	if dropFirst {
		if err := r.DropTable(ctx, t.Name); err != nil {
			return err
		}
	}

	ddl, err := buildCreateSQL(t)
	if err != nil {
		return &storage.SchemaError{Table: t.Name, Op: "create", Err: err}
	}
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return &storage.SchemaError{Table: t.Name, Op: "create", Err: err}
	}
	return nil
}

// DropTable drops table and any foreign key constraints that point at it.
func (r *MultiRepo) DropTable(ctx context.Context, table string) error {
	if _, err := r.pool.Exec(ctx, buildDropSQL(table)); err != nil {
		return &storage.SchemaError{Table: table, Op: "drop", Err: err}
	}
	return nil
}

// InsertRows performs chunked multi-row inserts inside one transaction.
func (r *MultiRepo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var affected int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, chunk)
		cmd, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert %s: %w", table, err)
		}
		affected += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return affected, nil
}

// SelectAllKeyValue returns a mapping from joined natural key -> surrogate id
// for the whole dimension table.
func (r *MultiRepo) SelectAllKeyValue(
	ctx context.Context,
	table string,
	keyColumns []string,
	valueColumn string,
) (map[string]int64, error) {
	if table == "" || len(keyColumns) == 0 || valueColumn == "" {
		return nil, fmt.Errorf("SelectAllKeyValue: table, keyColumns, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, pgIdentList(keyColumns), pgIdent(valueColumn), pgIdent(table))
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SelectAllKeyValue: query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("SelectAllKeyValue: scan %s: %w", table, err)
		}
		id, ok := vals[len(keyColumns)].(int64)
		if !ok {
			return nil, fmt.Errorf("SelectAllKeyValue: %s.%s is %T, want int64", table, valueColumn, vals[len(keyColumns)])
		}
		out[storage.JoinKey(vals[:len(keyColumns)]...)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectAllKeyValue: rows %s: %w", table, err)
	}
	return out, nil
}

func (r *MultiRepo) ScanRows(ctx context.Context, table string, columns []string, orderBy string, fn func(row []any) error) error {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`, pgIdentList(columns), pgIdent(table), pgIdent(orderBy))
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("ScanRows: query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("ScanRows: scan %s: %w", table, err)
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *MultiRepo) CountOrphans(ctx context.Context, child, fkColumn, parent, parentColumn string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, buildOrphanSQL(child, fkColumn, parent, parentColumn)).Scan(&n)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return n, err
}

func pgIdent(id string) string {
	return pgx.Identifier{id}.Sanitize()
}

func pgIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}

// buildInsertSQL constructs a single INSERT statement and its args for Postgres.
//
// Constraints:
//   - rows must have the same length as columns for every row.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	b.WriteString(pgIdentList(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func buildDropSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgIdent(table))
}

func buildOrphanSQL(child, fkColumn, parent, parentColumn string) string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL`,
		pgIdent(child), pgIdent(parent), pgIdent(fkColumn), pgIdent(parentColumn), pgIdent(parentColumn),
	)
}

// columnType maps a portable type to Postgres.
func columnType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case storage.TypeInteger:
		return "bigint", nil
	case storage.TypeReal:
		return "double precision", nil
	case storage.TypeText:
		return "text", nil
	case storage.TypeDate:
		return "date", nil
	case "":
		return "", fmt.Errorf("type is empty")
	default:
		return "", fmt.Errorf("unsupported type %q", t)
	}
}

// buildColumnDef renders a single column definition.
//
// Foreign key references are expressed inline in the column definition.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}
	typ, err := columnType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", name, err)
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")
	b.WriteString(typ)
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}

	if ref := c.References; ref != nil {
		b.WriteString(" REFERENCES ")
		b.WriteString(pgIdent(ref.Table))
		b.WriteString(" (")
		b.WriteString(pgIdent(ref.Column))
		b.WriteString(")")
		if ref.Cascades() {
			b.WriteString(" ON DELETE CASCADE")
		}
	}
	return b.String(), nil
}

// buildCreateSQL builds the DDL for one table. It never uses IF NOT EXISTS: an
// existing table is a schema error the caller must see.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		typ, err := columnType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: primary key: %w", t.Name, err)
		}
		cols = append(cols, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(t.PrimaryKey.Name), typ))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	for _, c := range t.Constraints {
		if !strings.EqualFold(strings.TrimSpace(c.Kind), "unique") || len(c.Columns) == 0 {
			return "", fmt.Errorf("table %s: unsupported constraint %q", t.Name, c.Kind)
		}
		cols = append(cols, "UNIQUE ("+pgIdentList(c.Columns)+")")
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}
	return fmt.Sprintf(`CREATE TABLE %s (%s);`, pgIdent(t.Name), strings.Join(cols, ", ")), nil
}

var _ storage.MultiRepository = (*MultiRepo)(nil)
