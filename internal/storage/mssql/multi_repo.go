package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"salesetl/internal/storage"
)

// maxParams is SQL Server's limit of 2100 parameters per request, less a
// small margin for the driver.
const maxParams = 2000

// MultiRepo implements storage.MultiRepository for Microsoft SQL Server.
//
// Notes:
//   - SQL Server has no CREATE TABLE IF NOT EXISTS; drops use an OBJECT_ID
//     guard and creates are unguarded so an existing table surfaces as a
//     schema error.
//   - A table referenced by a foreign key cannot be dropped. Callers drop
//     children before parents (see storage.OrderTables).
//   - Each INSERT is chunked to stay under the parameter limit; all chunks of
//     one call share a transaction.
type MultiRepo struct {
	db dbConn
}

func init() {
	storage.RegisterMulti("mssql", NewMulti)
}

// NewMulti constructs a MultiRepo using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func NewMulti(ctx context.Context, cfg storage.MultiConfig) (storage.MultiRepository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// The pipeline is a single writer.
	raw.SetMaxOpenConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &MultiRepo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *MultiRepo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
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
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return &storage.SchemaError{Table: t.Name, Op: "create", Err: err}
	}
	return nil
}

func (r *MultiRepo) DropTable(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, buildDropSQL(table)); err != nil {
		return &storage.SchemaError{Table: table, Op: "drop", Err: err}
	}
	return nil
}

// InsertRows inserts rows in chunks inside one transaction.
func (r *MultiRepo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	var affected int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args := buildBulkInsertSQL(table, columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("mssql: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return affected, nil
}

// SelectAllKeyValue loads all (natural key -> id) pairs from a dimension table.
func (r *MultiRepo) SelectAllKeyValue(ctx context.Context, table string, keyColumns []string, valueColumn string) (map[string]int64, error) {
	if len(keyColumns) == 0 {
		return nil, fmt.Errorf("mssql: SelectAllKeyValue %s: no key columns", table)
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s;", mssqlIdentList(keyColumns), mssqlIdent(valueColumn), mssqlTableIdent(table))

	out := make(map[string]int64)
	err := r.scan(ctx, q, len(keyColumns)+1, func(vals []any) error {
		id, ok := vals[len(keyColumns)].(int64)
		if !ok {
			return fmt.Errorf("mssql: %s.%s is %T, want int64", table, valueColumn, vals[len(keyColumns)])
		}
		out[storage.JoinKey(vals[:len(keyColumns)]...)] = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MultiRepo) ScanRows(ctx context.Context, table string, columns []string, orderBy string, fn func(row []any) error) error {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s;", mssqlIdentList(columns), mssqlTableIdent(table), mssqlIdent(orderBy))
	return r.scan(ctx, q, len(columns), fn)
}

func (r *MultiRepo) CountOrphans(ctx context.Context, child, fkColumn, parent, parentColumn string) (int64, error) {
	q := fmt.Sprintf(
		"SELECT COUNT_BIG(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL;",
		mssqlTableIdent(child), mssqlTableIdent(parent), mssqlIdent(fkColumn), mssqlIdent(parentColumn), mssqlIdent(parentColumn),
	)
	var n int64
	err := r.scan(ctx, q, 1, func(vals []any) error {
		v, ok := vals[0].(int64)
		if !ok {
			return fmt.Errorf("mssql: orphan count is %T", vals[0])
		}
		n = v
		return nil
	})
	return n, err
}

func (r *MultiRepo) scan(ctx context.Context, q string, width int, fn func([]any) error) error {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, width)
		dests := make([]any, width)
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return err
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// columnType maps a portable type to SQL Server.
func columnType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case storage.TypeInteger:
		return "BIGINT", nil
	case storage.TypeReal:
		return "FLOAT", nil
	case storage.TypeText:
		// NVARCHAR(MAX) cannot be indexed; 400 chars covers names and addresses.
		return "NVARCHAR(400)", nil
	case storage.TypeDate:
		return "DATE", nil
	case "":
		return "", fmt.Errorf("type is empty")
	default:
		return "", fmt.Errorf("unsupported type %q", t)
	}
}

// buildCreateSQL renders an unguarded CREATE TABLE for t.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var defs []string
	if t.PrimaryKey != nil {
		if strings.TrimSpace(t.PrimaryKey.Name) == "" {
			return "", fmt.Errorf("mssql: primary key name is empty")
		}
		typ, err := columnType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: %s primary key: %w", t.Name, err)
		}
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", mssqlIdent(t.PrimaryKey.Name), typ))
	}

	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("mssql: column name is empty")
		}
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("mssql: %s.%s: %w", t.Name, c.Name, err)
		}
		def := mssqlIdent(c.Name) + " " + typ
		if c.IsNullable() {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		if ref := c.References; ref != nil {
			def += fmt.Sprintf(" REFERENCES %s (%s)", mssqlTableIdent(ref.Table), mssqlIdent(ref.Column))
			if ref.Cascades() {
				def += " ON DELETE CASCADE"
			}
		}
		defs = append(defs, def)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(strings.TrimSpace(con.Kind), "unique") || len(con.Columns) == 0 {
			return "", fmt.Errorf("mssql: %s unsupported constraint %q", t.Name, con.Kind)
		}
		defs = append(defs, "UNIQUE ("+mssqlIdentList(con.Columns)+")")
	}

	if len(defs) == 0 {
		return "", fmt.Errorf("mssql: %s has no columns", t.Name)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", mssqlTableIdent(t.Name), strings.Join(defs, ", ")), nil
}

// buildDropSQL wraps DROP TABLE in an OBJECT_ID guard.
func buildDropSQL(table string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		strings.ReplaceAll(table, "'", "''"),
		mssqlTableIdent(table),
	)
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(mssqlIdentList(columns))
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
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")

	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mssqlIdentList(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, mssqlIdent(n))
	}
	return strings.Join(out, ", ")
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.Region" -> [dbo].[Region]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx used for testability.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn                  = (*sqlDB)(nil)
	_ txConn                  = (*sql.Tx)(nil)
	_ storage.MultiRepository = (*MultiRepo)(nil)
)
