package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"salesetl/internal/storage"
)

// maxParams is SQLite's default SQLITE_MAX_VARIABLE_NUMBER (3.32+).
const maxParams = 32766

// MultiRepo implements storage.MultiRepository for SQLite.
//
// Key design points vs Postgres:
//   - Foreign keys are off by default in SQLite. Every connection opened by
//     this repo has PRAGMA foreign_keys=ON applied through the DSN, and Open
//     verifies it took effect before returning.
//   - The pool is capped at one connection: the pipeline is a single writer
//     and SQLite serializes writers anyway.
//   - DROP TABLE on a parent with ON DELETE CASCADE children empties the
//     children first (implicit DELETE FROM), so per-step drop-and-recreate
//     works without ordering tricks.
type MultiRepo struct {
	db *sql.DB
}

func init() {
	storage.RegisterMulti("sqlite", NewMulti)
}

// NewMulti opens a SQLite database and returns it as a storage.MultiRepository.
func NewMulti(ctx context.Context, cfg storage.MultiConfig) (storage.MultiRepository, error) {
	db, err := Open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &MultiRepo{db: db}, nil
}

// Open opens dsn with foreign-key enforcement enabled on every connection.
//
// dsn may be a bare path ("normalized.db"), a "file:" URI, or ":memory:".
//
// Errors:
//   - Returns an error if the database cannot be opened or pinged.
//   - Returns an error if PRAGMA foreign_keys does not report 1 afterwards.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: empty dsn")
	}

	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	var on int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: read foreign_keys pragma: %w", err)
	}
	if on != 1 {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: foreign key enforcement is off (foreign_keys=%d)", on)
	}
	return db, nil
}

// withForeignKeys appends the modernc _pragma parameter to dsn.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	const pragma = "_pragma=foreign_keys(1)"
	if dsn == ":memory:" {
		return "file::memory:?" + pragma
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragma
	}
	return dsn + "?" + pragma
}

// DatabasePath extracts the filesystem path from a SQLite DSN.
// It returns "" for in-memory databases.
func DatabasePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	return p
}

// RemoveDatabase deletes the database file behind dsn, if present.
func RemoveDatabase(dsn string) error {
	p := DatabasePath(dsn)
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sqlite: remove %s: %w", p, err)
	}
	return nil
}

func (r *MultiRepo) Close() { _ = r.db.Close() }

// DB exposes the underlying handle for read-only consumers (reports).
func (r *MultiRepo) DB() *sql.DB { return r.db }

// EnsureTable drops (optionally) and creates a table.
func (r *MultiRepo) EnsureTable(ctx context.Context, t storage.TableSpec, dropFirst bool) error {
	if dropFirst {
		if err := r.DropTable(ctx, t.Name); err != nil {
			return err
		}
	}

	ddl, err := buildCreateTableSQL(t)
	if err != nil {
		return &storage.SchemaError{Table: t.Name, Op: "create", Err: err}
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return &storage.SchemaError{Table: t.Name, Op: "create", Err: err}
	}
	return nil
}

func (r *MultiRepo) DropTable(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(table)); err != nil {
		return &storage.SchemaError{Table: table, Op: "drop", Err: err}
	}
	return nil
}

// InsertRows performs chunked multi-row inserts inside one transaction.
func (r *MultiRepo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var affected int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (r *MultiRepo) SelectAllKeyValue(ctx context.Context, table string, keyColumns []string, valueColumn string) (map[string]int64, error) {
	if len(keyColumns) == 0 {
		return nil, fmt.Errorf("sqlite: SelectAllKeyValue %s: no key columns", table)
	}
	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, joinIdentList(keyColumns), sqlIdent(valueColumn), sqlIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	keys := make([]any, len(keyColumns))
	dests := make([]any, len(keyColumns)+1)
	for i := range keys {
		dests[i] = &keys[i]
	}
	var id sql.NullInt64
	dests[len(keyColumns)] = &id

	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		if !id.Valid {
			return nil, fmt.Errorf("sqlite: %s.%s is NULL", table, valueColumn)
		}
		out[storage.JoinKey(keys...)] = id.Int64
	}
	return out, rows.Err()
}

func (r *MultiRepo) ScanRows(ctx context.Context, table string, columns []string, orderBy string, fn func(row []any) error) error {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`, joinIdentList(columns), sqlIdent(table), sqlIdent(orderBy))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(columns))
		dests := make([]any, len(columns))
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

func (r *MultiRepo) CountOrphans(ctx context.Context, child, fkColumn, parent, parentColumn string) (int64, error) {
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL`,
		sqlIdent(child), sqlIdent(parent), sqlIdent(fkColumn), sqlIdent(parentColumn), sqlIdent(parentColumn),
	)
	var n int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}

// buildCreateTableSQL generates a plain CREATE TABLE (no IF NOT EXISTS): an
// existing table is a schema error the caller must see.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		typ, err := columnType(t.PrimaryKey.Type)
		if err != nil {
			return "", fmt.Errorf("%s: primary key %s: %w", t.Name, t.PrimaryKey.Name, err)
		}
		// "INTEGER PRIMARY KEY" aliases the rowid; keys are supplied by the loader.
		parts = append(parts, fmt.Sprintf(`%s %s NOT NULL PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), typ))
	}

	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s: column %s: %w", t.Name, c.Name, err)
		}
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), typ)
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	for _, c := range t.ForeignKeys() {
		fk := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			sqlIdent(c.Name), sqlIdent(c.References.Table), sqlIdent(c.References.Column))
		if c.References.Cascades() {
			fk += " ON DELETE CASCADE"
		}
		parts = append(parts, fk)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", joinIdentList(con.Columns)))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

// columnType maps a portable type to SQLite storage classes. Dates are TEXT so
// strftime/julianday work on them directly.
func columnType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case storage.TypeInteger:
		return "INTEGER", nil
	case storage.TypeReal:
		return "REAL", nil
	case storage.TypeText, storage.TypeDate:
		return "TEXT", nil
	case "":
		return "", fmt.Errorf("type is empty")
	default:
		return "", fmt.Errorf("unsupported type %q", t)
	}
}

// buildInsertSQL builds one multi-row INSERT for a chunk of rows.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}

var _ storage.MultiRepository = (*MultiRepo)(nil)
