package reports

import (
	"bytes"
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"salesetl/internal/datagen"
	"salesetl/internal/multitable"
	"salesetl/internal/parser/tsv"
	"salesetl/internal/storage"
	"salesetl/internal/storage/sqlite"
)

// loadFixture generates a source, loads it into a fresh SQLite file and
// returns the open database and the source path.
func loadFixture(t *testing.T, lines ...string) (*sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "data.tsv")

	var buf bytes.Buffer
	if len(lines) == 0 {
		opts := datagen.DefaultOptions()
		opts.Customers = 80
		opts.Seed = 42
		if _, err := datagen.Write(&buf, opts); err != nil {
			t.Fatalf("datagen: %v", err)
		}
	} else {
		buf.WriteString(datagen.Header + "\n" + strings.Join(lines, "\n") + "\n")
	}
	if err := os.WriteFile(source, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dsn := filepath.Join(dir, "normalized.db")
	cfg := multitable.Config{
		Source:     source,
		Storage:    storage.MultiConfig{Kind: "sqlite", DSN: dsn},
		DropTables: true,
	}
	if _, err := multitable.NewDefaultRunner(nil).Run(context.Background(), cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	db, err := sqlite.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, source
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	all := All()
	if len(all) != 11 {
		t.Fatalf("reports=%d, want 11", len(all))
	}
	for i, r := range all {
		if want := "ex" + strconv.Itoa(i+1); r.Name != want {
			t.Fatalf("report %d=%s, want %s", i, r.Name, want)
		}
		if got, ok := Lookup(r.Name); !ok || got.SQL != r.SQL {
			t.Fatalf("Lookup(%s) failed", r.Name)
		}
		if strings.Count(r.SQL, "?") != len(r.Params) {
			t.Fatalf("%s: %d placeholders, %d params", r.Name, strings.Count(r.SQL, "?"), len(r.Params))
		}
	}
	if _, ok := Lookup("ex12"); ok {
		t.Fatalf("Lookup(ex12) succeeded")
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	t.Parallel()

	if _, err := Run(context.Background(), nil, "nope"); err == nil {
		t.Fatalf("expected error for unknown report")
	}
	if _, err := Run(context.Background(), nil, "ex1"); err == nil {
		t.Fatalf("expected error for missing customer name")
	}
	if _, err := Run(context.Background(), nil, "ex3", "extra"); err == nil {
		t.Fatalf("expected error for extra argument")
	}
}

func TestEx3_MatchesSourceTotals(t *testing.T) {
	db, source := loadFixture(t)

	want := map[string]float64{}
	err := tsv.Source{Path: source}.Each(context.Background(), func(rec tsv.Record) error {
		prices := strings.Split(rec.Fields[8], ";")
		qtys := strings.Split(rec.Fields[9], ";")
		for i := range prices {
			p, _ := strconv.ParseFloat(prices[i], 64)
			q, _ := strconv.Atoi(qtys[i])
			want[rec.Fields[0]] += p * float64(q)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read source: %v", err)
	}

	res, err := Run(context.Background(), db, "ex3")
	if err != nil {
		t.Fatalf("ex3: %v", err)
	}
	if len(res.Rows) != len(want) {
		t.Fatalf("rows=%d, want %d customers", len(res.Rows), len(want))
	}
	prev := math.Inf(1)
	for _, row := range res.Rows {
		name := row[0].(string)
		total := row[1].(float64)
		exp := math.Round(want[name]*100) / 100
		if math.Abs(total-exp) > 0.011 {
			t.Fatalf("%s total=%v, want %v", name, total, exp)
		}
		if total > prev {
			t.Fatalf("ex3 not sorted descending at %s", name)
		}
		prev = total
	}
}

func TestEx1Ex2_BindCustomerName(t *testing.T) {
	db, _ := loadFixture(t,
		"Jane Doe\t123 St\tParis\tFrance\tEurope\tWidget;Gadget\tToys;Toys\tFun;Fun\t9.99;19.99\t2;1\t20230101;20230102",
		"John Roe\t9 Rd\tLyon\tFrance\tEurope\tWidget\tToys\tFun\t9.99\t1\t20230301",
	)
	ctx := context.Background()

	ex1, err := Run(ctx, db, "ex1", "Jane Doe")
	if err != nil {
		t.Fatalf("ex1: %v", err)
	}
	if len(ex1.Rows) != 2 {
		t.Fatalf("ex1 rows=%v", ex1.Rows)
	}
	if ex1.Rows[0][1] != "Widget" || ex1.Rows[0][2] != "2023-01-01" || ex1.Rows[0][5] != 19.98 {
		t.Fatalf("ex1 first row=%v", ex1.Rows[0])
	}

	ex2, err := Run(ctx, db, "ex2", "Jane Doe")
	if err != nil {
		t.Fatalf("ex2: %v", err)
	}
	if len(ex2.Rows) != 1 || ex2.Rows[0][1] != 39.97 {
		t.Fatalf("ex2=%v, want Jane Doe 39.97", ex2.Rows)
	}

	injected, err := Run(ctx, db, "ex1", "x' OR '1'='1")
	if err != nil {
		t.Fatalf("ex1 injected: %v", err)
	}
	if len(injected.Rows) != 0 {
		t.Fatalf("name was interpolated into SQL: %v", injected.Rows)
	}
}

func TestEx11_GapsArePerCustomer(t *testing.T) {
	db, _ := loadFixture(t,
		"Jane Doe\t123 St\tParis\tFrance\tEurope\tWidget;Gadget\tToys;Toys\tFun;Fun\t9.99;19.99\t2;1\t20230101;20230111",
		"John Roe\t9 Rd\tTokyo\tJapan\tAsia\tWidget;Widget\tToys;Toys\tFun;Fun\t9.99;9.99\t1;1\t20240101;20240103",
	)

	res, err := Run(context.Background(), db, "ex11")
	if err != nil {
		t.Fatalf("ex11: %v", err)
	}
	got := map[string]any{}
	for _, row := range res.Rows {
		got[row[1].(string)] = row[4]
	}
	if got["Jane"] != 10.0 || got["John"] != 2.0 {
		t.Fatalf("gaps=%v, want Jane=10 John=2", got)
	}
	if res.Rows[0][1] != "Jane" {
		t.Fatalf("ex11 not ordered by gap: %v", res.Rows)
	}
	if len(res.Columns) != 7 || res.Columns[5] != "OrderDate" || res.Columns[6] != "PreviousOrderDate" {
		t.Fatalf("ex11 columns=%v", res.Columns)
	}
	if res.Rows[0][5] != "2023-01-11" || res.Rows[0][6] != "2023-01-01" {
		t.Fatalf("ex11 Jane dates=%v, want the pair bounding the gap", res.Rows[0])
	}
}

func TestEx11_DatesBoundTheLongestGap(t *testing.T) {
	db, _ := loadFixture(t,
		"Jane Doe\t123 St\tParis\tFrance\tEurope\tWidget;Gadget;Widget\tToys;Toys;Toys\tFun;Fun;Fun\t9.99;19.99;9.99\t1;1;1\t20230101;20230103;20230120",
	)

	res, err := Run(context.Background(), db, "ex11")
	if err != nil {
		t.Fatalf("ex11: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("ex11 rows=%v", res.Rows)
	}
	row := res.Rows[0]
	if row[4] != 17.0 || row[5] != "2023-01-20" || row[6] != "2023-01-03" {
		t.Fatalf("ex11 row=%v, want gap 17 from 2023-01-03 to 2023-01-20", row)
	}
}

func TestEx2_UnknownCustomerHasNoRows(t *testing.T) {
	db, _ := loadFixture(t)

	res, err := Run(context.Background(), db, "ex2", "Nobody Here")
	if err != nil {
		t.Fatalf("ex2: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("ex2 rows=%v, want none for an unknown customer", res.Rows)
	}
}

func TestAllReportsRun(t *testing.T) {
	db, _ := loadFixture(t)
	ctx := context.Background()

	for _, r := range All() {
		args := make([]any, len(r.Params))
		for i := range args {
			args[i] = "Nobody Here"
		}
		res, err := Run(ctx, db, r.Name, args...)
		if err != nil {
			t.Fatalf("%s: %v", r.Name, err)
		}
		if len(res.Columns) == 0 {
			t.Fatalf("%s: no columns", r.Name)
		}
		if len(r.Params) == 0 && len(res.Rows) == 0 {
			t.Fatalf("%s: no rows", r.Name)
		}
	}

	ex7, _ := Run(ctx, db, "ex7")
	for _, row := range ex7.Rows {
		if row[3] != int64(1) {
			t.Fatalf("ex7 row ranked %v, want 1", row[3])
		}
	}

	ex9, _ := Run(ctx, db, "ex9")
	for _, row := range ex9.Rows {
		if rank := row[4].(int64); rank > 5 {
			t.Fatalf("ex9 rank %d > 5", rank)
		}
	}

	ex10, _ := Run(ctx, db, "ex10")
	if len(ex10.Rows) > 12 {
		t.Fatalf("ex10 rows=%d, want <= 12", len(ex10.Rows))
	}
	for _, row := range ex10.Rows {
		if _, ok := row[0].(string); !ok {
			t.Fatalf("ex10 month=%v", row[0])
		}
	}
}

func TestWriteTSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteTSV(&buf, Result{
		Columns: []string{"Region", "Total", "Rank"},
		Rows:    [][]any{{"Asia", 1234567.5, int64(1)}, {"Europe", nil, int64(2)}},
	})
	if err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}
	want := "Region\tTotal\tRank\nAsia\t1234567.5\t1\nEurope\t\t2\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
