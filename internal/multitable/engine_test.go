package multitable

import (
	"context"
	"errors"
	"strings"
	"testing"

	"salesetl/internal/parser/tsv"
	"salesetl/internal/storage"
)

// recordingRepo captures inserts; every other call is a no-op.
type recordingRepo struct {
	table   string
	columns []string
	rows    [][]any
}

func (r *recordingRepo) Close() {}
func (r *recordingRepo) EnsureTable(context.Context, storage.TableSpec, bool) error {
	return nil
}
func (r *recordingRepo) DropTable(context.Context, string) error { return nil }
func (r *recordingRepo) InsertRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	r.table, r.columns, r.rows = table, columns, rows
	return int64(len(rows)), nil
}
func (r *recordingRepo) SelectAllKeyValue(context.Context, string, []string, string) (map[string]int64, error) {
	return nil, nil
}
func (r *recordingRepo) ScanRows(context.Context, string, []string, string, func([]any) error) error {
	return nil
}
func (r *recordingRepo) CountOrphans(context.Context, string, string, string, string) (int64, error) {
	return 0, nil
}

func (r *recordingRepo) keys() []string {
	out := make([]string, len(r.rows))
	for i, row := range r.rows {
		out[i] = storage.JoinKey(row...)
	}
	return out
}

// record builds a full 11-field record from name/country/region plus the
// semicolon lists.
func record(line int, name, country, region, products, categories, descs, prices, qtys, dates string) tsv.Record {
	return tsv.Record{Line: line, Fields: []string{
		name, "1 Main St", "Town", country, region, products, categories, descs, prices, qtys, dates,
	}}
}

func TestCompareTuples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Tuple
		want int
	}{
		{Tuple{"Asia"}, Tuple{"Europe"}, -1},
		{Tuple{"Europe"}, Tuple{"Asia"}, 1},
		{Tuple{"a", int64(2)}, Tuple{"a", int64(10)}, -1},
		{Tuple{"x", 9.99}, Tuple{"x", 19.99}, -1},
		{Tuple{"x", int64(2)}, Tuple{"x", 1.5}, 1},
		{Tuple{"B"}, Tuple{"a"}, -1}, // bytewise
		{Tuple{"a"}, Tuple{"a", int64(1)}, -1},
		{Tuple{"a", int64(1)}, Tuple{"a", int64(1)}, 0},
		{Tuple{int64(5)}, Tuple{"5"}, -1},
	}
	for _, tc := range tests {
		if got := CompareTuples(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareTuples(%v, %v)=%d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, first, last string }{
		{"Jane Doe", "Jane", "Doe"},
		{"Mary Ann Smith", "Mary", "Ann Smith"},
		{"Cher", "Cher", ""},
	}
	for _, tc := range tests {
		first, last := SplitName(tc.in)
		if first != tc.first || last != tc.last {
			t.Fatalf("SplitName(%q)=(%q, %q), want (%q, %q)", tc.in, first, last, tc.first, tc.last)
		}
		if got := CustomerKey(first, last); got != tc.in && tc.last != "" {
			t.Fatalf("CustomerKey=%q, want %q", got, tc.in)
		}
	}
}

func TestLoadDimension_SortsAndAssignsKeys(t *testing.T) {
	t.Parallel()

	src := tsv.Slice{
		record(2, "A B", "France", "Europe", "p", "c", "d", "1", "1", "20230101"),
		record(3, "C D", "Japan", "Asia", "p", "c", "d", "1", "1", "20230101"),
		record(4, "E F", "Spain", "Europe", "p", "c", "d", "1", "1", "20230101"),
	}
	repo := &recordingRepo{}

	n, err := LoadDimension(context.Background(), repo, RegionSpec, src, RegionTuples)
	if err != nil {
		t.Fatalf("LoadDimension: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d, want 2", n)
	}
	if got := strings.Join(repo.keys(), "|"); got != "1 Asia|2 Europe" {
		t.Fatalf("rows=%s, want 1 Asia|2 Europe", got)
	}
	if strings.Join(repo.columns, ",") != "RegionID,Region" {
		t.Fatalf("columns=%v", repo.columns)
	}
}

func TestLoadDimension_LineOrderDoesNotMatter(t *testing.T) {
	t.Parallel()

	a := tsv.Slice{
		record(2, "A B", "X", "R", "Widget;Gadget", "Toys;Toys", "Fun;Fun", "9.99;19.99", "1;1", "20230101;20230101"),
		record(3, "C D", "X", "R", "Bolt", "Tools", "Hard", "0.5", "1", "20230101"),
	}
	b := tsv.Slice{a[1], a[0]}
	categories := NewMapping(ProductCategoryTable, map[string]int64{"Tools": 1, "Toys": 2})

	ra, rb := &recordingRepo{}, &recordingRepo{}
	if _, err := LoadDimension(context.Background(), ra, ProductSpec, a, ProductTuples(categories)); err != nil {
		t.Fatalf("LoadDimension a: %v", err)
	}
	if _, err := LoadDimension(context.Background(), rb, ProductSpec, b, ProductTuples(categories)); err != nil {
		t.Fatalf("LoadDimension b: %v", err)
	}
	want := "1 Bolt 0.5 1|2 Gadget 19.99 2|3 Widget 9.99 2"
	if got := strings.Join(ra.keys(), "|"); got != want {
		t.Fatalf("a=%s, want %s", got, want)
	}
	if got := strings.Join(rb.keys(), "|"); got != want {
		t.Fatalf("b=%s, want %s", got, want)
	}
}

func TestLoadDimension_ParentLookupMiss(t *testing.T) {
	t.Parallel()

	src := tsv.Slice{record(7, "A B", "Atlantis", "Nowhere", "p", "c", "d", "1", "1", "20230101")}
	regions := NewMapping(RegionTable, map[string]int64{"Europe": 1})
	repo := &recordingRepo{}

	_, err := LoadDimension(context.Background(), repo, CountrySpec, src, CountryTuples(regions))
	if !errors.Is(err, ErrLookupMiss) {
		t.Fatalf("err=%v, want ErrLookupMiss", err)
	}
	var miss *LookupMissError
	if !errors.As(err, &miss) || miss.Table != RegionTable || miss.Key != "Nowhere" || miss.Line != 7 {
		t.Fatalf("miss=%+v", miss)
	}
	if repo.rows != nil {
		t.Fatalf("rows inserted after lookup miss: %v", repo.rows)
	}
}

func TestLoadDimension_NaturalKeyConflict(t *testing.T) {
	t.Parallel()

	src := tsv.Slice{
		record(2, "A B", "France", "Europe", "p", "c", "d", "1", "1", "20230101"),
		record(3, "C D", "France", "Asia", "p", "c", "d", "1", "1", "20230101"),
	}
	regions := NewMapping(RegionTable, map[string]int64{"Asia": 1, "Europe": 2})

	_, err := LoadDimension(context.Background(), &recordingRepo{}, CountrySpec, src, CountryTuples(regions))
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("err=%v, want ErrKeyConflict", err)
	}
}

func TestLoadDimension_MisalignedLists(t *testing.T) {
	t.Parallel()

	categories := NewMapping(ProductCategoryTable, map[string]int64{"Toys": 1})
	src := tsv.Slice{record(4, "A B", "X", "R", "Widget;Gadget", "Toys;Toys", "Fun;Fun", "9.99", "1;1", "20230101;20230101")}

	_, err := LoadDimension(context.Background(), &recordingRepo{}, ProductSpec, src, ProductTuples(categories))
	var bad *tsv.MalformedRecordError
	if !errors.As(err, &bad) || bad.Line != 4 {
		t.Fatalf("err=%v, want *tsv.MalformedRecordError on line 4", err)
	}
}

func TestLoadDimension_ShortRecordIsMalformed(t *testing.T) {
	t.Parallel()

	src := tsv.Slice{{Line: 2, Fields: []string{"Jane Doe", "123 St"}}}
	_, err := LoadDimension(context.Background(), &recordingRepo{}, RegionSpec, src, RegionTuples)
	if !errors.Is(err, tsv.ErrMalformedRecord) {
		t.Fatalf("err=%v, want ErrMalformedRecord", err)
	}
}

func TestLoadDimension_BadPrice(t *testing.T) {
	t.Parallel()

	categories := NewMapping(ProductCategoryTable, map[string]int64{"Toys": 1})
	src := tsv.Slice{record(2, "A B", "X", "R", "Widget", "Toys", "Fun", "cheap", "1", "20230101")}

	_, err := LoadDimension(context.Background(), &recordingRepo{}, ProductSpec, src, ProductTuples(categories))
	if !errors.Is(err, tsv.ErrMalformedRecord) {
		t.Fatalf("err=%v, want ErrMalformedRecord", err)
	}
}

func TestLoadFacts(t *testing.T) {
	t.Parallel()

	customers := NewMapping(CustomerTable, map[string]int64{"Jane Doe": 1, "Cher ": 2})
	products := NewMapping(ProductTable, map[string]int64{"Gadget": 1, "Widget": 2})

	tests := []struct {
		name    string
		src     tsv.Slice
		want    string
		wantErr error
	}{
		{
			name: "one row per product",
			src: tsv.Slice{
				record(2, "Jane Doe", "France", "Europe", "Widget;Gadget", "Toys;Toys", "Fun;Fun", "9.99;19.99", "2;1", "20230101;20230102"),
				record(3, "Cher", "France", "Europe", "Gadget", "Toys", "Fun", "19.99", "5", "20231231"),
			},
			want: "1 1 2 2023-01-01 2|2 1 1 2023-01-02 1|3 2 1 2023-12-31 5",
		},
		{
			name:    "misaligned dates",
			src:     tsv.Slice{record(2, "Jane Doe", "F", "E", "Widget;Gadget", "T;T", "F;F", "1;1", "2;1", "20230101")},
			wantErr: tsv.ErrMalformedRecord,
		},
		{
			name:    "bad quantity",
			src:     tsv.Slice{record(2, "Jane Doe", "F", "E", "Widget", "T", "F", "1", "two", "20230101")},
			wantErr: tsv.ErrMalformedRecord,
		},
		{
			name:    "bad date",
			src:     tsv.Slice{record(2, "Jane Doe", "F", "E", "Widget", "T", "F", "1", "2", "2023-01-01")},
			wantErr: ErrInvalidDate,
		},
		{
			name:    "unknown product",
			src:     tsv.Slice{record(2, "Jane Doe", "F", "E", "Sprocket", "T", "F", "1", "2", "20230101")},
			wantErr: ErrLookupMiss,
		},
		{
			name:    "unknown customer",
			src:     tsv.Slice{record(2, "John Roe", "F", "E", "Widget", "T", "F", "1", "2", "20230101")},
			wantErr: ErrLookupMiss,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &recordingRepo{}
			n, err := LoadFacts(context.Background(), repo, tc.src, customers, products)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v, want %v", err, tc.wantErr)
				}
				if repo.rows != nil {
					t.Fatalf("rows inserted despite error: %v", repo.rows)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFacts: %v", err)
			}
			if n != int64(len(repo.rows)) {
				t.Fatalf("n=%d, rows=%d", n, len(repo.rows))
			}
			if got := strings.Join(repo.keys(), "|"); got != tc.want {
				t.Fatalf("rows=%s, want %s", got, tc.want)
			}
			if repo.table != OrderDetailTable {
				t.Fatalf("table=%s", repo.table)
			}
		})
	}
}

func TestTablesAreOrderedByReferences(t *testing.T) {
	t.Parallel()

	plan, err := storage.OrderTables(Tables())
	if err != nil {
		t.Fatalf("OrderTables: %v", err)
	}
	pos := map[string]int{}
	for i, tb := range plan {
		pos[tb.Name] = i
	}
	for _, tb := range plan {
		for _, fk := range tb.ForeignKeys() {
			if pos[fk.References.Table] >= pos[tb.Name] {
				t.Fatalf("%s loads before its parent %s", tb.Name, fk.References.Table)
			}
		}
	}
}
