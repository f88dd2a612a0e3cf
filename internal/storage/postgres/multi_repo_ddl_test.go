package postgres

import (
	"strings"
	"testing"

	"salesetl/internal/storage"
)

// boolPtr is a tiny helper to avoid repeating &[]bool literals in tests.
func boolPtr(v bool) *bool { return &v }

func productSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       "Product",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "ProductID", Type: storage.TypeInteger},
		Columns: []storage.ColumnSpec{
			{Name: "ProductName", Type: storage.TypeText, Nullable: boolPtr(false)},
			{Name: "ProductUnitPrice", Type: storage.TypeReal},
			{Name: "ProductCategoryID", Type: storage.TypeInteger, Nullable: boolPtr(false),
				References: &storage.ReferenceSpec{Table: "ProductCategory", Column: "ProductCategoryID", OnDelete: "cascade"}},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"ProductName"}}},
		Load:        storage.LoadSpec{Kind: "dimension", NaturalKey: []string{"ProductName"}},
	}
}

func TestBuildCreateSQL_QuotesAndMapsTypes(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateSQL(productSpec())
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE "Product" (`,
		`"ProductID" bigint PRIMARY KEY`,
		`"ProductName" text NOT NULL`,
		`"ProductUnitPrice" double precision,`,
		`"ProductCategoryID" bigint NOT NULL REFERENCES "ProductCategory" ("ProductCategoryID") ON DELETE CASCADE`,
		`UNIQUE ("ProductName")`,
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, "IF NOT EXISTS") {
		t.Fatalf("ddl must fail on an existing table:\n%s", ddl)
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{"empty name", storage.TableSpec{}},
		{"bad type", storage.TableSpec{Name: "x", Columns: []storage.ColumnSpec{{Name: "a", Type: "money"}}}},
		{"bad constraint", storage.TableSpec{
			Name:        "x",
			Columns:     []storage.ColumnSpec{{Name: "a", Type: storage.TypeText}},
			Constraints: []storage.ConstraintSpec{{Kind: "check", Columns: []string{"a"}}},
		}},
		{"no columns", storage.TableSpec{Name: "x"}},
	}
	for _, tc := range tests {
		if _, err := buildCreateSQL(tc.spec); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestBuildInsertSQL_NumbersPlaceholders(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("OrderDetail",
		[]string{"OrderID", "CustomerID"},
		[][]any{{int64(1), int64(7)}, {int64(2), int64(7)}},
	)
	want := `INSERT INTO "OrderDetail" ("OrderID", "CustomerID") VALUES ($1, $2), ($3, $4)`
	if q != want {
		t.Fatalf("q=%q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildDropAndOrphanSQL(t *testing.T) {
	t.Parallel()

	if got := buildDropSQL("Region"); got != `DROP TABLE IF EXISTS "Region" CASCADE` {
		t.Fatalf("drop=%q", got)
	}
	got := buildOrphanSQL("Country", "RegionID", "Region", "RegionID")
	if !strings.Contains(got, `LEFT JOIN "Region" p ON c."RegionID" = p."RegionID"`) {
		t.Fatalf("orphan sql=%q", got)
	}
}
