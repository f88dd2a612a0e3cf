package multitable

import (
	"fmt"
	"strconv"
	"strings"

	"salesetl/internal/parser/tsv"
	"salesetl/internal/storage"
)

// Table names of the normalized schema.
const (
	RegionTable          = "Region"
	CountryTable         = "Country"
	CustomerTable        = "Customer"
	ProductCategoryTable = "ProductCategory"
	ProductTable         = "Product"
	OrderDetailTable     = "OrderDetail"
)

// Source field positions (0-indexed) in the export.
const (
	fieldName = iota
	fieldAddress
	fieldCity
	fieldCountry
	fieldRegion
	fieldProducts
	fieldCategories
	fieldCategoryDescriptions
	fieldUnitPrices
	fieldQuantities
	fieldOrderDates
)

func notNull() *bool { v := false; return &v }

func pk(name string) *storage.PrimaryKeySpec {
	return &storage.PrimaryKeySpec{Name: name, Type: storage.TypeInteger}
}

func text(name string) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: storage.TypeText, Nullable: notNull()}
}

func ref(name, table string) storage.ColumnSpec {
	return storage.ColumnSpec{
		Name:       name,
		Type:       storage.TypeInteger,
		Nullable:   notNull(),
		References: &storage.ReferenceSpec{Table: table, Column: name, OnDelete: "cascade"},
	}
}

func unique(cols ...string) []storage.ConstraintSpec {
	return []storage.ConstraintSpec{{Kind: "unique", Columns: cols}}
}

func dimension(natural ...string) storage.LoadSpec {
	return storage.LoadSpec{Kind: "dimension", NaturalKey: natural}
}

var (
	RegionSpec = storage.TableSpec{
		Name:        RegionTable,
		PrimaryKey:  pk("RegionID"),
		Columns:     []storage.ColumnSpec{text("Region")},
		Constraints: unique("Region"),
		Load:        dimension("Region"),
	}

	CountrySpec = storage.TableSpec{
		Name:        CountryTable,
		PrimaryKey:  pk("CountryID"),
		Columns:     []storage.ColumnSpec{text("Country"), ref("RegionID", RegionTable)},
		Constraints: unique("Country"),
		Load:        dimension("Country"),
	}

	CustomerSpec = storage.TableSpec{
		Name:       CustomerTable,
		PrimaryKey: pk("CustomerID"),
		Columns: []storage.ColumnSpec{
			text("FirstName"),
			text("LastName"),
			text("Address"),
			text("City"),
			ref("CountryID", CountryTable),
		},
		Constraints: unique("FirstName", "LastName"),
		Load:        dimension("FirstName", "LastName"),
	}

	ProductCategorySpec = storage.TableSpec{
		Name:        ProductCategoryTable,
		PrimaryKey:  pk("ProductCategoryID"),
		Columns:     []storage.ColumnSpec{text("ProductCategory"), text("ProductCategoryDescription")},
		Constraints: unique("ProductCategory"),
		Load:        dimension("ProductCategory"),
	}

	ProductSpec = storage.TableSpec{
		Name:       ProductTable,
		PrimaryKey: pk("ProductID"),
		Columns: []storage.ColumnSpec{
			text("ProductName"),
			{Name: "ProductUnitPrice", Type: storage.TypeReal, Nullable: notNull()},
			ref("ProductCategoryID", ProductCategoryTable),
		},
		Constraints: unique("ProductName"),
		Load:        dimension("ProductName"),
	}

	OrderDetailSpec = storage.TableSpec{
		Name:       OrderDetailTable,
		PrimaryKey: pk("OrderID"),
		Columns: []storage.ColumnSpec{
			ref("CustomerID", CustomerTable),
			ref("ProductID", ProductTable),
			{Name: "OrderDate", Type: storage.TypeDate, Nullable: notNull()},
			{Name: "QuantityOrdered", Type: storage.TypeInteger, Nullable: notNull()},
		},
		Load: storage.LoadSpec{Kind: "fact"},
	}
)

// Tables returns the six table specs in load order.
func Tables() []storage.TableSpec {
	return []storage.TableSpec{
		RegionSpec,
		CountrySpec,
		CustomerSpec,
		ProductCategorySpec,
		ProductSpec,
		OrderDetailSpec,
	}
}

// Extractor returns the dimension tuples carried by one record, in the order
// of the table's non-key columns. Multi-valued fields yield several tuples.
type Extractor func(rec tsv.Record) ([]Tuple, error)

// SplitName splits a full name on the first space. A single-token name has an
// empty last name; "Mary Ann Smith" becomes ("Mary", "Ann Smith").
func SplitName(full string) (first, last string) {
	first, last, _ = strings.Cut(full, " ")
	return first, last
}

// CustomerKey is the lookup key of a customer: first and last name joined by
// a single space.
func CustomerKey(first, last string) string {
	return storage.JoinKey(first, last)
}

// RegionTuples extracts (Region).
func RegionTuples(rec tsv.Record) ([]Tuple, error) {
	region, err := rec.Field(fieldRegion)
	if err != nil {
		return nil, err
	}
	return []Tuple{{region}}, nil
}

// CountryTuples extracts (Country, RegionID) resolving the region through regions.
func CountryTuples(regions Mapping) Extractor {
	return func(rec tsv.Record) ([]Tuple, error) {
		country, err := rec.Field(fieldCountry)
		if err != nil {
			return nil, err
		}
		region, err := rec.Field(fieldRegion)
		if err != nil {
			return nil, err
		}
		regionID, err := resolveAt(regions, region, rec.Line)
		if err != nil {
			return nil, err
		}
		return []Tuple{{country, regionID}}, nil
	}
}

// CustomerTuples extracts (FirstName, LastName, Address, City, CountryID).
func CustomerTuples(countries Mapping) Extractor {
	return func(rec tsv.Record) ([]Tuple, error) {
		fields, err := fieldsAt(rec, fieldName, fieldAddress, fieldCity, fieldCountry)
		if err != nil {
			return nil, err
		}
		countryID, err := resolveAt(countries, fields[3], rec.Line)
		if err != nil {
			return nil, err
		}
		first, last := SplitName(fields[0])
		return []Tuple{{first, last, fields[1], fields[2], countryID}}, nil
	}
}

// ProductCategoryTuples extracts (ProductCategory, ProductCategoryDescription)
// pairs from the aligned category lists.
func ProductCategoryTuples(rec tsv.Record) ([]Tuple, error) {
	lists, err := alignedLists(rec, fieldCategories, fieldCategoryDescriptions)
	if err != nil {
		return nil, err
	}
	out := make([]Tuple, len(lists[0]))
	for i := range lists[0] {
		out[i] = Tuple{lists[0][i], lists[1][i]}
	}
	return out, nil
}

// ProductTuples extracts (ProductName, ProductUnitPrice, ProductCategoryID)
// from the aligned product, price and category lists.
func ProductTuples(categories Mapping) Extractor {
	return func(rec tsv.Record) ([]Tuple, error) {
		lists, err := alignedLists(rec, fieldProducts, fieldUnitPrices, fieldCategories)
		if err != nil {
			return nil, err
		}
		out := make([]Tuple, len(lists[0]))
		for i, name := range lists[0] {
			price, err := strconv.ParseFloat(lists[1][i], 64)
			if err != nil {
				return nil, &tsv.MalformedRecordError{
					Line:   rec.Line,
					Reason: fmt.Sprintf("unit price %q of product %q is not a number", lists[1][i], name),
				}
			}
			categoryID, err := resolveAt(categories, lists[2][i], rec.Line)
			if err != nil {
				return nil, err
			}
			out[i] = Tuple{name, price, categoryID}
		}
		return out, nil
	}
}

func fieldsAt(rec tsv.Record, idx ...int) ([]string, error) {
	out := make([]string, len(idx))
	for i, n := range idx {
		f, err := rec.Field(n)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// alignedLists splits the given list fields and requires equal lengths.
func alignedLists(rec tsv.Record, idx ...int) ([][]string, error) {
	out := make([][]string, len(idx))
	for i, n := range idx {
		l, err := rec.List(n)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(l) != len(out[0]) {
			return nil, &tsv.MalformedRecordError{
				Line: rec.Line,
				Reason: fmt.Sprintf("list field %d has %d items, field %d has %d",
					n, len(l), idx[0], len(out[0])),
			}
		}
		out[i] = l
	}
	return out, nil
}

func resolveAt(m Mapping, key string, line int) (int64, error) {
	id, err := m.Resolve(key)
	if err != nil {
		if miss, ok := err.(*LookupMissError); ok {
			miss.Line = line
		}
		return 0, err
	}
	return id, nil
}
