// TableSpec and friends live here so both multitable and the backend packages
// can import them without circular deps.
package storage

import "strings"

// TableSpec describes one table of the normalized schema.
type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
	Load        LoadSpec         `json:"load"`
}

// Portable column types. Each backend maps them to its own dialect.
const (
	TypeInteger = "integer"
	TypeReal    = "real"
	TypeText    = "text"
	TypeDate    = "date"
)

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // one of the Type* constants
}

type ColumnSpec struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	References *ReferenceSpec `json:"references,omitempty"`
	Nullable   *bool          `json:"nullable,omitempty"`
}

// ReferenceSpec is a single-column foreign key.
type ReferenceSpec struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"on_delete,omitempty"` // "cascade" | ""
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

type LoadSpec struct {
	Kind string `json:"kind"` // "dimension" | "fact"

	// NaturalKey lists the columns whose values, joined with a single space,
	// form the lookup key of a dimension row. Empty for facts.
	NaturalKey []string `json:"natural_key,omitempty"`
}

// ColumnNames returns the primary key column (if any) followed by all
// configured columns, in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		out = append(out, t.PrimaryKey.Name)
	}
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// ForeignKeys returns the columns of t that reference another table.
func (t TableSpec) ForeignKeys() []ColumnSpec {
	var out []ColumnSpec
	for _, c := range t.Columns {
		if c.References != nil {
			out = append(out, c)
		}
	}
	return out
}

// IsNullable reports whether the column accepts NULL. Columns default to nullable.
func (c ColumnSpec) IsNullable() bool {
	if c.Nullable == nil {
		return true
	}
	return *c.Nullable
}

// Cascades reports whether the reference deletes child rows with the parent.
func (r ReferenceSpec) Cascades() bool {
	return strings.EqualFold(strings.TrimSpace(r.OnDelete), "cascade")
}
