package domain

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Catalog column types inferred from record values.
const (
	ColumnString  = "string"
	ColumnDouble  = "double"
	ColumnBoolean = "boolean"
	ColumnArray   = "array"
	ColumnStruct  = "struct"
)

// CatalogColumn is one column of a catalog table.
type CatalogColumn struct {
	Name string
	Type string
}

// CatalogTable describes a dataset found under the catalog target.
type CatalogTable struct {
	// Name is the table prefix followed by the dataset name.
	Name string

	// Location is the most recent object the columns were inferred from.
	Location string

	// Objects is how many objects under the target belong to the table.
	Objects int

	Columns   []CatalogColumn
	UpdatedAt time.Time
}

// ChangeKind says whether a column appeared or disappeared.
type ChangeKind string

// Schema change kinds.
const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
)

// SchemaChange is a column difference found when a table was refreshed.
type SchemaChange struct {
	Table      string     `json:"table"`
	Column     string     `json:"column"`
	Kind       ChangeKind `json:"kind"`
	Type       string     `json:"type"`
	DetectedAt time.Time  `json:"detected_at"`
}

// CatalogTableName derives the table an object belongs to from its base name.
// Characters outside [a-z0-9_] become underscores.
func CatalogTableName(tablePrefix, key string) string {
	base := path.Base(key)
	base = strings.TrimSuffix(base, path.Ext(base))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return tablePrefix + b.String()
}

// InferColumns returns the sorted union of fields across records with their
// JSON types. A field seen with more than one type, or only as null, is a string.
func InferColumns(records []Record) []CatalogColumn {
	types := make(map[string]string)
	for _, rec := range records {
		for name, v := range rec {
			t := valueType(v)
			prev, seen := types[name]
			switch {
			case !seen || prev == "":
				types[name] = t
			case t != "" && t != prev:
				types[name] = ColumnString
			}
		}
	}

	cols := make([]CatalogColumn, 0, len(types))
	for name, t := range types {
		if t == "" {
			t = ColumnString
		}
		cols = append(cols, CatalogColumn{Name: name, Type: t})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols
}

// DiffColumns compares a table's previous and current columns.
// A column whose type changed is reported as removed and added.
func DiffColumns(table string, before, after []CatalogColumn, at time.Time) []SchemaChange {
	old := make(map[string]string, len(before))
	for _, c := range before {
		old[c.Name] = c.Type
	}
	cur := make(map[string]string, len(after))
	for _, c := range after {
		cur[c.Name] = c.Type
	}

	var changes []SchemaChange
	for _, c := range before {
		if t, ok := cur[c.Name]; !ok || t != c.Type {
			changes = append(changes, SchemaChange{Table: table, Column: c.Name, Kind: ChangeRemoved, Type: c.Type, DetectedAt: at})
		}
	}
	for _, c := range after {
		if t, ok := old[c.Name]; !ok || t != c.Type {
			changes = append(changes, SchemaChange{Table: table, Column: c.Name, Kind: ChangeAdded, Type: c.Type, DetectedAt: at})
		}
	}
	return changes
}

func valueType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return ColumnString
	case float64, int, int64:
		return ColumnDouble
	case bool:
		return ColumnBoolean
	case []any:
		return ColumnArray
	case map[string]any, Record:
		return ColumnStruct
	default:
		return ColumnString
	}
}
