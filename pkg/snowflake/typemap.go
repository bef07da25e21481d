package snowflake

import (
	"strconv"
	"strings"
)

// typeAliases maps the type names reported by SHOW COLUMNS to the names
// accepted in column definitions.
var typeAliases = map[string]string{
	"FIXED":         "NUMBER",
	"REAL":          "FLOAT",
	"TEXT":          "STRING",
	"CHARACTER":     "CHAR",
	"VARCHAR":       "VARCHAR",
	"BOOLEAN":       "BOOL",
	"TIMESTAMP_NTZ": "TIMESTAMP_NTZ",
	"TIMESTAMP_LTZ": "TIMESTAMP_LTZ",
	"TIMESTAMP_TZ":  "TIMESTAMP_TZ",
	"DATE":          "DATE",
	"TIME":          "TIME",
	"BINARY":        "BINARY",
	"VARIANT":       "VARIANT",
	"OBJECT":        "OBJECT",
	"ARRAY":         "ARRAY",
	"GEOGRAPHY":     "GEOGRAPHY",
}

// MapType translates an introspection type alias to a DDL type name.
// Unknown aliases are returned unchanged.
func MapType(alias string) string {
	if t, ok := typeAliases[alias]; ok {
		return t
	}
	return alias
}

// Definition renders the column definition used in ALTER TABLE ADD COLUMN:
// type with parameters, nullability and default.
func Definition(p ColumnProperties) string {
	var b strings.Builder

	typ := MapType(p.Type)
	b.WriteString(typ)

	switch typ {
	case "NUMBER":
		if p.Precision != nil && p.Scale != nil {
			b.WriteString("(" + strconv.FormatInt(*p.Precision, 10) + ", " + strconv.FormatInt(*p.Scale, 10) + ")")
		} else if p.Precision != nil {
			b.WriteString("(" + strconv.FormatInt(*p.Precision, 10) + ")")
		}
	case "CHAR", "VARCHAR":
		if p.Length != nil {
			b.WriteString("(" + strconv.FormatInt(*p.Length, 10) + ")")
		}
	}

	if p.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}

	b.WriteString(" DEFAULT ")
	if p.Default == nil {
		b.WriteString("NULL")
	} else {
		b.WriteString(p.Default.SQL())
	}

	return b.String()
}
