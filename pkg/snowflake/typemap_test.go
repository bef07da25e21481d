package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

func int64p(n int64) *int64 { return &n }

func TestMapType(t *testing.T) {
	tests := map[string]string{
		"FIXED":         "NUMBER",
		"REAL":          "FLOAT",
		"TEXT":          "STRING",
		"CHARACTER":     "CHAR",
		"BOOLEAN":       "BOOL",
		"TIMESTAMP_LTZ": "TIMESTAMP_LTZ",
		"VARIANT":       "VARIANT",
		"VECTOR":        "VECTOR",
	}
	for alias, want := range tests {
		assert.Equal(t, want, MapType(alias), alias)
	}
}

func TestDefinition(t *testing.T) {
	tests := []struct {
		name  string
		props ColumnProperties
		want  string
	}{
		{
			name:  "number with precision and scale",
			props: ColumnProperties{Type: "FIXED", Precision: int64p(10), Scale: int64p(2), Nullable: false},
			want:  "NUMBER(10, 2) NOT NULL DEFAULT NULL",
		},
		{
			name:  "number with precision only",
			props: ColumnProperties{Type: "FIXED", Precision: int64p(38), Nullable: true},
			want:  "NUMBER(38) NULL DEFAULT NULL",
		},
		{
			name:  "bare number",
			props: ColumnProperties{Type: "FIXED", Nullable: true},
			want:  "NUMBER NULL DEFAULT NULL",
		},
		{
			name:  "varchar with length",
			props: ColumnProperties{Type: "VARCHAR", Length: int64p(255), Nullable: true},
			want:  "VARCHAR(255) NULL DEFAULT NULL",
		},
		{
			name:  "char without length",
			props: ColumnProperties{Type: "CHARACTER", Nullable: true},
			want:  "CHAR NULL DEFAULT NULL",
		},
		{
			name:  "text keeps no length",
			props: ColumnProperties{Type: "TEXT", Length: int64p(16777216), Nullable: true},
			want:  "STRING NULL DEFAULT NULL",
		},
		{
			name:  "string default is quoted",
			props: ColumnProperties{Type: "TEXT", Nullable: true, Default: StringLiteral("it's")},
			want:  "STRING NULL DEFAULT 'it''s'",
		},
		{
			name:  "numeric default is verbatim",
			props: ColumnProperties{Type: "FIXED", Precision: int64p(5), Scale: int64p(0), Default: NumberLiteral("42")},
			want:  "NUMBER(5, 0) NOT NULL DEFAULT 42",
		},
		{
			name:  "unknown type passes through",
			props: ColumnProperties{Type: "GEOMETRY", Nullable: true},
			want:  "GEOMETRY NULL DEFAULT NULL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Definition(tt.props))
		})
	}
}

func TestParseColumnProperties(t *testing.T) {
	props, err := ParseColumnProperties(`{"type":"FIXED","precision":10,"scale":2,"nullable":false}`)
	require.NoError(t, err)
	assert.Equal(t, "FIXED", props.Type)
	assert.False(t, props.Nullable)
	assert.Equal(t, int64(10), *props.Precision)
	assert.Equal(t, int64(2), *props.Scale)
	assert.Nil(t, props.Default)

	props, err = ParseColumnProperties(`{"type":"TEXT","length":16}`)
	require.NoError(t, err)
	assert.True(t, props.Nullable, "nullable defaults to true")

	props, err = ParseColumnProperties(`{"type":"BOOLEAN","default":true}`)
	require.NoError(t, err)
	assert.Equal(t, "BOOL NULL DEFAULT TRUE", Definition(props))

	props, err = ParseColumnProperties(`{"type":"TEXT","default":null}`)
	require.NoError(t, err)
	assert.Nil(t, props.Default)

	for _, blob := range []string{
		`not json`,
		`{"nullable":true}`,
		`{"type":""}`,
		`{"type":"TEXT","default":{"a":1}}`,
		`{"type":"TEXT","default":[1]}`,
	} {
		_, err := ParseColumnProperties(blob)
		assert.Error(t, err, blob)
	}
}

func showColumnsFrame(t *testing.T, names, blobs []any) *dataset.Frame {
	t.Helper()
	n := len(names)
	fill := func(v string) []any {
		out := make([]any, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	f, err := dataset.New(
		dataset.Column{Name: "table_name", Values: fill("T")},
		dataset.Column{Name: "schema_name", Values: fill("S")},
		dataset.Column{Name: "column_name", Values: names},
		dataset.Column{Name: "data_type", Values: blobs},
		dataset.Column{Name: "kind", Values: fill("COLUMN")},
	)
	require.NoError(t, err)
	return f
}

func TestColumnsFromShow(t *testing.T) {
	f := showColumnsFrame(t,
		[]any{"ID", "note"},
		[]any{`{"type":"FIXED","precision":38,"scale":0,"nullable":false}`, `{"type":"TEXT","length":100}`},
	)

	cols, err := columnsFromShow(f)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "ID", cols[0].Name)
	assert.Equal(t, "NUMBER(38, 0) NOT NULL DEFAULT NULL", Definition(cols[0].Properties))
	assert.Equal(t, "note", cols[1].Name)

	narrow := dataset.MustNew(
		dataset.Column{Name: "a", Values: []any{"x"}},
		dataset.Column{Name: "b", Values: []any{"y"}},
	)
	_, err = columnsFromShow(narrow)
	assert.ErrorIs(t, err, ErrValidation)

	bad := showColumnsFrame(t, []any{"ID"}, []any{`{"nullable":true}`})
	_, err = columnsFromShow(bad)
	assert.ErrorIs(t, err, ErrValidation)

	missing := showColumnsFrame(t, []any{"ID"}, []any{nil})
	_, err = columnsFromShow(missing)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewColumns(t *testing.T) {
	col := func(name string) Column { return Column{Name: name} }

	existing := []Column{col("COL1"), col("COL2")}
	incoming := []Column{col("COL1"), col("COL2"), col("COL3"), col("col1"), col("COL0")}

	added := NewColumns(existing, incoming)
	var names []string
	for _, c := range added {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"COL3", "col1", "COL0"}, names, "exact names, staged order")

	assert.Empty(t, NewColumns(incoming, existing))
	assert.Len(t, NewColumns(nil, incoming), len(incoming))
}

func TestIdentifiers(t *testing.T) {
	plain := identifiers{}
	assert.Equal(t, "orders", plain.name("orders"))
	assert.Equal(t, `"order items"`, plain.name("order items"))
	assert.Equal(t, `"a""b"`, plain.name(`a"b`))
	assert.Equal(t, "db.s.t", plain.table("db", "s", "t"))
	assert.Equal(t, "ORDERS", plain.resolved("orders"))
	assert.Equal(t, "order items", plain.resolved("order items"))

	quoted := identifiers{quoteAll: true}
	assert.Equal(t, `"orders"`, quoted.name("orders"))
	assert.Equal(t, "orders", quoted.resolved("orders"))

	assert.Equal(t, "COL_1", plain.stored("COL_1"))
	assert.Equal(t, `"col1"`, plain.stored("col1"))

	assert.Equal(t, "'it''s'", QuoteLiteral("it's"))
}
