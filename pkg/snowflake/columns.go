package snowflake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// SHOW COLUMNS result ordinals
const (
	showColumnsNameIndex = 2
	showColumnsTypeIndex = 3
)

// Column describes one column of a warehouse table
type Column struct {
	Name       string
	Properties ColumnProperties
}

// ColumnProperties is the decoded data_type blob of SHOW COLUMNS
type ColumnProperties struct {
	Type      string
	Nullable  bool
	Precision *int64
	Scale     *int64
	Length    *int64
	Default   *Literal
}

// Literal is a column default value
type Literal struct {
	raw json.RawMessage
}

// StringLiteral returns a literal holding the string s
func StringLiteral(s string) *Literal {
	raw, _ := json.Marshal(s)
	return &Literal{raw: raw}
}

// NumberLiteral returns a literal holding the number n given as text
func NumberLiteral(n string) *Literal {
	return &Literal{raw: json.RawMessage(n)}
}

// SQL renders the literal as it appears after DEFAULT
func (l *Literal) SQL() string {
	switch {
	case len(l.raw) == 0, bytes.Equal(l.raw, []byte("null")):
		return "NULL"
	case l.raw[0] == '"':
		var s string
		if err := json.Unmarshal(l.raw, &s); err == nil {
			return QuoteLiteral(s)
		}
	case bytes.Equal(l.raw, []byte("true")):
		return "TRUE"
	case bytes.Equal(l.raw, []byte("false")):
		return "FALSE"
	}
	return string(l.raw)
}

type rawProperties struct {
	Type      *string         `json:"type"`
	Nullable  *bool           `json:"nullable"`
	Precision *int64          `json:"precision"`
	Scale     *int64          `json:"scale"`
	Length    *int64          `json:"length"`
	Default   json.RawMessage `json:"default"`
}

// ParseColumnProperties decodes the JSON properties of one column. The type
// is required; nullability defaults to true.
func ParseColumnProperties(blob string) (ColumnProperties, error) {
	var raw rawProperties
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return ColumnProperties{}, fmt.Errorf("malformed column properties %q: %v", blob, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return ColumnProperties{}, fmt.Errorf("column properties %q have no type", blob)
	}

	props := ColumnProperties{
		Type:      *raw.Type,
		Nullable:  true,
		Precision: raw.Precision,
		Scale:     raw.Scale,
		Length:    raw.Length,
	}
	if raw.Nullable != nil {
		props.Nullable = *raw.Nullable
	}

	if len(raw.Default) > 0 && !bytes.Equal(raw.Default, []byte("null")) {
		switch raw.Default[0] {
		case '"', 't', 'f':
		default:
			if _, err := strconv.ParseFloat(string(raw.Default), 64); err != nil {
				return ColumnProperties{}, fmt.Errorf("unsupported default %s in column properties", raw.Default)
			}
		}
		props.Default = &Literal{raw: append(json.RawMessage(nil), raw.Default...)}
	}

	return props, nil
}

// columnsFromShow reads column descriptors out of a SHOW COLUMNS result
func columnsFromShow(result *dataset.Frame) ([]Column, error) {
	if result.Width() <= showColumnsTypeIndex {
		return nil, newError(KindValidation, nil, "SHOW COLUMNS returned %d columns, expected at least %d", result.Width(), showColumnsTypeIndex+1)
	}

	names := result.Column(showColumnsNameIndex).Values
	blobs := result.Column(showColumnsTypeIndex).Values

	columns := make([]Column, 0, result.Len())
	for i := range names {
		name, ok := names[i].(string)
		if !ok || name == "" {
			return nil, newError(KindValidation, nil, "SHOW COLUMNS row %d has no column name", i)
		}
		blob, ok := blobs[i].(string)
		if !ok {
			return nil, newError(KindValidation, nil, "column %s has no properties", name)
		}
		props, err := ParseColumnProperties(blob)
		if err != nil {
			return nil, newError(KindValidation, err, "invalid properties for column %s", name)
		}
		columns = append(columns, Column{Name: name, Properties: props})
	}
	return columns, nil
}

// NewColumns returns the columns of incoming whose names do not appear in
// existing, in incoming order. Names are compared exactly.
func NewColumns(existing, incoming []Column) []Column {
	known := make(map[string]struct{}, len(existing))
	for _, col := range existing {
		known[col.Name] = struct{}{}
	}

	var added []Column
	for _, col := range incoming {
		if _, ok := known[col.Name]; !ok {
			added = append(added, col)
		}
	}
	return added
}
