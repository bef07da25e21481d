package dataset

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// FromRows drains a result set into a frame. The column kind comes from the
// driver's database type name when it is known, otherwise from the first
// non-NULL value. Rows are closed on return.
func FromRows(rows *sql.Rows) (*Frame, error) {
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %v", err)
	}

	kinds := make([]Kind, len(names))
	known := make([]bool, len(names))
	for i, ct := range columnTypes(rows) {
		kinds[i], known[i] = kindFromDatabaseType(ct)
	}

	values := make([][]any, len(names))
	for rows.Next() {
		row := make([]any, len(names))
		scanArgs := make([]any, len(names))
		for i := range row {
			scanArgs[i] = &row[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			values[i] = append(values[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %v", err)
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		kind := kinds[i]
		if !known[i] {
			kind = kindFromValues(values[i])
		}
		if values[i] == nil {
			values[i] = []any{}
		}
		columns[i] = Column{Name: name, Kind: kind, Values: values[i]}
	}

	f, err := New(columns...)
	if err != nil {
		// fall back to text when a driver value does not fit the declared type
		for i := range columns {
			columns[i].Kind = KindString
		}
		return New(columns...)
	}
	return f, nil
}

// columnTypes returns nil when the driver cannot describe its columns. Some
// drivers panic instead of returning an error.
func columnTypes(rows *sql.Rows) (types []*sql.ColumnType) {
	defer func() {
		if r := recover(); r != nil {
			types = nil
		}
	}()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	return types
}

func kindFromDatabaseType(ct *sql.ColumnType) (Kind, bool) {
	switch strings.ToUpper(ct.DatabaseTypeName()) {
	case "FIXED":
		if _, scale, ok := ct.DecimalSize(); ok && scale > 0 {
			return KindFloat, true
		}
		return KindInt, true
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "INT64":
		return KindInt, true
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "FLOAT64", "NUMERIC", "DECIMAL":
		return KindFloat, true
	case "TEXT", "VARCHAR", "CHAR", "NVARCHAR", "NCHAR", "STRING", "BPCHAR", "UUID":
		return KindString, true
	case "BOOLEAN", "BOOL", "BIT":
		return KindBool, true
	case "TIMESTAMP_NTZ", "TIMESTAMP_LTZ", "TIMESTAMP_TZ", "TIMESTAMP", "TIMESTAMPTZ",
		"DATE", "DATETIME", "DATETIME2", "DATETIMEOFFSET":
		return KindTime, true
	}
	return KindString, false
}

func kindFromValues(values []any) Kind {
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
			return KindInt
		case float32, float64:
			return KindFloat
		case bool:
			return KindBool
		case time.Time:
			return KindTime
		default:
			return KindString
		}
	}
	return KindString
}
