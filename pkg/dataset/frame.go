// Package dataset holds the in-memory tabular data that is loaded into and
// fetched out of the warehouse.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the logical type of a column
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "string"
	}
}

// Column is a named, typed column of values. A nil value is NULL.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Frame is an ordered set of equally long columns
type Frame struct {
	columns []Column
	index   map[string]int
}

// New creates a frame from the given columns. Values are normalized to the
// Go type of the column kind: string, int64, float64, bool or time.Time.
func New(columns ...Column) (*Frame, error) {
	f := &Frame{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	rows := -1
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column %d has no name", len(f.columns))
		}
		if _, exists := f.index[col.Name]; exists {
			return nil, fmt.Errorf("duplicate column name: %s", col.Name)
		}
		if rows >= 0 && len(col.Values) != rows {
			return nil, fmt.Errorf("column %s has %d values, expected %d", col.Name, len(col.Values), rows)
		}
		rows = len(col.Values)

		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			nv, err := normalize(col.Kind, v)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", col.Name, i, err)
			}
			values[i] = nv
		}

		f.index[col.Name] = len(f.columns)
		f.columns = append(f.columns, Column{Name: col.Name, Kind: col.Kind, Values: values})
	}

	return f, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(columns ...Column) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if len(f.columns) == 0 {
		return 0
	}
	return len(f.columns[0].Values)
}

// Width returns the number of columns
func (f *Frame) Width() int {
	return len(f.columns)
}

// Names returns the column names in order
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, col := range f.columns {
		names[i] = col.Name
	}
	return names
}

// Columns returns a copy of the column headers and value slices.
func (f *Frame) Columns() []Column {
	out := make([]Column, len(f.columns))
	copy(out, f.columns)
	return out
}

// Column returns the i-th column
func (f *Frame) Column(i int) Column {
	return f.columns[i]
}

// Lookup returns the column with the given name
func (f *Frame) Lookup(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.columns[i], true
}

// Row returns the values of row i, one per column
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.columns))
	for j, col := range f.columns {
		row[j] = col.Values[i]
	}
	return row
}

// Slice returns rows [start, end) as a new frame sharing no value slices
// with f.
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > f.Len() {
		end = f.Len()
	}
	if start > end {
		start = end
	}

	out := &Frame{
		columns: make([]Column, len(f.columns)),
		index:   f.index,
	}
	for i, col := range f.columns {
		values := make([]any, end-start)
		copy(values, col.Values[start:end])
		out.columns[i] = Column{Name: col.Name, Kind: col.Kind, Values: values}
	}
	return out
}

// Chunks splits the frame into consecutive frames of at most size rows.
// A size <= 0 yields the whole frame as one chunk. An empty frame yields no
// chunks.
func (f *Frame) Chunks(size int) []*Frame {
	n := f.Len()
	if n == 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []*Frame{f}
	}

	chunks := make([]*Frame, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, f.Slice(start, start+size))
	}
	return chunks
}

func normalize(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindString:
		switch t := v.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		case fmt.Stringer:
			return t.String(), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	case KindInt:
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int8:
			return int64(t), nil
		case int16:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case int64:
			return t, nil
		case uint8:
			return int64(t), nil
		case uint16:
			return int64(t), nil
		case uint32:
			return int64(t), nil
		case uint64:
			if t > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows int64", t)
			}
			return int64(t), nil
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid int value %q", t)
			}
			return n, nil
		case []byte:
			return normalize(kind, string(t))
		}
	case KindFloat:
		switch t := v.(type) {
		case float32:
			return float64(t), nil
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case int32:
			return float64(t), nil
		case string:
			n, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid float value %q", t)
			}
			return n, nil
		case []byte:
			return normalize(kind, string(t))
		}
	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("invalid bool value %q", t)
			}
			return b, nil
		case []byte:
			return normalize(kind, string(t))
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			ts, err := parseTime(t)
			if err != nil {
				return nil, err
			}
			return ts, nil
		case []byte:
			return normalize(kind, string(t))
		}
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time value %q", s)
}
