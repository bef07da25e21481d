package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ReadCSV reads a CSV document with a header row into a frame. Column kinds
// are inferred from the values: a column is int, float, bool or time when
// every non-empty value parses as such, otherwise string. Empty cells are
// NULL.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv input has no header row")
		}
		return nil, fmt.Errorf("failed to read csv header: %v", err)
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %v", err)
		}
		for i := range header {
			raw[i] = append(raw[i], record[i])
		}
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		kind := inferKind(raw[i])
		values := make([]any, len(raw[i]))
		for j, cell := range raw[i] {
			if cell == "" {
				continue
			}
			values[j] = cell
		}
		columns[i] = Column{Name: strings.TrimSpace(name), Kind: kind, Values: values}
	}

	return New(columns...)
}

func inferKind(cells []string) Kind {
	candidates := []Kind{KindInt, KindFloat, KindBool, KindTime}
	seen := false
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		seen = true
		remaining := candidates[:0]
		for _, kind := range candidates {
			if parses(kind, cell) {
				remaining = append(remaining, kind)
			}
		}
		candidates = remaining
		if len(candidates) == 0 {
			return KindString
		}
	}
	if !seen {
		return KindString
	}
	return candidates[0]
}

func parses(kind Kind, cell string) bool {
	var err error
	switch kind {
	case KindInt:
		_, err = strconv.ParseInt(cell, 10, 64)
	case KindFloat:
		_, err = strconv.ParseFloat(cell, 64)
	case KindBool:
		_, err = strconv.ParseBool(cell)
		// "1" and "0" are ints, not bools
		if err == nil && (cell == "1" || cell == "0") {
			return false
		}
	case KindTime:
		_, err = parseTime(cell)
	}
	return err == nil
}

// WriteCSV writes the frame with a header row. NULLs are written as empty
// cells and times in RFC 3339.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(f.Names()); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}

	record := make([]string, f.Width())
	for i := 0; i < f.Len(); i++ {
		for j, col := range f.columns {
			record[j] = FormatValue(col.Values[i])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %v", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// FormatValue renders a normalized value as text. NULL renders as "".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
