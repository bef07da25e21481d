package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetSchema returns the parquet-go metadata strings describing the frame
func (f *Frame) ParquetSchema() ([]string, error) {
	md := make([]string, len(f.columns))
	for i, col := range f.columns {
		if strings.ContainsAny(col.Name, ",=") {
			return nil, fmt.Errorf("column name %q cannot be encoded as parquet", col.Name)
		}
		switch col.Kind {
		case KindInt:
			md[i] = fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", col.Name)
		case KindFloat:
			md[i] = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", col.Name)
		case KindBool:
			md[i] = fmt.Sprintf("name=%s, type=BOOLEAN, repetitiontype=OPTIONAL", col.Name)
		case KindTime:
			md[i] = fmt.Sprintf("name=%s, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL", col.Name)
		default:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", col.Name)
		}
	}
	return md, nil
}

// WriteParquet encodes the frame as a Snappy-compressed parquet file at path
func (f *Frame) WriteParquet(path string) error {
	md, err := f.ParquetSchema()
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %v", err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %v", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := 0; i < f.Len(); i++ {
		rec := make([]*string, len(f.columns))
		for j, col := range f.columns {
			rec[j] = parquetCell(col.Values[i])
		}
		if err := pw.WriteString(rec); err != nil {
			fw.Close()
			return fmt.Errorf("failed to write parquet row %d: %v", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finish parquet file: %v", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %v", err)
	}
	return nil
}

func parquetCell(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		s = strconv.FormatInt(t.UnixMicro(), 10)
	default:
		s = FormatValue(v)
	}
	return &s
}
