package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("normalizes values", func(t *testing.T) {
		f, err := New(
			Column{Name: "id", Kind: KindInt, Values: []any{1, int32(2), "3", nil}},
			Column{Name: "score", Kind: KindFloat, Values: []any{1.5, 2, "3.25", nil}},
			Column{Name: "ok", Kind: KindBool, Values: []any{true, "false", nil, "true"}},
			Column{Name: "name", Kind: KindString, Values: []any{"a", []byte("b"), nil, 4}},
		)
		require.NoError(t, err)

		assert.Equal(t, 4, f.Len())
		assert.Equal(t, 4, f.Width())
		assert.Equal(t, []string{"id", "score", "ok", "name"}, f.Names())
		assert.Equal(t, []any{int64(1), 1.5, true, "a"}, f.Row(0))
		assert.Equal(t, []any{int64(3), 3.25, nil, nil}, f.Row(2))
		assert.Equal(t, []any{nil, nil, true, "4"}, f.Row(3))
	})

	t.Run("rejects ragged columns", func(t *testing.T) {
		_, err := New(
			Column{Name: "a", Values: []any{"x", "y"}},
			Column{Name: "b", Values: []any{"x"}},
		)
		assert.Error(t, err)
	})

	t.Run("rejects duplicate and empty names", func(t *testing.T) {
		_, err := New(Column{Name: "a"}, Column{Name: "a"})
		assert.Error(t, err)

		_, err = New(Column{Name: ""})
		assert.Error(t, err)
	})

	t.Run("rejects values of the wrong type", func(t *testing.T) {
		_, err := New(Column{Name: "a", Kind: KindInt, Values: []any{"nope"}})
		assert.Error(t, err)
	})
}

func TestChunks(t *testing.T) {
	f := MustNew(Column{Name: "n", Kind: KindInt, Values: []any{1, 2, 3, 4, 5}})

	chunks := f.Chunks(2)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2, chunks[0].Len())
	assert.Equal(t, 1, chunks[2].Len())
	assert.Equal(t, []any{int64(5)}, chunks[2].Row(0))

	assert.Len(t, f.Chunks(0), 1)
	assert.Len(t, f.Chunks(10), 1)

	empty := MustNew(Column{Name: "n", Kind: KindInt})
	assert.Empty(t, empty.Chunks(2))
}

func TestSliceDoesNotAlias(t *testing.T) {
	f := MustNew(Column{Name: "s", Values: []any{"a", "b"}})
	part := f.Slice(0, 1)
	part.Column(0).Values[0] = "changed"
	assert.Equal(t, "a", f.Row(0)[0])
}

func TestReadCSV(t *testing.T) {
	input := "id,price,active,created,label\n" +
		"1,9.5,true,2024-01-02,x\n" +
		"2,,false,2024-01-03T10:00:00Z,\n" +
		"3,7,true,,z\n"

	f, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	kinds := make([]Kind, f.Width())
	for i := range kinds {
		kinds[i] = f.Column(i).Kind
	}
	assert.Equal(t, []Kind{KindInt, KindFloat, KindBool, KindTime, KindString}, kinds)
	assert.Equal(t, 3, f.Len())
	assert.Nil(t, f.Row(1)[1])
	assert.Nil(t, f.Row(1)[4])
	assert.Equal(t, 7.0, f.Row(2)[1])

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := MustNew(
		Column{Name: "id", Kind: KindInt, Values: []any{1, nil}},
		Column{Name: "at", Kind: KindTime, Values: []any{ts, nil}},
		Column{Name: "note", Kind: KindString, Values: []any{"a,b", "c"}},
	)

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	assert.Equal(t, "id,at,note\n1,2024-05-01T12:00:00Z,\"a,b\"\n,,c\n", buf.String())
}

func TestWriteParquet(t *testing.T) {
	f := MustNew(
		Column{Name: "id", Kind: KindInt, Values: []any{1, 2}},
		Column{Name: "name", Kind: KindString, Values: []any{"a", nil}},
		Column{Name: "at", Kind: KindTime, Values: []any{time.Now(), nil}},
	)

	path := filepath.Join(t.TempDir(), "chunk.parquet")
	require.NoError(t, f.WriteParquet(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	bad := MustNew(Column{Name: "a,b", Values: []any{"x"}})
	assert.Error(t, bad.WriteParquet(filepath.Join(t.TempDir(), "bad.parquet")))
}

func TestParquetSchema(t *testing.T) {
	f := MustNew(
		Column{Name: "n", Kind: KindInt},
		Column{Name: "s", Kind: KindString},
		Column{Name: "ts", Kind: KindTime},
	)
	md, err := f.ParquetSchema()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"name=n, type=INT64, repetitiontype=OPTIONAL",
		"name=s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=ts, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL",
	}, md)
}

func TestFromRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "ok"}).
			AddRow(int64(1), []byte("alpha"), true).
			AddRow(int64(2), nil, false),
	)

	rows, err := db.Query("SELECT id, name, ok FROM t")
	require.NoError(t, err)

	f, err := FromRows(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, KindInt, f.Column(0).Kind)
	assert.Equal(t, KindString, f.Column(1).Kind)
	assert.Equal(t, KindBool, f.Column(2).Kind)
	assert.Equal(t, []any{int64(1), "alpha", true}, f.Row(0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFromRowsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}))

	rows, err := db.Query("SELECT a, b FROM t")
	require.NoError(t, err)

	f, err := FromRows(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, []string{"a", "b"}, f.Names())
}
