package snowflake

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

const putPattern = `^PUT 'file://.*/file%d\.parquet' @SNOWCLIENT_STAGE_1 PARALLEL = 4 AUTO_COMPRESS = FALSE$`

func copyResultRows(files ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"file", "status", "rows_parsed", "rows_loaded", "error_limit", "errors_seen",
		"first_error", "first_error_line", "first_error_character", "first_error_column_name",
	})
	for _, f := range files {
		rows.AddRow(f, "LOADED", int64(2), int64(2), int64(1), int64(0), nil, nil, nil, nil)
	}
	return rows
}

func sampleFrame() *dataset.Frame {
	return dataset.MustNew(
		dataset.Column{Name: "id", Kind: dataset.KindInt, Values: []any{int64(1), int64(2), int64(3), int64(4)}},
		dataset.Column{Name: "name", Kind: dataset.KindString, Values: []any{"a", "b", nil, "d"}},
	)
}

func newMockWriter(t *testing.T, chunkSize int) (*BulkWriter, sqlmock.Sqlmock) {
	t.Helper()
	s, mock := newMockSession(t, SessionOptions{})
	w := NewBulkWriter(s, chunkSize)
	w.tempDir = t.TempDir()
	w.newID = sequentialIDs()
	return w, mock
}

func TestBulkWriteAppend(t *testing.T) {
	w, mock := newMockWriter(t, 2)

	expectExec(mock, "CREATE TEMPORARY STAGE SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET)")
	mock.ExpectQuery(fmt.Sprintf(putPattern, 0)).WillReturnRows(sqlmock.NewRows([]string{"source"}).AddRow("file0.parquet"))
	mock.ExpectQuery(fmt.Sprintf(putPattern, 1)).WillReturnRows(sqlmock.NewRows([]string{"source"}).AddRow("file1.parquet"))
	expectExec(mock, "CREATE TABLE IF NOT EXISTS orders (id NUMBER(38,0), name TEXT)")
	expectQuery(mock, "COPY INTO orders FROM @SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET USE_LOGICAL_TYPE = TRUE) MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE PURGE = TRUE ON_ERROR = ABORT_STATEMENT").
		WillReturnRows(copyResultRows("file0.parquet", "file1.parquet"))

	outcome, err := w.Write(context.Background(), sampleFrame(), "orders", WriteOptions{AutoCreate: true})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Chunks)
	assert.Equal(t, int64(4), outcome.Rows)
	require.Len(t, outcome.Diagnostics, 2)
	assert.Equal(t, ChunkDiagnostic{
		File: "file0.parquet", Status: "LOADED", RowsParsed: 2, RowsLoaded: 2, ErrorLimit: 1,
	}, outcome.Diagnostics[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkWriteOverwriteReplacesTable(t *testing.T) {
	w, mock := newMockWriter(t, 0)

	expectExec(mock, "CREATE TEMPORARY STAGE SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET)")
	mock.ExpectQuery(fmt.Sprintf(putPattern, 0)).WillReturnRows(sqlmock.NewRows([]string{"source"}))
	expectExec(mock, "CREATE TABLE SNOWCLIENT_TMP_2 (id NUMBER(38,0), name TEXT)")
	expectQuery(mock, "COPY INTO SNOWCLIENT_TMP_2 FROM @SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET USE_LOGICAL_TYPE = TRUE) MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE PURGE = TRUE ON_ERROR = ABORT_STATEMENT").
		WillReturnRows(copyResultRows("file0.parquet"))
	expectExec(mock, "DROP TABLE IF EXISTS orders")
	expectExec(mock, "ALTER TABLE SNOWCLIENT_TMP_2 RENAME TO orders")

	outcome, err := w.Write(context.Background(), sampleFrame(), "orders", WriteOptions{AutoCreate: true, Overwrite: true})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.Chunks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkWriteTruncate(t *testing.T) {
	w, mock := newMockWriter(t, 0)
	w.session.idents.quoteAll = true

	expectExec(mock, "CREATE TEMPORARY STAGE SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET)")
	mock.ExpectQuery(fmt.Sprintf(putPattern, 0)).WillReturnRows(sqlmock.NewRows([]string{"source"}))
	expectExec(mock, `TRUNCATE TABLE IF EXISTS "orders"`)
	expectQuery(mock, `COPY INTO "orders" FROM @SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET USE_LOGICAL_TYPE = TRUE) MATCH_BY_COLUMN_NAME = CASE_SENSITIVE PURGE = TRUE ON_ERROR = ABORT_STATEMENT`).
		WillReturnRows(copyResultRows("file0.parquet"))

	_, err := w.Write(context.Background(), sampleFrame(), "orders", WriteOptions{Overwrite: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkWriteEmptyFrame(t *testing.T) {
	w, mock := newMockWriter(t, 0)

	empty := dataset.MustNew(dataset.Column{Name: "id", Kind: dataset.KindInt, Values: []any{}})
	expectExec(mock, "CREATE TABLE IF NOT EXISTS orders (id NUMBER(38,0))")

	outcome, err := w.Write(context.Background(), empty, "orders", WriteOptions{AutoCreate: true})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 0, outcome.Chunks)
	assert.Equal(t, int64(0), outcome.Rows)
	assert.NoError(t, mock.ExpectationsWereMet(), "no stage, PUT or COPY")
}

func TestBulkWritePartialLoad(t *testing.T) {
	w, mock := newMockWriter(t, 0)

	expectExec(mock, "CREATE TEMPORARY STAGE SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET)")
	mock.ExpectQuery(fmt.Sprintf(putPattern, 0)).WillReturnRows(sqlmock.NewRows([]string{"source"}))
	mock.ExpectQuery("^COPY INTO orders").WillReturnRows(
		sqlmock.NewRows([]string{"file", "status", "rows_parsed", "rows_loaded", "first_error"}).
			AddRow("file0.parquet", "PARTIALLY_LOADED", int64(4), int64(3), "bad value"),
	)

	outcome, err := w.Write(context.Background(), sampleFrame(), "orders", WriteOptions{})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, int64(3), outcome.Rows)
	assert.Equal(t, "bad value", outcome.Diagnostics[0].FirstError)
}

func TestBulkWriteCopyFailure(t *testing.T) {
	w, mock := newMockWriter(t, 0)

	expectExec(mock, "CREATE TEMPORARY STAGE SNOWCLIENT_STAGE_1 FILE_FORMAT = (TYPE = PARQUET)")
	mock.ExpectQuery(fmt.Sprintf(putPattern, 0)).WillReturnRows(sqlmock.NewRows([]string{"source"}))
	expectExec(mock, "CREATE TABLE SNOWCLIENT_TMP_2 (id NUMBER(38,0), name TEXT)")
	mock.ExpectQuery("^COPY INTO SNOWCLIENT_TMP_2").WillReturnError(errors.New("warehouse suspended"))
	expectExec(mock, "DROP TABLE IF EXISTS SNOWCLIENT_TMP_2")

	outcome, err := w.Write(context.Background(), sampleFrame(), "orders", WriteOptions{AutoCreate: true, Overwrite: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.NotNil(t, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkWriteRejectsMissingFrame(t *testing.T) {
	w, _ := newMockWriter(t, 0)

	_, err := w.Write(context.Background(), nil, "orders", WriteOptions{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = w.Write(context.Background(), dataset.MustNew(), "orders", WriteOptions{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseCopyResultWithoutFiles(t *testing.T) {
	f := dataset.MustNew(dataset.Column{Name: "status", Values: []any{"Copy executed with 0 files processed."}})
	assert.Nil(t, parseCopyResult(f))
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "NUMBER(38,0)", ColumnType(dataset.KindInt))
	assert.Equal(t, "FLOAT", ColumnType(dataset.KindFloat))
	assert.Equal(t, "TEXT", ColumnType(dataset.KindString))
	assert.Equal(t, "BOOLEAN", ColumnType(dataset.KindBool))
	assert.Equal(t, "TIMESTAMP_NTZ", ColumnType(dataset.KindTime))
}
