package snowflake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// ChunkDiagnostic is one record of a COPY INTO result
type ChunkDiagnostic struct {
	File                 string
	Status               string
	RowsParsed           int64
	RowsLoaded           int64
	ErrorLimit           int64
	ErrorsSeen           int64
	FirstError           string
	FirstErrorLine       int64
	FirstErrorCharacter  int64
	FirstErrorColumnName string
}

// LoadOutcome is the result of a bulk write
type LoadOutcome struct {
	Success      bool
	Chunks       int
	Rows         int64
	Diagnostics  []ChunkDiagnostic
	AddedColumns []AlterEntry
}

// WriteOptions controls how a bulk write treats the target table
type WriteOptions struct {
	// AutoCreate creates the table from the frame's columns if needed
	AutoCreate bool
	// Overwrite replaces the table contents instead of appending
	Overwrite bool
}

// BulkWriter loads frames through a temporary stage: every chunk is encoded
// as a parquet file, PUT to the stage and copied into the table with one
// COPY INTO.
type BulkWriter struct {
	session   *Session
	logger    *zap.Logger
	chunkSize int
	tempDir   string
	newID     func() string
}

// NewBulkWriter creates a writer over session. A chunkSize <= 0 uploads
// the frame as a single file.
func NewBulkWriter(session *Session, chunkSize int) *BulkWriter {
	return &BulkWriter{
		session:   session,
		logger:    session.logger,
		chunkSize: chunkSize,
		newID: func() string {
			return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		},
	}
}

// Write loads frame into table, which is resolved against the session's
// current database and schema.
func (w *BulkWriter) Write(ctx context.Context, frame *dataset.Frame, table string, opts WriteOptions) (*LoadOutcome, error) {
	if frame == nil {
		return nil, newError(KindValidation, nil, "no data to write into %s", table)
	}
	if frame.Width() == 0 {
		return nil, newError(KindValidation, nil, "frame for %s has no columns", table)
	}

	idents := w.session.idents
	target := idents.name(table)
	outcome := &LoadOutcome{Success: true}

	chunks := frame.Chunks(w.chunkSize)
	var stage string
	if len(chunks) > 0 {
		var err error
		stage, err = w.upload(ctx, chunks)
		if err != nil {
			return outcome, err
		}
	}

	copyTarget := target
	switch {
	case opts.AutoCreate && opts.Overwrite:
		copyTarget = "SNOWCLIENT_TMP_" + w.newID()
		if _, err := w.session.Exec(ctx, createTableSQL("CREATE TABLE", copyTarget, frame, idents)); err != nil {
			return outcome, newError(KindLoad, err, "failed to create table for %s", table)
		}
	case opts.AutoCreate:
		if _, err := w.session.Exec(ctx, createTableSQL("CREATE TABLE IF NOT EXISTS", target, frame, idents)); err != nil {
			return outcome, newError(KindLoad, err, "failed to create table %s", table)
		}
	case opts.Overwrite:
		if _, err := w.session.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+target); err != nil {
			return outcome, newError(KindLoad, err, "failed to truncate table %s", table)
		}
	}

	if stage != "" {
		result, err := w.session.Query(ctx, copySQL(copyTarget, stage, idents.quoteAll))
		if err != nil {
			if copyTarget != target {
				w.dropQuietly(ctx, copyTarget)
			}
			return outcome, newError(KindLoad, err, "failed to copy data into %s", table)
		}
		outcome.Diagnostics = parseCopyResult(result)
		for _, d := range outcome.Diagnostics {
			if d.Status != "LOADED" {
				outcome.Success = false
			}
			outcome.Rows += d.RowsLoaded
		}
		outcome.Chunks = len(outcome.Diagnostics)
	}

	if copyTarget != target {
		if _, err := w.session.Exec(ctx, "DROP TABLE IF EXISTS "+target); err != nil {
			w.dropQuietly(ctx, copyTarget)
			return outcome, newError(KindLoad, err, "failed to replace table %s", table)
		}
		if _, err := w.session.Exec(ctx, "ALTER TABLE "+copyTarget+" RENAME TO "+target); err != nil {
			return outcome, newError(KindLoad, err, "failed to rename %s to %s", copyTarget, table)
		}
	}

	w.logger.Debug("bulk write finished",
		zap.String("table", table),
		zap.Int("chunks", outcome.Chunks),
		zap.Int64("rows", outcome.Rows),
		zap.Bool("success", outcome.Success),
	)
	return outcome, nil
}

// upload writes the chunks as parquet files and PUTs them into a new
// temporary stage, returning the stage name.
func (w *BulkWriter) upload(ctx context.Context, chunks []*dataset.Frame) (string, error) {
	dir, err := os.MkdirTemp(w.tempDir, "snowclient-")
	if err != nil {
		return "", newError(KindLoad, err, "failed to create temp directory")
	}
	defer os.RemoveAll(dir)

	stage := "SNOWCLIENT_STAGE_" + w.newID()
	if _, err := w.session.Exec(ctx, "CREATE TEMPORARY STAGE "+stage+" FILE_FORMAT = (TYPE = PARQUET)"); err != nil {
		return "", newError(KindLoad, err, "failed to create stage")
	}

	for i, chunk := range chunks {
		path := filepath.Join(dir, fmt.Sprintf("file%d.parquet", i))
		if err := chunk.WriteParquet(path); err != nil {
			return "", newError(KindLoad, err, "failed to encode chunk %d", i)
		}
		put := "PUT " + QuoteLiteral("file://"+filepath.ToSlash(path)) + " @" + stage + " PARALLEL = 4 AUTO_COMPRESS = FALSE"
		if _, err := w.session.Query(ctx, put); err != nil {
			return "", newError(KindLoad, err, "failed to upload chunk %d", i)
		}
	}
	return stage, nil
}

func (w *BulkWriter) dropQuietly(ctx context.Context, table string) {
	if _, err := w.session.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		w.logger.Warn("failed to drop temporary table", zap.String("table", table), zap.Error(err))
	}
}

// ColumnType returns the column type used when creating a table for kind
func ColumnType(kind dataset.Kind) string {
	switch kind {
	case dataset.KindInt:
		return "NUMBER(38,0)"
	case dataset.KindFloat:
		return "FLOAT"
	case dataset.KindBool:
		return "BOOLEAN"
	case dataset.KindTime:
		return "TIMESTAMP_NTZ"
	default:
		return "TEXT"
	}
}

func createTableSQL(verb, table string, frame *dataset.Frame, idents identifiers) string {
	defs := make([]string, frame.Width())
	for i, col := range frame.Columns() {
		defs[i] = idents.name(col.Name) + " " + ColumnType(col.Kind)
	}
	return verb + " " + table + " (" + strings.Join(defs, ", ") + ")"
}

func copySQL(table, stage string, caseSensitive bool) string {
	match := "CASE_INSENSITIVE"
	if caseSensitive {
		match = "CASE_SENSITIVE"
	}
	return "COPY INTO " + table + " FROM @" + stage +
		" FILE_FORMAT = (TYPE = PARQUET USE_LOGICAL_TYPE = TRUE)" +
		" MATCH_BY_COLUMN_NAME = " + match +
		" PURGE = TRUE ON_ERROR = ABORT_STATEMENT"
}

// parseCopyResult reads COPY INTO result rows. A result without a status
// per file (no files processed) yields no diagnostics.
func parseCopyResult(result *dataset.Frame) []ChunkDiagnostic {
	cols := make(map[string][]any, result.Width())
	for _, col := range result.Columns() {
		cols[strings.ToLower(col.Name)] = col.Values
	}
	if _, ok := cols["file"]; !ok {
		return nil
	}

	str := func(name string, i int) string {
		if v, ok := cols[name]; ok {
			return dataset.FormatValue(v[i])
		}
		return ""
	}
	num := func(name string, i int) int64 {
		n, _ := strconv.ParseInt(str(name, i), 10, 64)
		return n
	}

	diags := make([]ChunkDiagnostic, result.Len())
	for i := range diags {
		diags[i] = ChunkDiagnostic{
			File:                 str("file", i),
			Status:               str("status", i),
			RowsParsed:           num("rows_parsed", i),
			RowsLoaded:           num("rows_loaded", i),
			ErrorLimit:           num("error_limit", i),
			ErrorsSeen:           num("errors_seen", i),
			FirstError:           str("first_error", i),
			FirstErrorLine:       num("first_error_line", i),
			FirstErrorCharacter:  num("first_error_character", i),
			FirstErrorColumnName: str("first_error_column_name", i),
		}
	}
	return diags
}
