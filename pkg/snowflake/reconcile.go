package snowflake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/metrics"
	"github.com/gerhard-ee/snowclient/internal/state"
	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// Default scratch location for staging tables
const (
	DefaultStagingDatabase = "python_dev"
	DefaultStagingSchema   = "ingest"
)

// AlterEntry is one column added to a table
type AlterEntry struct {
	Table      string
	Column     string
	Definition string
	Statement  string
}

// ValidateRequest describes a reconciliation
type ValidateRequest struct {
	Target
	// Append adds the rows to an existing staging table instead of
	// replacing it
	Append bool
}

// Reconciler adds to a table the columns that an incoming frame has and the
// table lacks. It never drops, renames or changes existing columns.
type Reconciler struct {
	session   *Session
	runner    *QueryRunner
	writer    *BulkWriter
	narrator  narrator
	metrics   *metrics.Metrics
	locks     state.Manager
	lockTTL   time.Duration
	staging   Context
	keepStage bool
}

// ShowColumns lists the columns of database.schema.table as the warehouse
// reports them.
func (r *Reconciler) ShowColumns(ctx context.Context, database, schema, table string) ([]Column, error) {
	query := "SHOW COLUMNS IN " + r.session.idents.table(database, schema, table)
	out, err := r.runner.Run(ctx, query, Target{})
	if err != nil {
		return nil, err
	}
	return columnsFromShow(out.Frame)
}

// TableExists reports whether database.schema.table exists
func (r *Reconciler) TableExists(ctx context.Context, database, schema, table string) (bool, error) {
	idents := r.session.idents
	name := idents.resolved(table)
	query := "SHOW TABLES LIKE " + QuoteLiteral(name) + " IN SCHEMA " + idents.name(database) + "." + idents.name(schema)

	out, err := r.runner.Run(ctx, query, Target{})
	if err != nil {
		return false, err
	}

	result := out.Frame
	names, ok := result.Lookup("name")
	if !ok {
		if result.Width() < 2 {
			return false, nil
		}
		names = result.Column(1)
	}
	for _, v := range names.Values {
		if s, ok := v.(string); ok && s == name {
			return true, nil
		}
	}
	return false, nil
}

// Validate stages frame next to the target, compares both column sets and
// adds the missing columns to the target in the staged order. Columns added
// before a failure stay added.
func (r *Reconciler) Validate(ctx context.Context, frame *dataset.Frame, req ValidateRequest) ([]AlterEntry, error) {
	if frame == nil {
		return nil, newError(KindValidation, nil, "no data to validate against %s", req.Target)
	}

	idents := r.session.idents
	staging := Target{
		Database:  r.staging.Database,
		Schema:    r.staging.Schema,
		Table:     req.Table,
		Role:      req.Role,
		Warehouse: req.Warehouse,
	}

	if r.locks != nil {
		key := "reconcile:" + staging.String()
		ok, err := r.locks.LockState(ctx, key, r.lockTTL)
		if err != nil {
			return nil, newError(KindExecution, err, "failed to lock staging table %s", staging)
		}
		if !ok {
			return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("cannot validate %s", req.Target), Err: ErrStagingBusy}
		}
		defer func() {
			if err := r.locks.UnlockState(context.WithoutCancel(ctx), key); err != nil {
				r.narrator.logger.Warn("failed to release staging lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	r.narrator.progress(ctx, fmt.Sprintf("Loading data into temp table: %s.", staging), targetFields(staging)...)
	if err := r.session.Use(ctx, staging.context()); err != nil {
		return nil, wrapTarget(err, "failed to switch to staging location %s.%s", staging.Database, staging.Schema)
	}
	staged, err := r.writer.Write(ctx, frame, staging.Table, WriteOptions{AutoCreate: true, Overwrite: !req.Append})
	if err != nil {
		return nil, newError(KindLoad, err, "failed to stage data for %s", req.Target)
	}
	if !staged.Success {
		return nil, newError(KindLoad, nil, "staging data for %s did not load every chunk", req.Target)
	}
	if !r.keepStage {
		defer r.dropStaging(ctx, staging)
	}

	r.narrator.progress(ctx, fmt.Sprintf("Validating schema against temp table: %s.", staging), targetFields(req.Target)...)
	existing, err := r.ShowColumns(ctx, req.Database, req.Schema, req.Table)
	if err != nil {
		return nil, reconcileError(err, "failed to describe %s", req.Target)
	}
	incoming, err := r.ShowColumns(ctx, staging.Database, staging.Schema, staging.Table)
	if err != nil {
		return nil, reconcileError(err, "failed to describe staging table %s", staging)
	}

	table := idents.table(req.Database, req.Schema, req.Table)
	var applied []AlterEntry
	for _, col := range NewColumns(existing, incoming) {
		def := Definition(col.Properties)
		entry := AlterEntry{
			Table:      req.Target.String(),
			Column:     col.Name,
			Definition: def,
			Statement:  "ALTER TABLE " + table + " ADD COLUMN " + idents.stored(col.Name) + " " + def,
		}
		if _, err := r.session.Exec(ctx, entry.Statement); err != nil {
			r.metrics.AddColumns(req.Target.String(), len(applied))
			return applied, newError(KindExecution, err, "failed to add column %s to %s", col.Name, req.Target)
		}
		applied = append(applied, entry)
		r.narrator.announce(ctx,
			fmt.Sprintf("Successfully added new column: %s with data type: %s in %s.", col.Name, def, req.Target),
			zap.String("table", req.Target.String()), zap.String("column", col.Name),
		)
	}
	r.metrics.AddColumns(req.Target.String(), len(applied))

	return applied, nil
}

func (r *Reconciler) dropStaging(ctx context.Context, staging Target) {
	query := "DROP TABLE IF EXISTS " + r.session.idents.table(staging.Database, staging.Schema, staging.Table)
	if _, err := r.session.Exec(context.WithoutCancel(ctx), query); err != nil {
		r.narrator.logger.Warn("failed to drop staging table", zap.String("table", staging.String()), zap.Error(err))
	}
}

// reconcileError keeps validation errors as they are and wraps the rest
func reconcileError(err error, format string, args ...any) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return newError(KindValidation, err, format, args...)
	}
	return wrapTarget(err, format, args...)
}
