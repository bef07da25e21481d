package snowflake

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/metrics"
	"github.com/gerhard-ee/snowclient/internal/state"
	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// LoadRequest describes a load into a table
type LoadRequest struct {
	Target
	// Overwrite replaces the table contents; otherwise rows are appended
	Overwrite bool
}

// Loader writes frames into tables, reconciling the table's columns first
// when the table already exists.
type Loader struct {
	session    *Session
	reconciler *Reconciler
	writer     *BulkWriter
	journal    state.Manager
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Load loads frame into the request's table. On a failed bulk write the
// returned outcome holds the diagnostics of the chunks that completed.
func (l *Loader) Load(ctx context.Context, frame *dataset.Frame, req LoadRequest) (*LoadOutcome, error) {
	if frame == nil {
		return nil, newError(KindValidation, nil, "no data to load into %s", req.Target)
	}

	job := l.start(ctx, req.Target)
	outcome, err := l.load(ctx, frame, req)
	l.finish(ctx, job, outcome, err)

	if err != nil {
		l.metrics.RecordLoadFailure(req.Target.String())
		return outcome, err
	}
	l.metrics.RecordLoad(req.Target.String(), outcome.Rows, outcome.Chunks, outcome.Success)
	return outcome, nil
}

func (l *Loader) load(ctx context.Context, frame *dataset.Frame, req LoadRequest) (*LoadOutcome, error) {
	if err := l.session.Use(ctx, Context{Role: req.Role, Warehouse: req.Warehouse}); err != nil {
		return nil, newError(KindLoad, err, "failed to set context for %s", req.Target)
	}

	exists, err := l.reconciler.TableExists(ctx, req.Database, req.Schema, req.Table)
	if err != nil {
		return nil, newError(KindLoad, err, "failed to look up %s", req.Target)
	}

	var added []AlterEntry
	if exists {
		added, err = l.reconciler.Validate(ctx, frame, ValidateRequest{Target: req.Target})
		if err != nil {
			return &LoadOutcome{AddedColumns: added}, newError(KindLoad, err, "failed to reconcile %s", req.Target)
		}
	} else {
		l.logger.Debug("table does not exist, skipping schema validation", targetFields(req.Target)...)
	}

	if err := l.session.Use(ctx, Context{Database: req.Database, Schema: req.Schema}); err != nil {
		return &LoadOutcome{AddedColumns: added}, newError(KindLoad, err, "failed to set context for %s", req.Target)
	}

	outcome, err := l.writer.Write(ctx, frame, req.Table, WriteOptions{AutoCreate: true, Overwrite: req.Overwrite})
	if outcome != nil {
		outcome.AddedColumns = added
	}
	if err != nil {
		return outcome, newError(KindLoad, err, "failed to write data into %s", req.Target)
	}
	return outcome, nil
}

func (l *Loader) start(ctx context.Context, t Target) *state.State {
	if l.journal == nil {
		return nil
	}
	now := time.Now().UTC()
	job := &state.State{
		JobID:       t.String(),
		Table:       t.Table,
		Database:    t.Database,
		Schema:      t.Schema,
		Status:      state.StatusRunning,
		StartedAt:   now,
		LastUpdated: now,
	}
	if err := l.journal.UpdateState(ctx, job); err != nil {
		l.logger.Warn("failed to record load start", zap.String("job", job.JobID), zap.Error(err))
	}
	return job
}

func (l *Loader) finish(ctx context.Context, job *state.State, outcome *LoadOutcome, loadErr error) {
	if job == nil {
		return
	}

	job.Status = state.StatusCompleted
	if outcome != nil {
		job.RowsLoaded = outcome.Rows
		job.Chunks = outcome.Chunks
		for _, a := range outcome.AddedColumns {
			job.ColumnsAdded = append(job.ColumnsAdded, a.Column)
		}
		if !outcome.Success {
			job.Status = state.StatusFailed
		}
	}
	if loadErr != nil {
		job.Status = state.StatusFailed
		job.Error = loadErr.Error()
	}
	job.LastUpdated = time.Now().UTC()

	if err := l.journal.UpdateState(context.WithoutCancel(ctx), job); err != nil {
		l.logger.Warn("failed to record load result", zap.String("job", job.JobID), zap.Error(err))
	}
}
