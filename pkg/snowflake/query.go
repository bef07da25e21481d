package snowflake

import (
	"context"
	"errors"
	"strings"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// Target names a table and the role and warehouse to reach it with
type Target struct {
	Database  string
	Schema    string
	Table     string
	Warehouse string
	Role      string
}

// String returns database.schema.table
func (t Target) String() string {
	return t.Database + "." + t.Schema + "." + t.Table
}

func (t Target) context() Context {
	return Context{Role: t.Role, Warehouse: t.Warehouse, Database: t.Database, Schema: t.Schema}
}

// QueryOutcome is the result of RunQuery: a frame for statements that
// return rows, otherwise the number of affected rows.
type QueryOutcome struct {
	Frame        *dataset.Frame
	RowsAffected int64
}

// Tabular reports whether the statement returned a result set
func (o *QueryOutcome) Tabular() bool {
	return o.Frame != nil
}

// keywords of statements that return a result set
var tabularKeywords = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"describe": true,
	"desc":     true,
	"list":     true,
	"explain":  true,
}

// IsTabular reports whether query returns a result set
func IsTabular(query string) bool {
	return tabularKeywords[statementKind(query)]
}

// Action returns the progress verb for query, as used in notifications
func Action(query string) string {
	switch statementKind(query) {
	case "select", "with", "show", "describe", "desc", "list":
		return "Selecting"
	case "insert", "copy":
		return "Inserting"
	case "update", "merge":
		return "Updating"
	case "delete", "truncate":
		return "Deleting"
	case "create":
		return "Creating"
	case "drop":
		return "Dropping"
	case "alter":
		return "Altering"
	default:
		return "Executing"
	}
}

// QueryRunner runs arbitrary statements in a target's context
type QueryRunner struct {
	session *Session
}

// NewQueryRunner creates a runner over session
func NewQueryRunner(session *Session) *QueryRunner {
	return &QueryRunner{session: session}
}

// Run switches to the target context and executes query. Statements that
// return rows yield a frame, even an empty one; other statements yield the
// affected row count.
func (r *QueryRunner) Run(ctx context.Context, query string, target Target) (*QueryOutcome, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newError(KindValidation, nil, "query is empty")
	}

	if err := r.session.Use(ctx, target.context()); err != nil {
		return nil, wrapTarget(err, "failed to set context for %s", target)
	}

	if IsTabular(query) {
		frame, err := r.session.Query(ctx, query)
		if err != nil {
			return nil, wrapTarget(err, "query against %s failed", target)
		}
		return &QueryOutcome{Frame: frame}, nil
	}

	n, err := r.session.Exec(ctx, query)
	if err != nil {
		return nil, wrapTarget(err, "statement against %s failed", target)
	}
	return &QueryOutcome{RowsAffected: n}, nil
}

// wrapTarget keeps the kind of err and prefixes the message with the target
func wrapTarget(err error, format string, args ...any) error {
	kind := KindOf(err)
	if kind == 0 {
		kind = KindExecution
	}
	e := newError(kind, err, format, args...)
	var inner *Error
	if errors.As(err, &inner) {
		e.Query = inner.Query
	}
	return e
}
