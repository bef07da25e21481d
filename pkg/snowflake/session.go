// Package snowflake is a Snowflake client that loads frames into tables,
// adding the columns a table is missing before the load, and runs queries.
package snowflake

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/metrics"
	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// Context is the role, warehouse, database and schema statements run in.
// Empty fields are left as they are.
type Context struct {
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

// SessionOptions configures a Session
type SessionOptions struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// QueryTimeout bounds every statement; zero means no limit
	QueryTimeout time.Duration
	// QuoteIdentifiers quotes every caller-supplied identifier
	QuoteIdentifiers bool
}

// Session owns one authenticated warehouse connection. All statements of a
// session run on the same connection, one at a time.
type Session struct {
	params  Params
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	idents  identifiers

	mu      sync.Mutex
	db      *sql.DB
	conn    *sql.Conn
	current Context
}

// NewSession creates a disconnected session
func NewSession(params Params, opts SessionOptions) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newSession(params, opts), nil
}

func newSession(params Params, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		params:  params,
		logger:  logger,
		metrics: opts.Metrics,
		timeout: opts.QueryTimeout,
		idents:  identifiers{quoteAll: opts.QuoteIdentifiers},
	}
}

// newSessionWithDB creates a session over an already opened handle
func newSessionWithDB(db *sql.DB, opts SessionOptions) *Session {
	s := newSession(Params{}, opts)
	s.db = db
	return s
}

// Connect opens and verifies the connection. Connecting a connected session
// does nothing.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	db := s.db
	if db == nil {
		dsn, err := s.params.dsn()
		if err != nil {
			return err
		}
		db, err = sql.Open("snowflake", dsn)
		if err != nil {
			return newError(KindConnection, err, "failed to open connection to account %s", s.params.Account)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		s.db = nil
		return newError(KindConnection, err, "failed to connect to account %s", s.params.Account)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		s.db = nil
		return newError(KindConnection, err, "failed to acquire connection to account %s", s.params.Account)
	}

	s.db = db
	s.conn = conn
	s.current = Context{
		Role:      s.params.Role,
		Warehouse: s.params.Warehouse,
		Database:  s.params.Database,
		Schema:    s.params.Schema,
	}
	s.logger.Debug("session connected", zap.String("account", s.params.Account))
	return nil
}

// Connected reports whether the session holds a live connection
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close releases the connection. Closing a closed session does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			firstErr = err
		}
		s.conn = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	s.current = Context{}

	if firstErr != nil {
		return newError(KindConnection, firstErr, "failed to close session")
	}
	return nil
}

// Current returns the last context applied with Use
func (s *Session) Current() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Exec runs a statement and returns the number of affected rows
func (s *Session) Exec(ctx context.Context, query string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, ErrNotConnected
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Debug("executing statement", zap.String("query", query))
	start := time.Now()
	res, err := s.conn.ExecContext(ctx, query)
	s.metrics.ObserveStatement(statementKind(query), err, time.Since(start))
	if err != nil {
		return 0, statementError(query, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Query runs a statement and returns its result set
func (s *Session) Query(ctx context.Context, query string) (*dataset.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Debug("running query", zap.String("query", query))
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		s.metrics.ObserveStatement(statementKind(query), err, time.Since(start))
		return nil, statementError(query, err)
	}

	result, err := dataset.FromRows(rows)
	s.metrics.ObserveStatement(statementKind(query), err, time.Since(start))
	if err != nil {
		return nil, statementError(query, err)
	}
	return result, nil
}

// Use switches the session to the non-empty parts of c, in the order role,
// warehouse, database, schema.
func (s *Session) Use(ctx context.Context, c Context) error {
	steps := []struct {
		object string
		name   string
		apply  func(*Context)
	}{
		{"ROLE", c.Role, func(cur *Context) { cur.Role = c.Role }},
		{"WAREHOUSE", c.Warehouse, func(cur *Context) { cur.Warehouse = c.Warehouse }},
		{"DATABASE", c.Database, func(cur *Context) { cur.Database = c.Database }},
		{"SCHEMA", c.Schema, func(cur *Context) { cur.Schema = c.Schema }},
	}

	for _, step := range steps {
		if step.name == "" {
			continue
		}
		if _, err := s.Exec(ctx, "USE "+step.object+" "+s.idents.name(step.name)); err != nil {
			return err
		}
		s.mu.Lock()
		step.apply(&s.current)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func statementError(query string, err error) *Error {
	return &Error{
		Kind:    KindExecution,
		Message: "failed to execute " + abbreviate(query),
		Query:   query,
		Err:     err,
	}
}

func abbreviate(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	if len(q) > 120 {
		return q[:117] + "..."
	}
	return q
}

// statementKind returns the lower-cased leading keyword of query
func statementKind(query string) string {
	fields := strings.Fields(stripComments(query))
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// stripComments removes leading -- and /* */ comments
func stripComments(query string) string {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = strings.TrimSpace(q[i+1:])
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = strings.TrimSpace(q[i+2:])
		default:
			return q
		}
	}
}
