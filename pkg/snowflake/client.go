package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/metrics"
	"github.com/gerhard-ee/snowclient/internal/state"
	"github.com/gerhard-ee/snowclient/pkg/dataset"
	"github.com/gerhard-ee/snowclient/pkg/notify"
)

// DefaultLockTTL bounds how long a reconciliation may hold a staging table
const DefaultLockTTL = 10 * time.Minute

type options struct {
	logger       *zap.Logger
	notifier     notify.Notifier
	staging      Context
	keepStaging  bool
	chunkSize    int
	quoteIdents  bool
	queryTimeout time.Duration
	state        state.Manager
	lockTTL      time.Duration
	metrics      *metrics.Metrics
	db           *sql.DB
}

// Option configures a Client
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier sets the notifier progress and errors are posted to
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithStagingLocation sets the database and schema staging tables are
// created in
func WithStagingLocation(database, schema string) Option {
	return func(o *options) {
		o.staging.Database = database
		o.staging.Schema = schema
	}
}

// WithKeepStagingTable leaves staging tables in place after validation
func WithKeepStagingTable(keep bool) Option {
	return func(o *options) { o.keepStaging = keep }
}

// WithChunkSize sets the number of rows per uploaded file; 0 uploads one file
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithQuoteIdentifiers quotes every identifier supplied by the caller
func WithQuoteIdentifiers(quote bool) Option {
	return func(o *options) { o.quoteIdents = quote }
}

// WithQueryTimeout bounds every statement
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) { o.queryTimeout = d }
}

// WithStateManager sets the manager used for the load journal and the
// staging table locks
func WithStateManager(m state.Manager) Option {
	return func(o *options) { o.state = m }
}

// WithLockTTL sets how long a staging table lock is held at most
func WithLockTTL(d time.Duration) Option {
	return func(o *options) { o.lockTTL = d }
}

// WithMetrics sets the collectors loads and statements are recorded in
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// withDB runs the client over an opened handle
func withDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// Client is a warehouse client. It is safe for concurrent use; operations
// run one at a time.
type Client struct {
	mu sync.Mutex

	session    *Session
	runner     *QueryRunner
	reconciler *Reconciler
	loader     *Loader
	narrator   narrator
}

// NewClient creates an unopened client
func NewClient(params Params, opts ...Option) (*Client, error) {
	o := options{
		staging: Context{Database: DefaultStagingDatabase, Schema: DefaultStagingSchema},
		lockTTL: DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}

	sessOpts := SessionOptions{
		Logger:           o.logger,
		Metrics:          o.metrics,
		QueryTimeout:     o.queryTimeout,
		QuoteIdentifiers: o.quoteIdents,
	}
	var session *Session
	if o.db != nil {
		session = newSessionWithDB(o.db, sessOpts)
	} else {
		var err error
		session, err = NewSession(params, sessOpts)
		if err != nil {
			return nil, err
		}
	}

	n := narrator{logger: o.logger, notifier: o.notifier}
	runner := NewQueryRunner(session)
	writer := NewBulkWriter(session, o.chunkSize)
	reconciler := &Reconciler{
		session:   session,
		runner:    runner,
		writer:    writer,
		narrator:  n,
		metrics:   o.metrics,
		locks:     o.state,
		lockTTL:   o.lockTTL,
		staging:   o.staging,
		keepStage: o.keepStaging,
	}

	return &Client{
		session:    session,
		runner:     runner,
		reconciler: reconciler,
		loader: &Loader{
			session:    session,
			reconciler: reconciler,
			writer:     writer,
			journal:    o.state,
			metrics:    o.metrics,
			logger:     o.logger,
		},
		narrator: n,
	}, nil
}

// Open connects the client
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Connect(ctx); err != nil {
		c.narrator.failure(ctx, err)
		return err
	}
	c.narrator.progress(ctx, "Successfully connected to Snowflake.")
	return nil
}

// Close disconnects the client. Closing a closed client does nothing.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Close()
}

// WithClient opens a client, calls fn and closes the client, also when fn
// panics.
func WithClient(ctx context.Context, params Params, fn func(*Client) error, opts ...Option) (err error) {
	c, err := NewClient(params, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := c.Open(ctx); err != nil {
		return err
	}
	return fn(c)
}

// FetchTableData returns every row of the target table
func (c *Client) FetchTableData(ctx context.Context, t Target) (*dataset.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.narrator.progress(ctx, fmt.Sprintf("Fetching data from %s", t), targetFields(t)...)

	query := "SELECT * FROM " + c.session.idents.table(t.Database, t.Schema, t.Table)
	out, err := c.runner.Run(ctx, query, t)
	if err != nil {
		err = wrapTarget(err, "failed to fetch data from %s", t)
		c.narrator.failure(ctx, err, targetFields(t)...)
		return nil, err
	}

	c.narrator.progress(ctx, fmt.Sprintf("Successfully fetched %d rows from %s", out.Frame.Len(), t),
		append(targetFields(t), zap.Int("rows", out.Frame.Len()))...)
	return out.Frame, nil
}

// LoadFrame loads frame into the target table, adding the columns the table
// is missing first
func (c *Client) LoadFrame(ctx context.Context, frame *dataset.Frame, req LoadRequest) (*LoadOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.narrator.progress(ctx, fmt.Sprintf("Loading data into %s", req.Target), targetFields(req.Target)...)

	outcome, err := c.loader.Load(ctx, frame, req)
	if err != nil {
		c.narrator.failure(ctx, err, targetFields(req.Target)...)
		return outcome, err
	}
	if !outcome.Success {
		err := newError(KindLoad, nil, "not every chunk loaded into %s", req.Target)
		c.narrator.failure(ctx, err, targetFields(req.Target)...)
		return outcome, nil
	}

	c.narrator.progress(ctx,
		fmt.Sprintf("Successfully inserted %d rows in %d chunks into %s", outcome.Rows, outcome.Chunks, req.Target),
		append(targetFields(req.Target), zap.Int64("rows", outcome.Rows), zap.Int("chunks", outcome.Chunks))...,
	)
	return outcome, nil
}

// RunQuery runs query in the target's context
func (c *Client) RunQuery(ctx context.Context, query string, t Target) (*QueryOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.narrator.progress(ctx, fmt.Sprintf("%s data in %s", Action(query), t), targetFields(t)...)

	out, err := c.runner.Run(ctx, query, t)
	if err != nil {
		c.narrator.failure(ctx, err, append(targetFields(t), zap.String("query", query))...)
		return nil, err
	}
	return out, nil
}

// ValidateSchema adds to the target table the columns frame has and the
// table lacks, without loading any rows into the target
func (c *Client) ValidateSchema(ctx context.Context, frame *dataset.Frame, req ValidateRequest) ([]AlterEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added, err := c.reconciler.Validate(ctx, frame, req)
	if err != nil {
		c.narrator.failure(ctx, err, targetFields(req.Target)...)
		return added, err
	}
	return added, nil
}

// Journal returns the recorded loads into table, or every load when table is
// empty. It returns nil without a state manager.
func (c *Client) Journal(ctx context.Context, table string) ([]*state.State, error) {
	if c.loader.journal == nil {
		return nil, nil
	}
	return c.loader.journal.ListStates(ctx, table)
}
