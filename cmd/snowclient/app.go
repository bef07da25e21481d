package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/config"
	"github.com/gerhard-ee/snowclient/internal/logging"
	"github.com/gerhard-ee/snowclient/internal/metrics"
	"github.com/gerhard-ee/snowclient/internal/state"
	"github.com/gerhard-ee/snowclient/pkg/notify"
	"github.com/gerhard-ee/snowclient/pkg/snowflake"
)

const shutdownTimeout = 10 * time.Second

// app holds everything a command needs to talk to Snowflake
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *snowflake.Client
	slack    *notify.Slack
	manager  state.Manager
	registry *prometheus.Registry
}

func newApp(ctx *Context) (*app, error) {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if ctx.LogLevel != "" {
		level = ctx.LogLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.init(); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	params, err := a.cfg.Params()
	if err != nil {
		return err
	}

	a.manager, err = state.NewManager(a.cfg.StateManager())
	if err != nil {
		return fmt.Errorf("failed to create state manager: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.Slack.Enabled {
		a.slack, err = notify.NewSlack(a.cfg.SlackNotifier(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to create slack notifier: %w", err)
		}
		notifier = a.slack
	}

	m, err := metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	a.client, err = snowflake.NewClient(params, clientOptions(a.cfg, a.logger, notifier, a.manager, m)...)
	return err
}

func clientOptions(cfg *config.Config, logger *zap.Logger, notifier notify.Notifier, manager state.Manager, m *metrics.Metrics) []snowflake.Option {
	opts := []snowflake.Option{
		snowflake.WithLogger(logger),
		snowflake.WithNotifier(notifier),
		snowflake.WithStagingLocation(cfg.Staging.Database, cfg.Staging.Schema),
		snowflake.WithKeepStagingTable(cfg.Staging.KeepTable),
		snowflake.WithQuoteIdentifiers(cfg.Load.QuoteIdentifiers),
		snowflake.WithStateManager(manager),
		snowflake.WithLockTTL(cfg.State.LockTTL),
		snowflake.WithMetrics(m),
	}
	if cfg.Load.ChunkSize > 0 {
		opts = append(opts, snowflake.WithChunkSize(cfg.Load.ChunkSize))
	}
	if cfg.Snowflake.QueryTimeout > 0 {
		opts = append(opts, snowflake.WithQueryTimeout(cfg.Snowflake.QueryTimeout))
	}
	return opts
}

// open connects the client
func (a *app) open(ctx context.Context) error {
	return a.client.Open(ctx)
}

// close releases the connection, drains pending notifications and pushes
// metrics when a Pushgateway is configured
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("failed to close snowflake connection", zap.Error(err))
		}
	}
	if a.slack != nil {
		if err := a.slack.Close(ctx); err != nil {
			a.logger.Warn("failed to flush slack notifications", zap.Error(err))
		}
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := metrics.Push(ctx, url, a.cfg.Metrics.Job, a.registry); err != nil {
			a.logger.Warn("failed to push metrics", zap.Error(err))
		}
	}
	logging.Sync(a.logger)()
}

// withApp builds the app, connects and runs fn
func withApp(ctx *Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.open(ctx); err != nil {
		return err
	}
	return fn(a)
}
