// Package metrics provides Prometheus metrics for warehouse loads and
// statements.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is the Prometheus namespace for all metrics
	Namespace = "snowclient"

	SubsystemLoad      = "load"
	SubsystemSchema    = "schema"
	SubsystemStatement = "statement"
)

// Label constants
const (
	LabelTable  = "table"
	LabelKind   = "kind"
	LabelStatus = "status"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	LoadRows          *prometheus.CounterVec
	LoadChunks        *prometheus.CounterVec
	LoadFailures      *prometheus.CounterVec
	ColumnsAdded      *prometheus.CounterVec
	Statements        *prometheus.CounterVec
	StatementDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		LoadRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: SubsystemLoad,
				Name:      "rows_total",
				Help:      "Total number of rows loaded into tables",
			},
			[]string{LabelTable},
		),
		LoadChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: SubsystemLoad,
				Name:      "chunks_total",
				Help:      "Total number of chunks copied into tables",
			},
			[]string{LabelTable},
		),
		LoadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: SubsystemLoad,
				Name:      "failures_total",
				Help:      "Total number of failed loads",
			},
			[]string{LabelTable},
		),
		ColumnsAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: SubsystemSchema,
				Name:      "columns_added_total",
				Help:      "Total number of columns added by schema reconciliation",
			},
			[]string{LabelTable},
		),
		Statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: SubsystemStatement,
				Name:      "total",
				Help:      "Total number of statements executed",
			},
			[]string{LabelKind, LabelStatus},
		),
		StatementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: SubsystemStatement,
				Name:      "duration_seconds",
				Help:      "Statement execution time",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{LabelKind},
		),
	}

	for _, c := range []prometheus.Collector{
		m.LoadRows, m.LoadChunks, m.LoadFailures, m.ColumnsAdded, m.Statements, m.StatementDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStatement records one executed statement
func (m *Metrics) ObserveStatement(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Statements.WithLabelValues(kind, status).Inc()
	m.StatementDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordLoad records a finished load
func (m *Metrics) RecordLoad(table string, rows int64, chunks int, success bool) {
	if m == nil {
		return
	}
	m.LoadRows.WithLabelValues(table).Add(float64(rows))
	m.LoadChunks.WithLabelValues(table).Add(float64(chunks))
	if !success {
		m.LoadFailures.WithLabelValues(table).Inc()
	}
}

// RecordLoadFailure records a load that aborted with an error
func (m *Metrics) RecordLoadFailure(table string) {
	if m == nil {
		return
	}
	m.LoadFailures.WithLabelValues(table).Inc()
}

// AddColumns records columns added to table
func (m *Metrics) AddColumns(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ColumnsAdded.WithLabelValues(table).Add(float64(n))
}
