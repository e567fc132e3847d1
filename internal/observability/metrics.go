// Package observability provides Prometheus collectors and OpenTelemetry tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CascadeThreadsDeleted records how many threads each cascade removed.
	CascadeThreadsDeleted = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_cascade_threads_deleted",
		Help:    "Number of threads removed by a single cascade deletion",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"kind"})

	// CascadeDuration records end-to-end cascade latency.
	CascadeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_cascade_duration_seconds",
		Help:    "Cascade deletion duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// CascadePartialFailures counts cascades whose follow-up cleanup did not finish.
	CascadePartialFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_cascade_partial_failures_total",
		Help: "Total number of cascades that committed with pending cleanup",
	}, []string{"kind"})

	// MembershipOperations counts membership link changes by outcome.
	MembershipOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_membership_operations_total",
		Help: "Total number of membership add/remove operations",
	}, []string{"operation", "outcome"})

	// StoreRetries counts retried store operations.
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_store_retries_total",
		Help: "Total number of store operations retried after a transient failure",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_cache_lookups_total",
		Help: "Total number of cache lookups by result",
	}, []string{"result"})
)

const queryStartKey = "agora:query_start"

// DatabaseMetrics records per-statement latency through GORM callbacks.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// Register installs before/after callbacks on every GORM processor.
func (m *DatabaseMetrics) Register() error {
	cb := m.db.Callback()

	type processor struct {
		name   string
		before func(string) error
		after  func(string) error
	}
	processors := []processor{
		{"create",
			func(n string) error { return cb.Create().Before("gorm:create").Register(n, m.start) },
			func(n string) error { return cb.Create().After("gorm:create").Register(n, m.finish("create")) }},
		{"query",
			func(n string) error { return cb.Query().Before("gorm:query").Register(n, m.start) },
			func(n string) error { return cb.Query().After("gorm:query").Register(n, m.finish("query")) }},
		{"update",
			func(n string) error { return cb.Update().Before("gorm:update").Register(n, m.start) },
			func(n string) error { return cb.Update().After("gorm:update").Register(n, m.finish("update")) }},
		{"delete",
			func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, m.start) },
			func(n string) error { return cb.Delete().After("gorm:delete").Register(n, m.finish("delete")) }},
		{"raw",
			func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, m.start) },
			func(n string) error { return cb.Raw().After("gorm:raw").Register(n, m.finish("raw")) }},
	}

	for _, p := range processors {
		if err := p.before("metrics:before_" + p.name); err != nil {
			return err
		}
		if err := p.after("metrics:after_" + p.name); err != nil {
			return err
		}
	}
	return nil
}

func (m *DatabaseMetrics) start(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (m *DatabaseMetrics) finish(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		table := "unknown"
		if db.Statement != nil && db.Statement.Table != "" {
			table = db.Statement.Table
		}
		m.ObserveQuery(operation, table, start)
	}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// ObserveCascade records the size and duration of one cascade.
func ObserveCascade(kind string, deleted int, start time.Time) {
	CascadeThreadsDeleted.WithLabelValues(kind).Observe(float64(deleted))
	CascadeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
