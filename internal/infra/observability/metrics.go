package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the CashBook BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	reportsBuilt    *prometheus.CounterVec
	recordsRejected prometheus.Counter
	amountsCoerced  prometheus.Counter
	exports         *prometheus.CounterVec
	backups         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cashbook_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_external_errors_total",
				Help: "Total errors from the data backend, storage and broker.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		reportsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_reports_total",
				Help: "Reports built, by whether the recent-transactions fallback was used.",
			},
			[]string{"fallback"},
		),
		recordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashbook_records_rejected_total",
			Help: "Stored transaction records dropped by the normalizer.",
		}),
		amountsCoerced: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashbook_amounts_coerced_total",
			Help: "Stored amounts that were missing or unparseable and read as zero.",
		}),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_exports_total",
				Help: "Export attempts by format and outcome.",
			},
			[]string{"format", "outcome"},
		),
		backups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashbook_backups_total",
				Help: "Backup jobs by status.",
			},
			[]string{"status"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordReport counts a built report.
func (m *Metrics) RecordReport(fallback bool) {
	m.reportsBuilt.WithLabelValues(strconv.FormatBool(fallback)).Inc()
}

// RecordNormalization counts what the normalizer had to drop or coerce.
func (m *Metrics) RecordNormalization(rejected, coerced int) {
	m.recordsRejected.Add(float64(rejected))
	m.amountsCoerced.Add(float64(coerced))
}

// RecordExport counts an export attempt; outcome is ok, empty or error.
func (m *Metrics) RecordExport(format, outcome string) {
	m.exports.WithLabelValues(format, outcome).Inc()
}

// RecordBackup counts a backup job transition (queued, completed, failed).
func (m *Metrics) RecordBackup(status string) {
	m.backups.WithLabelValues(status).Inc()
}

// Snapshot returns the counters backing GET /v1/stats.
func (m *Metrics) Snapshot() *domain.ServiceStats {
	hits := getCounterValue(m.cacheHits, "transactions")
	misses := getCounterValue(m.cacheMisses, "transactions")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	exports := float64(0)
	for _, f := range []string{"csv", "json", "txt"} {
		exports += getCounterValue(m.exports, f, "ok")
	}

	fallback := getCounterValue(m.reportsBuilt, "true")

	return &domain.ServiceStats{
		ReportsBuilt:     int64(fallback + getCounterValue(m.reportsBuilt, "false")),
		ExportsRendered:  int64(exports),
		RecordsRejected:  int64(counterValue(m.recordsRejected)),
		AmountsCoerced:   int64(counterValue(m.amountsCoerced)),
		FallbackReports:  int64(fallback),
		CacheHitRate:     hitRate,
		BackupsQueued:    int64(getCounterValue(m.backups, "queued")),
		BackupsCompleted: int64(getCounterValue(m.backups, "completed")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return counterValue(cv.WithLabelValues(labels...))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
