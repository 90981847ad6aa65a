package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// User outcome labels for UsersProcessed.
const (
	UserProcessed = "processed"
	UserFailed    = "failed"
	UserSkipped   = "skipped"
	UserUnchanged = "unchanged"
)

// Cache result labels for CacheRequests.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheOK    = "ok"
	CacheError = "error"
)

// Job outcome labels for JobRuns.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobSkipped   = "skipped"
)

// Manager owns a registry and every metric the engine records.
// All recording methods are safe on a nil Manager.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	registry       *prometheus.Registry

	// Batch pipeline
	usersProcessed  *prometheus.CounterVec
	batchRuns       *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	computeDuration prometheus.Histogram
	scoreValues     prometheus.Histogram

	// Ranking
	rankPassDuration prometheus.Histogram
	rankPassErrors   prometheus.Counter
	rankedUsers      prometheus.Gauge

	// Cache
	cacheRequests *prometheus.CounterVec

	// Scheduler
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager with its own registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "profile_analytics",
		subsystem:      "engine",
		latencyBuckets: prometheus.DefBuckets,
		enabled:        true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.usersProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "users_total",
		Help:      "Users handled by recalculation runs, by outcome",
	}, []string{"status"})

	m.batchRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_runs_total",
		Help:      "Recalculation runs, by outcome",
	}, []string{"outcome"})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a full recalculation run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.computeDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "user_compute_duration_seconds",
		Help:      "Time to gather facts and score one user",
		Buckets:   m.latencyBuckets,
	})

	m.scoreValues = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_score",
		Help:      "Distribution of computed total scores",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	m.rankPassDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rank_pass_duration_seconds",
		Help:      "Time to snapshot the population and write ranks",
		Buckets:   m.latencyBuckets,
	})

	m.rankPassErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rank_pass_errors_total",
		Help:      "Rank passes that did not commit",
	})

	m.rankedUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranked_users",
		Help:      "Population size of the last committed rank pass",
	})

	m.cacheRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_requests_total",
		Help:      "Analytics cache operations, by operation and result",
	}, []string{"operation", "result"})

	m.jobRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions, by job and outcome",
	}, []string{"job", "outcome"})

	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job wall time",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"job"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.latencyBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) active() bool { return m != nil && m.enabled }

// RecordUser counts one user outcome.
func (m *Manager) RecordUser(status string) {
	if !m.active() {
		return
	}
	m.usersProcessed.WithLabelValues(status).Inc()
}

// ObserveBatch records a finished run.
func (m *Manager) ObserveBatch(d time.Duration, cancelled bool) {
	if !m.active() {
		return
	}
	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	m.batchRuns.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// ObserveCompute records the time spent scoring one user and the resulting score.
func (m *Manager) ObserveCompute(d time.Duration, totalScore int) {
	if !m.active() {
		return
	}
	m.computeDuration.Observe(d.Seconds())
	m.scoreValues.Observe(float64(totalScore))
}

// ObserveRankPass records a rank pass. ranked is ignored when err is non-nil.
func (m *Manager) ObserveRankPass(d time.Duration, ranked int, err error) {
	if !m.active() {
		return
	}
	m.rankPassDuration.Observe(d.Seconds())
	if err != nil {
		m.rankPassErrors.Inc()
		return
	}
	m.rankedUsers.Set(float64(ranked))
}

// RecordCache counts one cache operation.
func (m *Manager) RecordCache(operation, result string) {
	if !m.active() {
		return
	}
	m.cacheRequests.WithLabelValues(operation, result).Inc()
}

// ObserveJob records one scheduled job execution. Overlapping ticks that were
// dropped are recorded with outcome "skipped" and no duration.
func (m *Manager) ObserveJob(job, outcome string, d time.Duration) {
	if !m.active() {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != JobSkipped {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(route, method string, status int, d time.Duration) {
	if !m.active() {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
