package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Upstream fetch metrics
	ScraperRequestsTotal   *prometheus.CounterVec
	ScraperDurationSeconds *prometheus.HistogramVec

	// Historical query engine metrics
	HistoryQueriesTotal    *prometheus.CounterVec
	HistoryDurationSeconds *prometheus.HistogramVec
	WindowSplitsTotal      prometheus.Counter
	CappedDaysTotal        prometheus.Counter
	DuplicatesRemovedTotal prometheus.Counter

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Directory metrics
	DirectoryRefreshTotal  *prometheus.CounterVec
	DirectorySize          prometheus.Gauge
	SingleflightDedupTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimiterDropped      *prometheus.CounterVec

	// Notify job metrics
	NotifyPushesTotal *prometheus.CounterVec

	// Snapshot metrics
	SnapshotTotal *prometheus.CounterVec
	SnapshotBytes prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Upstream fetch metrics
		ScraperRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_scraper_requests_total",
				Help: "Total number of upstream requests by module and status",
			},
			[]string{"module", "status"}, // status: success, error, timeout, not_found
		),

		ScraperDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mops_scraper_duration_seconds",
				Help:    "Upstream request duration in seconds by module",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60}, // Matches request timeout + backoff
			},
			[]string{"module"}, // module: ezsearch, today, bookbuilding, directory
		),

		// Historical query engine metrics
		HistoryQueriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_history_queries_total",
				Help: "Total number of historical queries by mode and status",
			},
			[]string{"mode", "status"}, // mode: fast, full
		),

		HistoryDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mops_history_duration_seconds",
				Help:    "End-to-end historical query duration in seconds by mode",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // Full mode can take minutes
			},
			[]string{"mode"},
		),

		WindowSplitsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "mops_history_window_splits_total",
				Help: "Total number of capped windows bisected into sub-windows",
			},
		),

		CappedDaysTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "mops_history_capped_days_total",
				Help: "Total number of single-day windows accepted at the upstream cap",
			},
		),

		DuplicatesRemovedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "mops_history_duplicates_removed_total",
				Help: "Total number of duplicate records dropped during merge",
			},
		),

		// Webhook metrics
		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mops_webhook_duration_seconds",
				Help:    "Webhook processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5}, // Faster buckets for webhook
			},
			[]string{"event_type"}, // event_type: message, postback, follow
		),

		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_webhook_requests_total",
				Help: "Total number of webhook requests by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error
		),

		// HTTP metrics
		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: timeout, rate_limit, invalid_signature, etc.
		),

		// Directory metrics
		DirectoryRefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_directory_refresh_total",
				Help: "Total number of company directory refreshes by status",
			},
			[]string{"status"}, // status: success, error
		),

		DirectorySize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "mops_directory_companies",
				Help: "Number of companies currently in the directory",
			},
		),

		SingleflightDedupTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"}, // module: directory
		),

		// Rate limiter metrics
		RateLimiterWaitDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mops_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}, // 1ms to 5s
			},
			[]string{"limiter_type"}, // limiter_type: scraper, user, global
		),

		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global
		),

		// Notify job metrics
		NotifyPushesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_notify_pushes_total",
				Help: "Total number of watchlist push notifications by status",
			},
			[]string{"status"}, // status: success, error, skipped
		),

		// Snapshot metrics
		SnapshotTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mops_snapshot_total",
				Help: "Total number of database snapshot uploads by status",
			},
			[]string{"status"}, // status: success, error
		),

		SnapshotBytes: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "mops_snapshot_bytes",
				Help: "Compressed size of the most recent database snapshot",
			},
		),
	}

	return m
}

// RecordScraperRequest records an upstream request with status
func (m *Metrics) RecordScraperRequest(module, status string, duration float64) {
	m.ScraperRequestsTotal.WithLabelValues(module, status).Inc()
	m.ScraperDurationSeconds.WithLabelValues(module).Observe(duration)
}

// RecordHistoryQuery records a completed historical query
func (m *Metrics) RecordHistoryQuery(mode, status string, duration float64) {
	m.HistoryQueriesTotal.WithLabelValues(mode, status).Inc()
	m.HistoryDurationSeconds.WithLabelValues(mode).Observe(duration)
}

// RecordWindowSplit records a capped window being bisected
func (m *Metrics) RecordWindowSplit() {
	m.WindowSplitsTotal.Inc()
}

// RecordCappedDay records a single-day window accepted at the cap
func (m *Metrics) RecordCappedDay() {
	m.CappedDaysTotal.Inc()
}

// RecordDuplicatesRemoved records duplicates dropped during merge
func (m *Metrics) RecordDuplicatesRemoved(n int) {
	m.DuplicatesRemovedTotal.Add(float64(n))
}

// RecordWebhook records a webhook request
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordDirectoryRefresh records a directory refresh attempt
func (m *Metrics) RecordDirectoryRefresh(status string, size int) {
	m.DirectoryRefreshTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.DirectorySize.Set(float64(size))
	}
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordRateLimiterWait records time spent waiting for rate limiter
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordNotifyPush records a watchlist push notification attempt
func (m *Metrics) RecordNotifyPush(status string) {
	m.NotifyPushesTotal.WithLabelValues(status).Inc()
}

// RecordSnapshot records a database snapshot upload
func (m *Metrics) RecordSnapshot(status string, bytes int64) {
	m.SnapshotTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.SnapshotBytes.Set(float64(bytes))
	}
}
