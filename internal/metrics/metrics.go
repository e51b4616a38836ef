package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fueltrack_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	webhookRequests *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec

	normalizeShapes    *prometheus.CounterVec
	normalizeRecords   prometheus.Counter
	normalizeEstimated prometheus.Counter

	formSubmissions *prometheus.CounterVec

	analyticsLoads  *prometheus.CounterVec
	analyticsStale  prometheus.Counter
	refreshSignals  *prometheus.CounterVec
	chartRenders    *prometheus.CounterVec
	exportTotal     *prometheus.CounterVec
	exportLatency   *prometheus.HistogramVec
	stubStoreWrites *prometheus.CounterVec

	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	httpRateLimited prometheus.Counter
	httpSuspicious  prometheus.Counter
)

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		webhookRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "webhook_requests_total",
				Help: "Webhook calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		webhookLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "webhook_latency_seconds",
				Help:    "Webhook round trip latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "result"},
		)

		normalizeShapes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "normalize_payloads_total",
				Help: "History payloads normalized, by detected shape",
			},
			[]string{"shape"},
		)
		normalizeRecords = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "normalize_records_total",
				Help: "Records produced by the normalizer",
			},
		)
		normalizeEstimated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "normalize_estimated_dates_total",
				Help: "Records whose date fell back to the processing time",
			},
		)

		formSubmissions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "form_submissions_total",
				Help: "Fill-up form submissions by outcome",
			},
			[]string{"outcome"},
		)

		analyticsLoads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_loads_total",
				Help: "Analytics loads by resulting status",
			},
			[]string{"status"},
		)
		analyticsStale = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_stale_results_total",
				Help: "Load results discarded because a newer one was already published",
			},
		)
		refreshSignals = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_signals_total",
				Help: "Refresh signals by source",
			},
			[]string{"source"},
		)
		chartRenders = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chart_renders_total",
				Help: "Chart renders by chart and result",
			},
			[]string{"chart", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "History exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		stubStoreWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stub_store_writes_total",
				Help: "Fill-ups stored by the webhook stand-in, by backend and result",
			},
			[]string{"backend", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Dashboard HTTP requests by method and status class",
			},
			[]string{"method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "Dashboard HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
		httpRateLimited = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		)
		httpSuspicious = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_suspicious_requests_total",
				Help: "Requests flagged by the security detector",
			},
		)

		prometheus.MustRegister(
			webhookRequests,
			webhookLatency,
			normalizeShapes,
			normalizeRecords,
			normalizeEstimated,
			formSubmissions,
			analyticsLoads,
			analyticsStale,
			refreshSignals,
			chartRenders,
			exportTotal,
			exportLatency,
			stubStoreWrites,
			httpRequests,
			httpLatency,
			httpRateLimited,
			httpSuspicious,
		)
	})
}

// ObserveWebhook records one webhook round trip.
func ObserveWebhook(endpoint, result string, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if webhookRequests != nil {
		webhookRequests.WithLabelValues(endpoint, result).Inc()
	}
	if webhookLatency != nil {
		webhookLatency.WithLabelValues(endpoint, result).Observe(duration.Seconds())
	}
}

// ObserveNormalize records the detected shape and record counts.
func ObserveNormalize(shape string, records, estimated int) {
	if normalizeShapes != nil {
		normalizeShapes.WithLabelValues(shape).Inc()
	}
	if normalizeRecords != nil && records > 0 {
		normalizeRecords.Add(float64(records))
	}
	if normalizeEstimated != nil && estimated > 0 {
		normalizeEstimated.Add(float64(estimated))
	}
}

// IncFormSubmission counts a form submission outcome.
func IncFormSubmission(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if formSubmissions != nil {
		formSubmissions.WithLabelValues(outcome).Inc()
	}
}

// IncAnalyticsLoad counts a published analytics snapshot.
func IncAnalyticsLoad(status string) {
	if analyticsLoads != nil {
		analyticsLoads.WithLabelValues(status).Inc()
	}
}

// IncAnalyticsStale counts a discarded out-of-order load result.
func IncAnalyticsStale() {
	if analyticsStale != nil {
		analyticsStale.Inc()
	}
}

// IncRefresh counts a refresh signal.
func IncRefresh(source string) {
	if refreshSignals != nil {
		refreshSignals.WithLabelValues(source).Inc()
	}
}

// IncChartRender counts a chart render.
func IncChartRender(chart, result string) {
	if chartRenders != nil {
		chartRenders.WithLabelValues(chart, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncStubWrite counts a write performed by the webhook stand-in.
func IncStubWrite(backend, result string) {
	if stubStoreWrites != nil {
		stubStoreWrites.WithLabelValues(backend, result).Inc()
	}
}

// ObserveHTTP records one served request. Status codes are grouped by
// class ("2xx", "4xx", ...) to bound cardinality.
func ObserveHTTP(method string, status int, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, StatusClass(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method).Observe(duration.Seconds())
	}
}

func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}

func IncRateLimited() {
	if httpRateLimited != nil {
		httpRateLimited.Inc()
	}
}

func IncSuspicious() {
	if httpSuspicious != nil {
		httpSuspicious.Inc()
	}
}

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	EndpointSubmit  = "submit"
	EndpointHistory = "history"

	RefreshLocal  = "local"
	RefreshRemote = "amqp"
)
