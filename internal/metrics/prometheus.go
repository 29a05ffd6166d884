// Package metrics registers and records Prometheus metrics for the analyzer
// subsystems: metric computation, the HTTP API, gRPC, MQTT ingestion, job
// dispatch and report storage.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal           *prometheus.CounterVec
	AnalysisDuration        prometheus.Histogram
	MetricComputations      *prometheus.CounterVec
	MetricDuration          *prometheus.HistogramVec
	SBoxNonlinearity        prometheus.Histogram
	SBoxLAP                 prometheus.Histogram
	SBoxDAP                 prometheus.Histogram
	HTTPRequests            *prometheus.CounterVec
	HTTPLatency             *prometheus.HistogramVec
	HTTPRateLimited         prometheus.Counter
	HTTP503Total            prometheus.Counter
	GRPCRequests            *prometheus.CounterVec
	GRPCClientConnected     prometheus.Gauge
	GRPCClientErrors        *prometheus.CounterVec
	MQTTConnected           prometheus.Gauge
	MQTTConnects            prometheus.Counter
	MQTTDisconnects         prometheus.Counter
	MQTTReconnects          prometheus.Counter
	MQTTInboundMessages     prometheus.Counter
	MQTTMessagesDropped     *prometheus.CounterVec
	MQTTPublished           *prometheus.CounterVec
	DispatchQueueDepth      prometheus.Gauge
	DispatchJobs            *prometheus.CounterVec
	DispatchJobDuration     prometheus.Histogram
	StoreOperations         *prometheus.CounterVec
	StoredReports           prometheus.Gauge
	metricsMu               sync.RWMutex
	currentRegisterer       prometheus.Registerer = prometheus.DefaultRegisterer
	registeredCollectorList []prometheus.Collector
)

func init() {
	resetMetrics(prometheus.DefaultRegisterer)
}

// SetRegisterer sets a new registerer and reinitializes all metrics.
// It returns the previous registerer so it can be restored later.
func SetRegisterer(registerer prometheus.Registerer) prometheus.Registerer {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	previous := currentRegisterer
	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}
	currentRegisterer = registerer
	initializeMetrics(registerer)

	return previous
}

// ResetForTesting reconfigures all metric collectors against the provided
// registerer, unregistering them from the previous one first.
func ResetForTesting(registerer prometheus.Registerer) {
	resetMetrics(registerer)
}

func resetMetrics(registerer prometheus.Registerer) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}
	currentRegisterer = registerer
	initializeMetrics(registerer)
}

// initializeMetrics creates all metrics using the provided registerer.
// This function must be called while holding metricsMu.
func initializeMetrics(registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	AnalysesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of S-box analyses by outcome",
		},
		[]string{"status"},
	)

	AnalysisDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Wall time of a complete analysis including all selected metrics",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
	)

	MetricComputations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metric_computations_total",
			Help: "Total number of individual metric computations",
		},
		[]string{"metric"},
	)

	MetricDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metric_duration_seconds",
			Help:    "Time taken to compute a single metric",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"metric"},
	)

	SBoxNonlinearity = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbox_nonlinearity",
			Help:    "Distribution of computed nonlinearity values (112 for AES)",
			Buckets: prometheus.LinearBuckets(0, 8, 17),
		},
	)

	SBoxLAP = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbox_lap",
			Help:    "Distribution of computed linear approximation probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.03125, 17),
		},
	)

	SBoxDAP = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbox_dap",
			Help:    "Distribution of computed differential approximation probabilities",
			Buckets: prometheus.ExponentialBuckets(0.0078125, 2, 8),
		},
	)

	HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP API requests by endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)

	HTTPLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"endpoint"},
	)

	HTTPRateLimited = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total HTTP API requests rejected by the rate limiter",
		},
	)

	HTTP503Total = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "http_503_total",
			Help: "Total HTTP API responses with status 503",
		},
	)

	GRPCRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total gRPC analysis requests served by status code",
		},
		[]string{"code"},
	)

	GRPCClientConnected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "grpc_client_connected",
			Help: "Remote analyzer connection status (1 = connected, 0 = disconnected)",
		},
	)

	GRPCClientErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_client_errors_total",
			Help: "Total remote analysis errors by type",
		},
		[]string{"error_type"},
	)

	MQTTConnected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "mqtt_connected",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	MQTTConnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_connects_total",
			Help: "Total successful MQTT connections",
		},
	)

	MQTTDisconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_disconnects_total",
			Help: "Total MQTT disconnections",
		},
	)

	MQTTReconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_reconnects_total",
			Help: "Total MQTT reconnection attempts",
		},
	)

	MQTTInboundMessages = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_inbound_messages_total",
			Help: "Total MQTT analysis requests received before decoding",
		},
	)

	MQTTMessagesDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_dropped_total",
			Help: "Total MQTT analysis requests dropped by reason",
		},
		[]string{"reason"},
	)

	MQTTPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_published_total",
			Help: "Total MQTT result publications by outcome",
		},
		[]string{"result"},
	)

	DispatchQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of analysis jobs waiting in the dispatch queue",
		},
	)

	DispatchJobs = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_total",
			Help: "Total dispatched analysis jobs by result",
		},
		[]string{"result"},
	)

	DispatchJobDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_job_duration_seconds",
			Help:    "Time from job dequeue to completion",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
	)

	StoreOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total report store operations by operation and result",
		},
		[]string{"op", "result"},
	)

	StoredReports = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "stored_reports",
			Help: "Number of reports held by the in-memory store",
		},
	)

	registeredCollectorList = []prometheus.Collector{
		AnalysesTotal, AnalysisDuration, MetricComputations, MetricDuration,
		SBoxNonlinearity, SBoxLAP, SBoxDAP,
		HTTPRequests, HTTPLatency, HTTPRateLimited, HTTP503Total,
		GRPCRequests, GRPCClientConnected, GRPCClientErrors,
		MQTTConnected, MQTTConnects, MQTTDisconnects, MQTTReconnects,
		MQTTInboundMessages, MQTTMessagesDropped, MQTTPublished,
		DispatchQueueDepth, DispatchJobs, DispatchJobDuration,
		StoreOperations, StoredReports,
	}
}

func unregisterAll(registerer prometheus.Registerer) {
	for _, c := range registeredCollectorList {
		if c != nil {
			registerer.Unregister(c)
		}
	}
}

// RecordAnalysis records the outcome and duration of one analysis.
func RecordAnalysis(status string, duration time.Duration) {
	AnalysesTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	AnalysisDuration.Observe(duration.Seconds())
}

// RecordMetricComputation records one computed metric and how long it took.
func RecordMetricComputation(metric string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	MetricComputations.WithLabelValues(metric).Inc()
	MetricDuration.WithLabelValues(metric).Observe(duration.Seconds())
}

// ObserveNonlinearity adds a nonlinearity result to its distribution.
func ObserveNonlinearity(nl int) {
	SBoxNonlinearity.Observe(float64(nl))
}

// ObserveLAP adds a LAP result to its distribution.
func ObserveLAP(lap float64) {
	SBoxLAP.Observe(lap)
}

// ObserveDAP adds a DAP result to its distribution.
func ObserveDAP(dap float64) {
	SBoxDAP.Observe(dap)
}

// RecordHTTPRequest tracks status codes and latency for an API endpoint.
func RecordHTTPRequest(endpoint string, code int, duration time.Duration) {
	label := strconv.Itoa(code)
	if code <= 0 {
		label = "0"
	}
	if duration < 0 {
		duration = 0
	}
	HTTPRequests.WithLabelValues(endpoint, label).Inc()
	HTTPLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHTTP503 increments the total 503 counter.
func RecordHTTP503() {
	HTTP503Total.Inc()
}

// RecordHTTPRateLimited tracks rate-limited API responses.
func RecordHTTPRateLimited() {
	HTTPRateLimited.Inc()
}

// RecordGRPCRequest counts a served gRPC request by status code name.
func RecordGRPCRequest(code string) {
	GRPCRequests.WithLabelValues(code).Inc()
}

// SetGRPCClientConnected sets the remote analyzer connection status.
func SetGRPCClientConnected(connected bool) {
	if connected {
		GRPCClientConnected.Set(1)
	} else {
		GRPCClientConnected.Set(0)
	}
}

// RecordGRPCClientError records a remote analysis error
func RecordGRPCClientError(errorType string) {
	GRPCClientErrors.WithLabelValues(errorType).Inc()
}

// SetMQTTConnected sets the MQTT connection status
func SetMQTTConnected(connected bool) {
	if connected {
		MQTTConnected.Set(1)
	} else {
		MQTTConnected.Set(0)
	}
}

// RecordMQTTConnect tracks successful MQTT connections.
func RecordMQTTConnect() {
	MQTTConnects.Inc()
}

// RecordMQTTDisconnect tracks MQTT disconnects, whether expected or due to errors.
func RecordMQTTDisconnect() {
	MQTTDisconnects.Inc()
}

// RecordMQTTReconnect increments MQTT reconnection counter
func RecordMQTTReconnect() {
	MQTTReconnects.Inc()
}

// RecordMQTTMessage counts inbound MQTT messages prior to decoding.
func RecordMQTTMessage() {
	MQTTInboundMessages.Inc()
}

// RecordMQTTDropped counts an MQTT request that never reached the dispatcher.
func RecordMQTTDropped(reason string) {
	MQTTMessagesDropped.WithLabelValues(reason).Inc()
}

// RecordMQTTPublish counts a result publication.
func RecordMQTTPublish(success bool) {
	if success {
		MQTTPublished.WithLabelValues("ok").Inc()
	} else {
		MQTTPublished.WithLabelValues("error").Inc()
	}
}

// SetDispatchQueueDepth updates the number of pending jobs.
func SetDispatchQueueDepth(depth int) {
	DispatchQueueDepth.Set(float64(depth))
}

// RecordDispatchJob records a finished job.
func RecordDispatchJob(result string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	DispatchJobs.WithLabelValues(result).Inc()
	DispatchJobDuration.Observe(duration.Seconds())
}

// RecordStoreOperation counts a store call with its result ("ok", "miss" or
// "error").
func RecordStoreOperation(op, result string) {
	StoreOperations.WithLabelValues(op, result).Inc()
}

// SetStoredReports publishes the in-memory store size.
func SetStoredReports(n int) {
	StoredReports.Set(float64(n))
}
