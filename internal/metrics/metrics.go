package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_alerts_created_total", Help: "Detention alerts created by type."},
		[]string{"type"},
	)
	EvaluatorTicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "detention_evaluator_ticks_total", Help: "Completed alert evaluator ticks."},
	)
	EvaluatorDriverFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "detention_evaluator_driver_failures_total", Help: "Drivers skipped in a tick because evaluation failed."},
	)
	EvaluatorTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "detention_evaluator_tick_duration_seconds", Help: "Alert evaluator tick duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// DriversInDetention is set at the end of every tick
	DriversInDetention = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "detention_drivers_in_detention", Help: "Drivers currently accruing detention."},
	)
	Finalized = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "detention_finalized_total", Help: "Appointments finalized on departure."},
	)
	FinalMinutes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "detention_final_minutes", Help: "Frozen detention minutes per finalized appointment.", Buckets: []float64{0, 15, 30, 60, 120, 240, 480}},
	)

	// WebhookDeliveries counts alert webhook delivery outcomes by status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alert_webhook_deliveries_total", Help: "Alert webhook deliveries by status."},
		[]string{"status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "alert_webhook_delivery_latency_ms", Help: "Alert webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(AlertsCreated, EvaluatorTicks, EvaluatorDriverFailures, EvaluatorTickDuration, DriversInDetention)
		Registry.MustRegister(Finalized, FinalMinutes)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
