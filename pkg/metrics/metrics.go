package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pathsql_build_info",
			Help: "Build information of pathsql",
		},
		[]string{"version", "commit", "date"},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathsql_generations_total",
			Help: "Total number of query generations by outcome",
		},
		[]string{"model", "class", "status"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathsql_gateway_requests_total",
			Help: "Total number of model gateway requests",
		},
		[]string{"provider", "model", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pathsql_gateway_request_duration_seconds",
			Help:    "Duration of model gateway requests in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	GatewayTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathsql_gateway_tokens_total",
			Help: "Total number of tokens used by model gateway requests",
		},
		[]string{"model", "type"},
	)

	GatewayCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pathsql_gateway_cache_hits_total",
			Help: "Total number of model responses served from cache",
		},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pathsql_execution_duration_seconds",
			Help:    "Duration of candidate query executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	ExecutionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathsql_execution_errors_total",
			Help: "Total number of failed candidate query executions by error class",
		},
		[]string{"code"},
	)

	RepairAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathsql_repair_attempts_total",
			Help: "Total number of repair requests by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordGatewayRequest records one model gateway call.
func RecordGatewayRequest(provider, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	GatewayRequestsTotal.WithLabelValues(provider, model, status).Inc()
	GatewayRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if err == nil {
		GatewayTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		GatewayTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordExecution records one candidate execution. code is empty on success.
func RecordExecution(duration time.Duration, code string) {
	status := "success"
	if code != "" {
		status = "error"
		ExecutionErrorsTotal.WithLabelValues(code).Inc()
	}
	ExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordGeneration records the outcome of one generation.
func RecordGeneration(model, class, status string) {
	GenerationsTotal.WithLabelValues(model, class, status).Inc()
}

// RecordRepair records the outcome of one repair request.
func RecordRepair(outcome string) {
	RepairAttemptsTotal.WithLabelValues(outcome).Inc()
}
