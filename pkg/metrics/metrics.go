package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Registry metrics
	RegistrationsTotal   *prometheus.CounterVec
	UnregistrationsTotal *prometheus.CounterVec
	RegisteredItems      *prometheus.GaugeVec
	HealthStatus         *prometheus.GaugeVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	WorkflowSteps     *prometheus.CounterVec
	WorkflowDuration  *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Resilience metrics
	CircuitBreakerState *prometheus.GaugeVec
	RetryAttemptsTotal  *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "agentforge",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),

		// Registry metrics
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "registrations_total",
				Help:      "Total number of item registrations",
			},
			[]string{"registry", "kind"},
		),
		UnregistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "unregistrations_total",
				Help:      "Total number of item unregistrations",
			},
			[]string{"registry"},
		),
		RegisteredItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "registered_items",
				Help:      "Number of items currently registered",
			},
			[]string{"registry"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "item_health_status",
				Help:      "Item health status (0=healthy, 1=degraded, 2=unhealthy, 3=unknown)",
			},
			[]string{"registry", "item"},
		),

		// Execution metrics
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of unit executions",
			},
			[]string{"registry", "item", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Unit execution duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"registry", "item", "status"},
		),
		WorkflowSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "workflow_steps_total",
				Help:      "Total number of workflow steps executed",
			},
			[]string{"strategy", "status"},
		),
		WorkflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "workflow_duration_seconds",
				Help:      "Workflow execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"strategy", "status"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),

		// Resilience metrics
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
		RetryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation", "outcome"},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "error_type"},
		),
		PanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"component"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RegistrationsTotal,
		m.UnregistrationsTotal,
		m.RegisteredItems,
		m.HealthStatus,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.WorkflowSteps,
		m.WorkflowDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
		m.RetryAttemptsTotal,
		m.ErrorsTotal,
		m.PanicsTotal,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordRegistration records an item registration
func (m *Metrics) RecordRegistration(registry, kind string) {
	if m.RegistrationsTotal == nil {
		return
	}

	m.RegistrationsTotal.WithLabelValues(registry, kind).Inc()
}

// RecordUnregistration records an item unregistration
func (m *Metrics) RecordUnregistration(registry string) {
	if m.UnregistrationsTotal == nil {
		return
	}

	m.UnregistrationsTotal.WithLabelValues(registry).Inc()
}

// UpdateRegisteredItems updates the registered item count for a registry
func (m *Metrics) UpdateRegisteredItems(registry string, count int) {
	if m.RegisteredItems == nil {
		return
	}

	m.RegisteredItems.WithLabelValues(registry).Set(float64(count))
}

// UpdateHealthStatus updates an item's health gauge
func (m *Metrics) UpdateHealthStatus(registry, item string, status float64) {
	if m.HealthStatus == nil {
		return
	}

	m.HealthStatus.WithLabelValues(registry, item).Set(status)
}

// RecordExecution records unit execution metrics
func (m *Metrics) RecordExecution(registry, item, status string, duration time.Duration) {
	if m.ExecutionsTotal == nil {
		return
	}

	m.ExecutionsTotal.WithLabelValues(registry, item, status).Inc()
	m.ExecutionDuration.WithLabelValues(registry, item, status).Observe(duration.Seconds())
}

// RecordWorkflowStep records a workflow step outcome
func (m *Metrics) RecordWorkflowStep(strategy, status string) {
	if m.WorkflowSteps == nil {
		return
	}

	m.WorkflowSteps.WithLabelValues(strategy, status).Inc()
}

// RecordWorkflow records a completed workflow run
func (m *Metrics) RecordWorkflow(strategy, status string, duration time.Duration) {
	if m.WorkflowDuration == nil {
		return
	}

	m.WorkflowDuration.WithLabelValues(strategy, status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cache string) {
	if m.CacheHitsTotal == nil {
		return
	}

	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	if m.CacheMissesTotal == nil {
		return
	}

	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// UpdateCircuitBreakerState updates a breaker's state gauge
func (m *Metrics) UpdateCircuitBreakerState(breaker string, state float64) {
	if m.CircuitBreakerState == nil {
		return
	}

	m.CircuitBreakerState.WithLabelValues(breaker).Set(state)
}

// RecordRetryAttempt records a retry attempt outcome
func (m *Metrics) RecordRetryAttempt(operation, outcome string) {
	if m.RetryAttemptsTotal == nil {
		return
	}

	m.RetryAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordPanic records panic metrics
func (m *Metrics) RecordPanic(component string) {
	if m.PanicsTotal == nil {
		return
	}

	m.PanicsTotal.WithLabelValues(component).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
