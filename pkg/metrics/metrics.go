package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec
	RateLimitedTotal   prometheus.Counter

	// Simulation Metrics
	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	SimulatedYears     prometheus.Counter
	TreesPlanted       prometheus.Histogram

	// Curve Fitting Metrics
	FitsTotal      *prometheus.CounterVec
	FitDuration    prometheus.Histogram
	FitEvaluations prometheus.Histogram
	CacheLookups   *prometheus.CounterVec

	// Catalog Ingestion Metrics
	CatalogSpeciesTotal prometheus.Counter
	CatalogErrorsTotal  *prometheus.CounterVec

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector registers the application metrics on reg. Passing
// prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),

		SimulationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_total",
				Help:      "Total number of woodland simulations by outcome",
			},
			[]string{"outcome"}, // "ok", "invalid", "cancelled", "error"
		),

		SimulationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulation_duration_seconds",
				Help:      "Duration of woodland simulations in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),

		SimulatedYears: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulated_years_total",
				Help:      "Total number of woodland years simulated",
			},
		),

		TreesPlanted: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulation_trees",
				Help:      "Number of trees planted per simulation",
				Buckets:   []float64{10, 100, 1000, 5000, 10000, 50000, 100000, 1000000},
			},
		),

		FitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "growth_fits_total",
				Help:      "Total number of growth curve fits by outcome",
			},
			[]string{"outcome"},
		),

		FitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "growth_fit_duration_seconds",
				Help:      "Duration of growth curve fits in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		FitEvaluations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "growth_fit_evaluations",
				Help:      "Model evaluations used per successful fit",
				Buckets:   []float64{5, 10, 20, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fit_cache_lookups_total",
				Help:      "Fitted parameter cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss", "error"
		),

		CatalogSpeciesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_species_loaded_total",
				Help:      "Total number of species definitions stored from catalog files",
			},
		),

		CatalogErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of catalog ingestion errors by type",
			},
			[]string{"error_type"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordSimulation counts a finished simulation and its size
func (c *Collector) RecordSimulation(outcome string, trees, years int) {
	c.SimulationsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		c.TreesPlanted.Observe(float64(trees))
		c.SimulatedYears.Add(float64(years))
	}
}

// RecordFit counts a curve fit and, when it succeeded, its evaluation count
func (c *Collector) RecordFit(outcome string, evaluations int) {
	c.FitsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		c.FitEvaluations.Observe(float64(evaluations))
	}
}

// RecordCacheLookup counts a fit cache lookup
func (c *Collector) RecordCacheLookup(result string) {
	c.CacheLookups.WithLabelValues(result).Inc()
}

// RecordCatalogError increments catalog ingestion error counter
func (c *Collector) RecordCatalogError(errorType string) {
	c.CatalogErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
