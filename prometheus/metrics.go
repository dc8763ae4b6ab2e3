package prometheus

import (
	"strconv"
	"time"

	"provision-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	TenantsProvisionedCounter *prometheus.CounterVec
	TenantsDeletedCounter     *prometheus.CounterVec
	ActiveTenantsGauge        prometheus.Gauge
	ProvisionStepHistogram    *prometheus.HistogramVec

	// Seeding metrics
	SeedOutcomeCounter *prometheus.CounterVec

	// Request metrics
	RequestDurationHistogram *prometheus.HistogramVec
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec

	// Namespace prefix for metrics
	namespace string
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics(cfg *config.Config) {
	namespace = cfg.Metrics.Prefix

	TenantsProvisionedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenants_provisioned_total",
			Help:      "Total number of tenant create operations",
		},
		[]string{"site_type", "outcome"},
	)

	TenantsDeletedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenants_deleted_total",
			Help:      "Total number of tenant delete operations",
		},
		[]string{"outcome"},
	)

	ActiveTenantsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_tenants",
		Help:      "Number of tenants currently in the registry",
	})

	ProvisionStepHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_step_duration_seconds",
			Help:      "Duration of provisioning steps in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"step"},
	)

	SeedOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seed_jobs_total",
			Help:      "Total number of admin seed jobs by outcome",
		},
		[]string{"outcome"},
	)

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)
}

// SeedOutcome records a seed job outcome. Safe to call before
// InitMetrics (no-op), which keeps background tasks testable.
func SeedOutcome(outcome string) {
	if SeedOutcomeCounter != nil {
		SeedOutcomeCounter.WithLabelValues(outcome).Inc()
	}
}

// TrackProvisionStep returns a deferred-friendly observer:
//
//	defer prometheus.TrackProvisionStep("create_db")(time.Now())
func TrackProvisionStep(step string) func(start time.Time) {
	return func(start time.Time) {
		if ProvisionStepHistogram != nil {
			ProvisionStepHistogram.WithLabelValues(step).Observe(time.Since(start).Seconds())
		}
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			APIRequestCounter.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Inc()

			err := next(c)

			status := c.Response().Status
			labels := prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": strconv.Itoa(status),
			}
			RequestDurationHistogram.With(labels).Observe(time.Since(start).Seconds())
			if status >= 400 {
				APIErrorCounter.With(labels).Inc()
			}

			return err
		}
	}
}
