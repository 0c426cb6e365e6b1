package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Imported rows partitioned by outcome (inserted, duplicate, error)
	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Total number of import rows processed by outcome",
		},
		[]string{"outcome"},
	)

	// Campaign messages partitioned by outcome (sent, failed)
	campaignMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Total number of campaign messages by outcome",
		},
		[]string{"outcome"},
	)

	// Breaker transitions into the open state
	breakerOpensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_breaker_opens_total",
			Help: "Number of times a campaign gateway circuit opened",
		},
	)

	// Campaigns currently being processed
	activeCampaigns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_campaigns",
			Help: "Number of campaigns currently being processed",
		},
	)
)

// Metrics returns a Fiber v3 middleware that records basic Prometheus metrics.
// Labels are kept low-cardinality by using the matched route path when available.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}

// CountImportRows records how a batch of import rows fared.
func CountImportRows(outcome string, n int64) {
	if n > 0 {
		importRowsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// CountCampaignMessages records sent or failed campaign messages.
func CountCampaignMessages(outcome string, n int64) {
	if n > 0 {
		campaignMessagesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// CountBreakerOpen records a circuit opening.
func CountBreakerOpen() {
	breakerOpensTotal.Inc()
}

// TrackActiveCampaign adjusts the active campaign gauge.
func TrackActiveCampaign(delta float64) {
	activeCampaigns.Add(delta)
}
