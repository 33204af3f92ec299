package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	WebhookEvents      *prometheus.CounterVec
	PlanChanges        *prometheus.CounterVec
	PlansActivated     *prometheus.CounterVec
	ScheduledApplied   prometheus.Counter
	CodesRedeemed      prometheus.Counter
	EntitlementDenials *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBConnections   prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Payment provider webhook events by type and outcome",
			},
			[]string{"type", "outcome"}, // processed, ignored, error
		),
		PlanChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_plan_changes_total",
				Help: "Plan change requests by outcome",
			},
			[]string{"outcome"}, // applied, scheduled, checkout
		),
		PlansActivated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_plans_activated_total",
				Help: "Plans activated after confirmed payment",
			},
			[]string{"plan"},
		),
		ScheduledApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_scheduled_changes_applied_total",
			Help: "Scheduled plan changes applied by the sweeper",
		}),
		CodesRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_codes_redeemed_total",
			Help: "Lifetime deal codes redeemed",
		}),
		EntitlementDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_entitlement_denials_total",
				Help: "Requests denied for exceeding plan limits",
			},
			[]string{"limit"}, // members, projects, clients
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		DBConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw URL

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// The Record helpers tolerate a nil receiver so callers wired without
// metrics (tests, one-shot CLI runs) need no guards.

// RecordWebhookEvent counts a webhook event by type and outcome
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordPlanChange counts a plan change request by outcome
func (m *Metrics) RecordPlanChange(outcome string) {
	if m == nil {
		return
	}
	m.PlanChanges.WithLabelValues(outcome).Inc()
}

// RecordPlanActivated counts a confirmed plan activation
func (m *Metrics) RecordPlanActivated(plan string) {
	if m == nil {
		return
	}
	m.PlansActivated.WithLabelValues(plan).Inc()
}

// RecordScheduledApplied counts a scheduled change applied by the sweeper
func (m *Metrics) RecordScheduledApplied() {
	if m == nil {
		return
	}
	m.ScheduledApplied.Inc()
}

// RecordCodeRedeemed counts a redeemed lifetime code
func (m *Metrics) RecordCodeRedeemed() {
	if m == nil {
		return
	}
	m.CodesRedeemed.Inc()
}

// RecordEntitlementDenial counts a request denied for exceeding a plan limit
func (m *Metrics) RecordEntitlementDenial(limit string) {
	if m == nil {
		return
	}
	m.EntitlementDenials.WithLabelValues(limit).Inc()
}

// RecordDBQuery records database query duration
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}
