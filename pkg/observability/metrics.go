package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics holds all Prometheus metrics of the authorization engine.
// Recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Decision metrics
	DecisionsTotal     *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	ContractViolations *prometheus.CounterVec

	// Assignment metrics
	AssignmentMutationsTotal *prometheus.CounterVec
	AssignmentsPurgedTotal   prometheus.Counter
	StoreErrorsTotal         *prometheus.CounterVec

	// Role-set cache metrics
	RoleSetCacheHitsTotal   prometheus.Counter
	RoleSetCacheMissesTotal prometheus.Counter

	// Catalog metrics
	CatalogReloadsTotal *prometheus.CounterVec
	CatalogPermissions  prometheus.Gauge
	CatalogRoles        prometheus.Gauge

	otel *otelInstruments
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmsauthz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"operation", "outcome"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lmsauthz_decision_duration_seconds",
				Help:    "Authorization decision duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"operation"},
		),
		ContractViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmsauthz_contract_violations_total",
				Help: "Total number of calls rejected for malformed arguments",
			},
			[]string{"operation"},
		),

		AssignmentMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmsauthz_assignment_mutations_total",
				Help: "Total number of role assignment mutations",
			},
			[]string{"operation", "status"},
		),
		AssignmentsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lmsauthz_assignments_purged_total",
				Help: "Total number of expired assignments purged",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmsauthz_store_errors_total",
				Help: "Total number of assignment store errors",
			},
			[]string{"operation"},
		),

		RoleSetCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lmsauthz_role_set_cache_hits_total",
				Help: "Total number of effective permission cache hits",
			},
		),
		RoleSetCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lmsauthz_role_set_cache_misses_total",
				Help: "Total number of effective permission cache misses",
			},
		),

		CatalogReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmsauthz_catalog_reloads_total",
				Help: "Total number of catalog reload attempts",
			},
			[]string{"status"},
		),
		CatalogPermissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lmsauthz_catalog_permissions",
				Help: "Number of permissions in the active catalog",
			},
		),
		CatalogRoles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lmsauthz_catalog_roles",
				Help: "Number of roles in the active catalog",
			},
		),
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.ContractViolations,
		m.AssignmentMutationsTotal,
		m.AssignmentsPurgedTotal,
		m.StoreErrorsTotal,
		m.RoleSetCacheHitsTotal,
		m.RoleSetCacheMissesTotal,
		m.CatalogReloadsTotal,
		m.CatalogPermissions,
		m.CatalogRoles,
	)

	return m
}

// ObserveDecision records the outcome and latency of one check
func (m *Metrics) ObserveDecision(operation string, allowed bool, started time.Time) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	elapsed := time.Since(started).Seconds()
	m.DecisionsTotal.WithLabelValues(operation, outcome).Inc()
	m.DecisionDuration.WithLabelValues(operation).Observe(elapsed)
	if m.otel != nil {
		m.otel.decision(operation, outcome, elapsed)
	}
}

// ContractViolation counts a rejected call
func (m *Metrics) ContractViolation(operation string) {
	if m == nil {
		return
	}
	m.ContractViolations.WithLabelValues(operation).Inc()
	if m.otel != nil {
		m.otel.add(m.otel.violations, 1, attribute.String("operation", operation))
	}
}

// AssignmentMutation counts an assign or revoke with its status
func (m *Metrics) AssignmentMutation(operation, status string) {
	if m == nil {
		return
	}
	m.AssignmentMutationsTotal.WithLabelValues(operation, status).Inc()
	if m.otel != nil {
		m.otel.add(m.otel.mutations, 1, attribute.String("operation", operation), attribute.String("status", status))
	}
}

// StoreError counts a failed store call
func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
	if m.otel != nil {
		m.otel.add(m.otel.storeErrors, 1, attribute.String("operation", operation))
	}
}

// RoleSetCache counts a cache lookup
func (m *Metrics) RoleSetCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.RoleSetCacheHitsTotal.Inc()
		return
	}
	m.RoleSetCacheMissesTotal.Inc()
}

// CatalogReload counts a reload attempt with its status
func (m *Metrics) CatalogReload(status string) {
	if m == nil {
		return
	}
	m.CatalogReloadsTotal.WithLabelValues(status).Inc()
	if m.otel != nil {
		m.otel.add(m.otel.reloads, 1, attribute.String("status", status))
	}
}

// SetCatalogSize publishes the size of the active catalog
func (m *Metrics) SetCatalogSize(permissions, roles int) {
	if m == nil {
		return
	}
	m.CatalogPermissions.Set(float64(permissions))
	m.CatalogRoles.Set(float64(roles))
}

// Purged counts purged assignments
func (m *Metrics) Purged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AssignmentsPurgedTotal.Add(float64(n))
	if m.otel != nil {
		m.otel.add(m.otel.purged, int64(n))
	}
}

// Handler returns an http.Handler serving the registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
