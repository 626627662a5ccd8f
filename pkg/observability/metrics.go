package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the control-plane Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	PermissionChecks    *prometheus.CounterVec // result: allowed|denied|error
	PermissionCacheHits prometheus.Counter
	PermissionCacheMiss prometheus.Counter
	CapabilityGates     *prometheus.CounterVec // capability, outcome: passed|degraded|blocked
	UnregisteredChecks  prometheus.Counter
	GovernanceActions   *prometheus.CounterVec // action, outcome: confirmed|rejected|executed
	AuditWriteFailures  prometheus.Counter
	RateLimitRejections prometheus.Counter
}

// NewMetrics registers all control-plane collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PermissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_permission_checks_total",
			Help: "Permission check results by outcome",
		}, []string{"result"}),
		PermissionCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_permission_cache_hits_total",
			Help: "Permission resolver cache hits",
		}),
		PermissionCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_permission_cache_misses_total",
			Help: "Permission resolver cache misses",
		}),
		CapabilityGates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_capability_gate_total",
			Help: "Capability gate decisions by capability and outcome",
		}, []string{"capability", "outcome"}),
		UnregisteredChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_capability_unregistered_checks_total",
			Help: "Checks against capability ids never registered (fail-open default)",
		}),
		GovernanceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_governance_actions_total",
			Help: "Governance engine decisions by action and outcome",
		}, []string{"action", "outcome"}),
		AuditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_audit_write_failures_total",
			Help: "Best-effort audit writes that failed",
		}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_rejections_total",
			Help: "Requests rejected by rate limiting",
		}),
	}

	registry.MustRegister(
		m.PermissionChecks,
		m.PermissionCacheHits,
		m.PermissionCacheMiss,
		m.CapabilityGates,
		m.UnregisteredChecks,
		m.GovernanceActions,
		m.AuditWriteFailures,
		m.RateLimitRejections,
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
