package capability

import (
	"context"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Registry answers "is this capability serving" questions and records
// operator status changes.
type Registry struct {
	store   *Store
	metrics *observability.Metrics
	logger  *observability.Logger
}

func NewRegistry(store *Store, metrics *observability.Metrics, logger *observability.Logger) *Registry {
	return &Registry{store: store, metrics: metrics, logger: logger}
}

// Register upserts a capability record. Safe to call on every startup; an
// existing record keeps its operator-set status.
func (r *Registry) Register(ctx context.Context, c *Capability) error {
	if c.ID == "" || c.DisplayName == "" {
		return apperror.InvalidInput("capability id and display_name are required")
	}
	return r.store.Upsert(ctx, c)
}

// Get loads one capability record.
func (r *Registry) Get(ctx context.Context, id string) (*Capability, error) {
	return r.store.Get(ctx, id)
}

// RegisterDefaults upserts the platform's built-in capabilities.
func (r *Registry) RegisterDefaults(ctx context.Context) error {
	for _, c := range Defaults() {
		c := c
		if err := r.Register(ctx, &c); err != nil {
			return err
		}
	}
	return nil
}

// Check returns the current state of a capability. An id that was never
// registered resolves to stable: gating must never break a module that simply
// forgot to register. The miss is logged and counted so the gap is visible.
func (r *Registry) Check(ctx context.Context, id string) (Status, string, error) {
	c, err := r.store.Get(ctx, id)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		r.metrics.UnregisteredChecks.Inc()
		r.logger.WithField("capability", id).Warn("check against unregistered capability, defaulting to stable")
		return StatusStable, "", nil
	}
	if err != nil {
		return "", "", err
	}
	return c.Status, c.Reason, nil
}

// Gate runs one gating decision: it checks the capability once, counts the
// outcome, and refuses disabled capabilities with the id and reason attached.
// Degraded passes; the caller decides whether to surface the overlay.
func (r *Registry) Gate(ctx context.Context, id string) (Status, string, error) {
	status, reason, err := r.Check(ctx, id)
	if err != nil {
		return "", "", err
	}
	if status == StatusDisabled {
		r.metrics.CapabilityGates.WithLabelValues(id, "blocked").Inc()
		return status, reason, apperror.FeatureDisabled("capability %q is disabled", id).
			WithDetail("capability", id).
			WithDetail("reason", reason)
	}
	outcome := "passed"
	if status == StatusDegraded {
		outcome = "degraded"
	}
	r.metrics.CapabilityGates.WithLabelValues(id, outcome).Inc()
	return status, reason, nil
}

// Require enforces the hard gate and discards the status detail.
func (r *Registry) Require(ctx context.Context, id string) error {
	_, _, err := r.Gate(ctx, id)
	return err
}

// UpdateStatus validates and applies an operator status change. Degraded and
// disabled require a reason; stable clears both reason and last error.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status Status, reason, lastError string) (*Capability, error) {
	if !status.Valid() {
		return nil, apperror.InvalidInput("unknown capability status %q", status).
			WithDetail("allowed", []Status{StatusStable, StatusDegraded, StatusDisabled})
	}
	if status != StatusStable && reason == "" {
		return nil, apperror.InvalidInput("a reason is required when marking a capability %s", status)
	}
	if status == StatusStable {
		reason = ""
		lastError = ""
	}

	c, err := r.store.SetStatus(ctx, id, status, reason, lastError)
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(map[string]interface{}{
		"capability": id,
		"status":     status,
		"reason":     reason,
	}).Info("capability status updated")
	return c, nil
}

// Health aggregates every capability into a summary. Linear in the number of
// capabilities, which stays small.
func (r *Registry) Health(ctx context.Context) (*HealthSummary, error) {
	caps, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	summary := &HealthSummary{Total: len(caps), Capabilities: caps}
	for _, c := range caps {
		switch c.Status {
		case StatusDegraded:
			summary.Degraded++
		case StatusDisabled:
			summary.Disabled++
		default:
			summary.Stable++
		}
	}
	return summary, nil
}
