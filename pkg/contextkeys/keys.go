// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *identity.AuthContext
	// Set by: middleware.Auth (pkg/middleware/auth.go)
	// Required by: all protected endpoints, rbac middleware, governance middleware
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request correlation id (UUID string)
	// Set by: middleware.RequestID
	// Used by: logger, audit trail, error responses
	RequestIDKey Key = "request_id"

	// CapabilityOverlayKey contains *CapabilityOverlay
	// Set by: capability.Checked and capability.Required middleware
	// (status overlay, non-blocking)
	// Used by: httputil response envelope to surface degraded/degradedReason
	CapabilityOverlayKey Key = "capability_overlay"

	// AuditLoggerKey contains audit.Logger
	// Set by: audit middleware
	AuditLoggerKey Key = "audit_logger"
)

// CapabilityOverlay carries non-blocking capability status metadata attached to
// a request by the overlay middleware. The envelope writer surfaces it to the
// caller alongside the normal payload.
type CapabilityOverlay struct {
	CapabilityID string
	// Status is the capability's literal status ("degraded" or "disabled").
	Status   string
	Degraded bool
	Reason   string
}

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds a request correlation id to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request correlation id, or "" when absent
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCapabilityOverlay attaches capability overlay metadata to the context
func WithCapabilityOverlay(ctx context.Context, overlay *CapabilityOverlay) context.Context {
	return context.WithValue(ctx, CapabilityOverlayKey, overlay)
}

// CapabilityOverlayFrom retrieves overlay metadata, or nil when absent
func CapabilityOverlayFrom(ctx context.Context) *CapabilityOverlay {
	if o, ok := ctx.Value(CapabilityOverlayKey).(*CapabilityOverlay); ok {
		return o
	}
	return nil
}
