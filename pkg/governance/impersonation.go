package governance

import (
	"context"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/identity"
)

// ImpersonationGrant is the delegated credential handed to a super-admin who
// starts acting as another identity.
type ImpersonationGrant struct {
	Credential string            `json:"credential"`
	Subject    identity.Identity `json:"subject"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// startImpersonation mints a short-lived delegated credential for the target
// identity. Impersonating another super-privileged identity is forbidden
// unconditionally: confirmation cannot override the escalation guard.
func (e *Engine) startImpersonation(ctx context.Context, actor *identity.AuthContext, targetID int64) (*ImpersonationGrant, error) {
	if actor.IsImpersonated() {
		return nil, apperror.InvalidStateTransition("impersonation cannot be nested")
	}

	target, err := e.identities.GetIdentity(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, apperror.InvalidInput("identity %d is inactive", targetID)
	}
	if targetID == actor.EffectiveID() {
		return nil, apperror.InvalidInput("cannot impersonate yourself")
	}

	targetSuper, err := e.resolver.IsSuperPrivileged(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if targetSuper {
		return nil, apperror.PermissionDenied("super-privileged identities cannot be impersonated")
	}

	credential, grant, err := e.issuer.Mint(actor.EffectiveID(), targetID)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"impersonator": actor.EffectiveID(),
		"subject":      targetID,
		"expires_at":   grant.ExpiresAt.Format(time.RFC3339),
	}).Info("impersonation started")

	return &ImpersonationGrant{
		Credential: credential,
		Subject:    *target,
		ExpiresAt:  grant.ExpiresAt,
	}, nil
}

// EndImpersonation records the explicit end of an impersonation session. The
// credential itself simply stops being used; what matters is the audited
// bookend.
func (e *Engine) EndImpersonation(ctx context.Context, actor *identity.AuthContext) error {
	if actor == nil || !actor.IsImpersonated() {
		return apperror.InvalidStateTransition("no active impersonation session")
	}

	record := &audit.Record{
		ActorID:    actor.Impersonation.ImpersonatorID,
		Action:     "identity.impersonate.end",
		EntityType: "identity",
		EntityID:   formatID(actor.EffectiveID()),
		SuperAdmin: true,
		Details: map[string]interface{}{
			"subjectId": actor.EffectiveID(),
			"startedAt": actor.Impersonation.StartedAt.Format(time.RFC3339),
		},
	}
	if err := audit.FromContext(ctx).Log(ctx, record); err != nil {
		e.metrics.AuditWriteFailures.Inc()
		e.logger.WithError(err).Error("failed to audit impersonation end")
	}
	return nil
}
