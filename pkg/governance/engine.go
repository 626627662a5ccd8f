package governance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/panel"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

// Engine runs the two-step protocol for every cataloged destructive action:
// analyze impact, gate on confirmation, execute, audit. The server holds no
// state between the analyze and confirm calls; impact is re-derived from the
// store on every submission.
type Engine struct {
	panels     *panel.Service
	panelStore *panel.Store
	roles      *rbac.Service
	roleStore  *rbac.Store
	resolver   *rbac.Resolver
	registry   *capability.Registry
	identities *identity.Store
	issuer     *identity.ImpersonationIssuer
	settings   *SettingsStore
	cache      rbac.Cache
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Panels     *panel.Service
	PanelStore *panel.Store
	Roles      *rbac.Service
	RoleStore  *rbac.Store
	Resolver   *rbac.Resolver
	Registry   *capability.Registry
	Identities *identity.Store
	Issuer     *identity.ImpersonationIssuer
	Settings   *SettingsStore
	Cache      rbac.Cache
	Metrics    *observability.Metrics
	Logger     *observability.Logger
}

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		panels:     deps.Panels,
		panelStore: deps.PanelStore,
		roles:      deps.Roles,
		roleStore:  deps.RoleStore,
		resolver:   deps.Resolver,
		registry:   deps.Registry,
		identities: deps.Identities,
		issuer:     deps.Issuer,
		settings:   deps.Settings,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

func parseEntityID(entityID string) (int64, error) {
	id, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return 0, apperror.InvalidInput("invalid entity id %q", entityID)
	}
	return id, nil
}

// AnalyzeImpact computes the blast radius of an action against the current
// store state. The switch is exhaustive over the catalogue.
func (e *Engine) AnalyzeImpact(ctx context.Context, action ActionType, entityID string) (*Impact, error) {
	impact := &Impact{Action: action, EntityID: entityID}

	switch action {
	case ActionPanelDelete:
		panelID, err := parseEntityID(entityID)
		if err != nil {
			return nil, err
		}
		p, err := e.panelStore.Get(ctx, panelID)
		if err != nil {
			return nil, err
		}
		count, err := e.panelStore.CountAssignments(ctx, panelID)
		if err != nil {
			return nil, err
		}
		impact.AffectedCount = AffectedCount{Count: count}
		impact.Reversible = false
		impact.Severity = SeverityMedium
		if count > 0 {
			impact.Severity = SeverityHigh
		}
		impact.Message = fmt.Sprintf("Deleting panel %q removes it for %d assigned identities.", p.Name, count)

	case ActionRoleDelete:
		roleID, err := parseEntityID(entityID)
		if err != nil {
			return nil, err
		}
		role, err := e.roleStore.GetRole(ctx, roleID)
		if err != nil {
			return nil, err
		}
		count, err := e.roleStore.CountAssignments(ctx, roleID)
		if err != nil {
			return nil, err
		}
		impact.AffectedCount = AffectedCount{Count: count}
		impact.Reversible = false
		impact.Severity = SeverityMedium
		if count > 0 {
			impact.Severity = SeverityHigh
		}
		if role.IsSystem {
			impact.Severity = SeverityCritical
		}
		impact.Message = fmt.Sprintf("Deleting role %q strips its permissions from %d identities.", role.Key, count)

	case ActionIdentityDelete:
		identityID, err := parseEntityID(entityID)
		if err != nil {
			return nil, err
		}
		ident, err := e.identities.GetIdentity(ctx, identityID)
		if err != nil {
			return nil, err
		}
		tokens, err := e.identities.CountTokens(ctx, identityID)
		if err != nil {
			return nil, err
		}
		impact.AffectedCount = AffectedCount{Count: 1}
		impact.Reversible = false
		impact.Severity = SeverityHigh
		impact.Message = fmt.Sprintf("Deleting identity %q revokes %d credentials and removes all role assignments.", ident.Email, tokens)

	case ActionCapabilityDisable:
		c, err := e.registry.Get(ctx, entityID)
		if err != nil {
			return nil, err
		}
		impact.AffectedCount = AffectedCount{All: true}
		impact.Reversible = true
		impact.Severity = SeverityCritical
		impact.Message = fmt.Sprintf("Disabling capability %q blocks the feature for every identity on the platform.", c.DisplayName)

	case ActionPlatformConfigChange:
		impact.AffectedCount = AffectedCount{All: true}
		impact.Reversible = true
		impact.Severity = SeverityCritical
		impact.Message = fmt.Sprintf("Changing platform setting %q affects every identity on the platform.", entityID)

	case ActionImpersonation:
		identityID, err := parseEntityID(entityID)
		if err != nil {
			return nil, err
		}
		ident, err := e.identities.GetIdentity(ctx, identityID)
		if err != nil {
			return nil, err
		}
		impact.AffectedCount = AffectedCount{Count: 1}
		impact.Reversible = true
		impact.Severity = SeverityHigh
		impact.Message = fmt.Sprintf("Impersonating %q grants full access to their account for a limited window.", ident.Email)

	default:
		return nil, apperror.InvalidInput("unknown governance action")
	}

	// Auto-approval is the narrow path: a reversible-or-dependent-free action
	// at medium severity. Everything else waits for explicit confirmation.
	impact.RequiresConfirmation = impact.Severity != SeverityMedium ||
		impact.AffectedCount.All || impact.AffectedCount.Count > 0

	return impact, nil
}

// Execute runs the confirm-and-execute half of the protocol. Without the
// confirmation flag, an action whose impact demands one performs no mutation
// and returns the impact payload for the caller to surface. With it, exactly
// one mutation and one audit write happen.
func (e *Engine) Execute(ctx context.Context, actor *identity.AuthContext, req ExecuteRequest) (*Result, error) {
	if actor == nil || actor.Identity == nil {
		return nil, apperror.AuthRequired("authentication required")
	}

	impact, err := e.AnalyzeImpact(ctx, req.Action, req.EntityID)
	if err != nil {
		return nil, err
	}

	if impact.RequiresConfirmation && !req.Confirmed {
		e.metrics.GovernanceActions.WithLabelValues(req.Action.String(), "rejected").Inc()
		return &Result{Executed: false, RequiresConfirmation: true, Impact: impact}, nil
	}

	data, execErr := e.execute(ctx, actor, req)

	outcome := "executed"
	if execErr != nil {
		outcome = "failed"
	}
	e.metrics.GovernanceActions.WithLabelValues(req.Action.String(), outcome).Inc()

	// The audit write is best-effort and never blocks or fails the action.
	e.writeAudit(ctx, actor, req, impact, execErr)

	if execErr != nil {
		return nil, execErr
	}
	return &Result{Executed: true, Impact: impact, Data: data}, nil
}

func (e *Engine) execute(ctx context.Context, actor *identity.AuthContext, req ExecuteRequest) (interface{}, error) {
	switch req.Action {
	case ActionPanelDelete:
		panelID, err := parseEntityID(req.EntityID)
		if err != nil {
			return nil, err
		}
		return nil, e.panels.Delete(ctx, panelID)

	case ActionRoleDelete:
		roleID, err := parseEntityID(req.EntityID)
		if err != nil {
			return nil, err
		}
		return nil, e.roles.DeleteRole(ctx, roleID)

	case ActionIdentityDelete:
		identityID, err := parseEntityID(req.EntityID)
		if err != nil {
			return nil, err
		}
		if err := e.identities.DeleteIdentity(ctx, identityID); err != nil {
			return nil, err
		}
		e.cache.Invalidate(identityID)
		return nil, nil

	case ActionCapabilityDisable:
		reason := req.Reason
		if reason == "" {
			reason = "disabled through governance"
		}
		return e.registry.UpdateStatus(ctx, req.EntityID, capability.StatusDisabled, reason, "")

	case ActionPlatformConfigChange:
		if req.Payload == nil {
			return nil, apperror.InvalidInput("a payload is required for a platform config change")
		}
		return e.settings.Set(ctx, req.EntityID, req.Payload, actor.EffectiveID())

	case ActionImpersonation:
		identityID, err := parseEntityID(req.EntityID)
		if err != nil {
			return nil, err
		}
		return e.startImpersonation(ctx, actor, identityID)

	default:
		return nil, apperror.InvalidInput("unknown governance action")
	}
}

func (e *Engine) writeAudit(ctx context.Context, actor *identity.AuthContext, req ExecuteRequest, impact *Impact, execErr error) {
	record := &audit.Record{
		ActorID:    actor.EffectiveID(),
		Action:     req.Action.String(),
		EntityType: "governance",
		EntityID:   req.EntityID,
		Impact:     impact,
		SuperAdmin: true,
		Details: map[string]interface{}{
			"confirmed": req.Confirmed,
			"succeeded": execErr == nil,
		},
	}
	if actor.IsImpersonated() {
		record.Details["impersonatorId"] = actor.Impersonation.ImpersonatorID
	}
	if req.Reason != "" {
		record.Details["reason"] = req.Reason
	}
	if execErr != nil {
		record.Details["error"] = execErr.Error()
	}
	if err := audit.FromContext(ctx).Log(ctx, record); err != nil {
		e.metrics.AuditWriteFailures.Inc()
		e.logger.WithError(err).Error("failed to write governance audit record")
	}
}
