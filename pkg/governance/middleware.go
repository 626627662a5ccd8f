package governance

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
)

// RequireSuperAdmin gates the governance surface on super-privilege.
func (e *Engine) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := identity.AuthFromContext(r.Context())
		if auth == nil {
			httputil.WriteError(w, r, apperror.AuthRequired("authentication required"))
			return
		}
		super, err := e.resolver.IsSuperPrivileged(r.Context(), auth.EffectiveID())
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if !super {
			httputil.WriteError(w, r, apperror.PermissionDenied("super admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IDExtractor pulls the target entity id of a destructive request.
type IDExtractor func(r *http.Request) (string, error)

// RequireDestructiveConfirmation wraps a destructive route in the two-step
// protocol: when the computed impact demands confirmation and the caller did
// not send X-Confirm-Action: true, the request stops here with the impact
// payload and no mutation.
func (e *Engine) RequireDestructiveConfirmation(action ActionType, extract IDExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entityID, err := extract(r)
			if err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			impact, err := e.AnalyzeImpact(r.Context(), action, entityID)
			if err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			if impact.RequiresConfirmation && r.Header.Get("X-Confirm-Action") != "true" {
				e.metrics.GovernanceActions.WithLabelValues(action.String(), "rejected").Inc()
				httputil.WriteOK(w, r, &Result{RequiresConfirmation: true, Impact: impact})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditSuperAdminAction appends a trail record after the wrapped handler
// completes. Best-effort: an audit failure never surfaces to the caller.
func (e *Engine) AuditSuperAdminAction(actionName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			auth := identity.AuthFromContext(r.Context())
			if auth == nil {
				return
			}
			record := &audit.Record{
				ActorID:    auth.EffectiveID(),
				Action:     actionName,
				SuperAdmin: true,
				IPAddress:  httputil.ClientIP(r),
				UserAgent:  r.UserAgent(),
				Details: map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
				},
			}
			if auth.IsImpersonated() {
				record.Details["impersonatorId"] = auth.Impersonation.ImpersonatorID
			}
			if err := audit.FromContext(r.Context()).Log(r.Context(), record); err != nil {
				e.metrics.AuditWriteFailures.Inc()
				e.logger.WithError(err).Error("failed to audit super admin action")
			}
		})
	}
}
