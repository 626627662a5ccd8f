package rbac

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
)

// RequirePermission gates a route on a single permission. The request must
// already carry an AuthContext; a missing one is treated as unauthenticated,
// not as a server error.
func (r *Resolver) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth := identity.AuthFromContext(req.Context())
			if auth == nil {
				httputil.WriteError(w, req, apperror.AuthRequired("authentication required"))
				return
			}
			allowed, err := r.HasPermission(req.Context(), auth.EffectiveID(), permission)
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if !allowed {
				httputil.WriteError(w, req, apperror.PermissionDenied("missing required permission").
					WithDetail("permission", permission))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequireAnyPermission gates a route on holding at least one of the given
// permissions.
func (r *Resolver) RequireAnyPermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth := identity.AuthFromContext(req.Context())
			if auth == nil {
				httputil.WriteError(w, req, apperror.AuthRequired("authentication required"))
				return
			}
			allowed, err := r.HasAnyPermission(req.Context(), auth.EffectiveID(), permissions...)
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if !allowed {
				httputil.WriteError(w, req, apperror.PermissionDenied("missing required permission"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequireRole gates a route on holding at least one of the given role keys.
// Super-privileged identities pass regardless: role gates must never lock out
// the platform operator.
func (r *Resolver) RequireRole(roleKeys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth := identity.AuthFromContext(req.Context())
			if auth == nil {
				httputil.WriteError(w, req, apperror.AuthRequired("authentication required"))
				return
			}
			super, err := r.IsSuperPrivileged(req.Context(), auth.EffectiveID())
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if !super {
				roles, err := r.ResolveRoles(req.Context(), auth.EffectiveID())
				if err != nil {
					httputil.WriteError(w, req, err)
					return
				}
				held := make(map[string]bool, len(roles))
				for _, role := range roles {
					held[role.Key] = true
				}
				found := false
				for _, key := range roleKeys {
					if held[key] {
						found = true
						break
					}
				}
				if !found {
					httputil.WriteError(w, req, apperror.PermissionDenied("missing required role").
						WithDetail("roles", roleKeys))
					return
				}
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequireSuper gates a route on super-privilege. Prefer permission gates for
// ordinary routes; this exists for the governance surface.
func (r *Resolver) RequireSuper() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth := identity.AuthFromContext(req.Context())
			if auth == nil {
				httputil.WriteError(w, req, apperror.AuthRequired("authentication required"))
				return
			}
			super, err := r.IsSuperPrivileged(req.Context(), auth.EffectiveID())
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if !super {
				httputil.WriteError(w, req, apperror.PermissionDenied("super admin access required"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
