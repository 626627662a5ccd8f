package rbac

import (
	"context"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Resolver answers "what can this identity do" questions. Results are served
// from the cache when present; misses walk the role graph and memoize the
// flattened permission set.
type Resolver struct {
	store   *Store
	cache   Cache
	metrics *observability.Metrics
	logger  *observability.Logger
}

func NewResolver(store *Store, cache Cache, metrics *observability.Metrics, logger *observability.Logger) *Resolver {
	return &Resolver{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// ResolveRoles returns every active role attached to an identity: the roles
// matching its primary and admin labels, plus explicit assignments. Duplicates
// are collapsed by role id. Inactive roles contribute nothing.
func (r *Resolver) ResolveRoles(ctx context.Context, identityID int64) ([]Role, error) {
	primary, admin, err := r.store.identityRoleLabels(ctx, identityID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var roles []Role

	for _, label := range []string{primary, admin} {
		if label == "" {
			continue
		}
		role, err := r.store.GetRoleByKey(ctx, label)
		if err != nil {
			if apperror.IsCode(err, apperror.CodeNotFound) {
				continue // label with no matching role grants nothing
			}
			return nil, err
		}
		if !role.IsActive || seen[role.ID] {
			continue
		}
		seen[role.ID] = true
		roles = append(roles, *role)
	}

	assigned, err := r.store.assignedRoles(ctx, identityID)
	if err != nil {
		return nil, err
	}
	for _, role := range assigned {
		if !role.IsActive || seen[role.ID] {
			continue
		}
		seen[role.ID] = true
		roles = append(roles, role)
	}

	return roles, nil
}

// GetPermissions returns the flattened permission set for an identity. A
// super-privileged identity collapses to the single sentinel permission; the
// individual grants of its other roles are not enumerated. Unknown identities
// resolve to an empty set rather than an error so that callers fail closed.
func (r *Resolver) GetPermissions(ctx context.Context, identityID int64) (*PermissionSet, error) {
	if set, ok := r.cache.Get(identityID); ok {
		r.metrics.PermissionCacheHits.Inc()
		return set, nil
	}
	r.metrics.PermissionCacheMiss.Inc()

	roles, err := r.ResolveRoles(ctx, identityID)
	if err != nil {
		return nil, err
	}

	set := &PermissionSet{IdentityID: identityID, Permissions: []string{}}

	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		if role.Key == RoleKeySuperAdmin {
			set.Super = true
		}
		roleIDs = append(roleIDs, role.ID)
	}

	if set.Super {
		set.Permissions = []string{PermissionAll}
		r.cache.Set(identityID, set)
		return set, nil
	}

	perms, err := r.store.grantedPermissions(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		if p == PermissionAll {
			set.Super = true
			set.Permissions = []string{PermissionAll}
			r.cache.Set(identityID, set)
			return set, nil
		}
	}
	set.Permissions = perms

	r.cache.Set(identityID, set)
	return set, nil
}

// HasPermission reports whether the identity holds the permission. Super
// short-circuits to true for any key, including keys absent from the
// catalogue.
func (r *Resolver) HasPermission(ctx context.Context, identityID int64, permission string) (bool, error) {
	set, err := r.GetPermissions(ctx, identityID)
	if err != nil {
		r.metrics.PermissionChecks.WithLabelValues("error").Inc()
		return false, err
	}
	allowed := set.Has(permission)
	if allowed {
		r.metrics.PermissionChecks.WithLabelValues("allowed").Inc()
	} else {
		r.metrics.PermissionChecks.WithLabelValues("denied").Inc()
	}
	return allowed, nil
}

// HasAnyPermission reports whether the identity holds at least one of the
// permissions.
func (r *Resolver) HasAnyPermission(ctx context.Context, identityID int64, permissions ...string) (bool, error) {
	set, err := r.GetPermissions(ctx, identityID)
	if err != nil {
		return false, err
	}
	return set.HasAny(permissions...), nil
}

// HasAllPermissions reports whether the identity holds every one of the
// permissions.
func (r *Resolver) HasAllPermissions(ctx context.Context, identityID int64, permissions ...string) (bool, error) {
	set, err := r.GetPermissions(ctx, identityID)
	if err != nil {
		return false, err
	}
	return set.HasAll(permissions...), nil
}

// IsSuperPrivileged is the single predicate for elevated access. Anything
// that gates on "is this an admin" goes through here.
func (r *Resolver) IsSuperPrivileged(ctx context.Context, identityID int64) (bool, error) {
	set, err := r.GetPermissions(ctx, identityID)
	if err != nil {
		return false, err
	}
	return set.Super, nil
}
