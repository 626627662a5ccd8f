package rbac

import (
	"context"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Service wraps the store's role mutations with the cache invalidation
// contract: every change that can alter a resolved permission set purges the
// affected cache entries before returning. Role-level changes (grants,
// update, delete) purge everything; assignment changes purge the one
// identity. Serving a stale set after a revocation is a security defect, so
// invalidation is synchronous, never deferred.
type Service struct {
	store  *Store
	cache  Cache
	logger *observability.Logger
}

func NewService(store *Store, cache Cache, logger *observability.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func (s *Service) CreateRole(ctx context.Context, role *Role) error {
	// A brand new role grants nothing until assigned; no purge needed.
	return s.store.CreateRole(ctx, role)
}

func (s *Service) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) UpdateRole(ctx context.Context, role *Role) error {
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return err
	}
	// Deactivation or reactivation changes what every holder resolves to.
	s.cache.InvalidateAll()
	return nil
}

func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

func (s *Service) ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error) {
	return s.store.ListGrants(ctx, roleID)
}

// ReplaceGrants swaps the full grant set of a role and purges the entire
// cache: any identity holding the role resolves differently now, and the
// holders are cheaper to purge wholesale than to enumerate.
//
// The reserved super key is only ever attached to the system super-admin
// role; granting it anywhere else would mint an unbounded privilege role.
func (s *Service) ReplaceGrants(ctx context.Context, roleID int64, grants []PermissionGrant) error {
	for _, g := range grants {
		if g.PermissionKey != PermissionAll {
			continue
		}
		role, err := s.store.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.Key != RoleKeySuperAdmin {
			return apperror.InvalidInput("the %q permission is reserved for the %s role",
				PermissionAll, RoleKeySuperAdmin).WithDetail("permission", PermissionAll)
		}
	}
	if err := s.store.ReplaceGrants(ctx, roleID, grants); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

func (s *Service) AssignRole(ctx context.Context, a *Assignment) error {
	if err := s.store.AssignRole(ctx, a); err != nil {
		return err
	}
	s.cache.Invalidate(a.IdentityID)
	return nil
}

func (s *Service) UnassignRole(ctx context.Context, identityID, roleID int64) error {
	if err := s.store.UnassignRole(ctx, identityID, roleID); err != nil {
		return err
	}
	s.cache.Invalidate(identityID)
	return nil
}

// InvalidateIdentity purges one identity's cached permission set. Callers
// outside this package use it when they change an identity's role labels.
func (s *Service) InvalidateIdentity(identityID int64) {
	s.cache.Invalidate(identityID)
}
