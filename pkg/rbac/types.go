// Package rbac implements the role and permission resolver: role storage,
// permission grant flattening, the process-local permission cache with its
// invalidation contract, and the HTTP authorization middleware.
package rbac

import (
	"time"
)

// PermissionAll is the reserved super-permission key. It is only ever granted
// to the system super-admin role and short-circuits every permission check.
const PermissionAll = "all"

// RoleKeySuperAdmin is the machine key of the system super-admin role.
const RoleKeySuperAdmin = "SUPER_ADMIN"

// Role is a named bundle of permission grants.
type Role struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionGrant is a (role, permission-key, granted) tuple. Permission keys
// are opaque strings; revocation rows (granted=false) are kept for audit
// symmetry and simply don't contribute to the flattened set.
type PermissionGrant struct {
	RoleID        int64  `json:"role_id"`
	PermissionKey string `json:"permission_key"`
	Granted       bool   `json:"granted"`
}

// Assignment is an explicit identity-to-role edge.
type Assignment struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	RoleID     int64     `json:"role_id"`
	AssignedBy *int64    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// PermissionSet is a flattened permission result for one identity.
type PermissionSet struct {
	IdentityID  int64    `json:"identity_id"`
	Permissions []string `json:"permissions"`
	Super       bool     `json:"super"`
}

// Has reports whether the set satisfies a single permission key.
func (p *PermissionSet) Has(key string) bool {
	if p.Super {
		return true
	}
	for _, perm := range p.Permissions {
		if perm == key {
			return true
		}
	}
	return false
}

// HasAny reports whether the set satisfies at least one of the keys.
func (p *PermissionSet) HasAny(keys ...string) bool {
	for _, key := range keys {
		if p.Has(key) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set satisfies every key.
func (p *PermissionSet) HasAll(keys ...string) bool {
	for _, key := range keys {
		if !p.Has(key) {
			return false
		}
	}
	return true
}

// Catalogue returns the known permission keys of the platform's product
// modules. The resolver does not restrict grants to this list (keys are
// opaque), but the admin UI uses it to offer a picker.
func Catalogue() []string {
	return []string{
		"attendance:view",
		"attendance:record",
		"leave:request",
		"leave:approve",
		"payroll:view",
		"payroll:generate",
		"exams:view",
		"exams:schedule",
		"exams:grade",
		"tickets:create",
		"tickets:manage",
		"feedback:view",
		"feedback:moderate",
		"hr:manage",
		"reports:view",
	}
}
