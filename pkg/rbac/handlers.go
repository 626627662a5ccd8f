package rbac

import (
	"net/http"
	"strings"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Handlers exposes role and permission management over HTTP.
type Handlers struct {
	service  *Service
	resolver *Resolver
	logger   *observability.Logger
}

func NewHandlers(service *Service, resolver *Resolver, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, resolver: resolver, logger: logger}
}

type createRoleRequest struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || req.DisplayName == "" {
		httputil.WriteError(w, r, apperror.InvalidInput("key and display_name are required"))
		return
	}

	role := &Role{
		Key:         req.Key,
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.service.CreateRole(r.Context(), role); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, role)
}

func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, role)
}

func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"roles": roles})
}

type updateRoleRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.DisplayName != nil {
		role.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if err := h.service.UpdateRole(r.Context(), role); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, role)
}

// Role deletion has no handler here: it is a cataloged destructive action
// and runs through the governance engine, which owns its impact snapshot and
// audit record.

func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	grants, err := h.service.ListGrants(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"permissions": grants})
}

type replaceGrantsRequest struct {
	Permissions []string `json:"permissions"`
}

// ReplaceGrants swaps the full grant set of a role in one shot. Partial
// grant edits are intentionally not offered: the client always states the
// complete desired set.
func (h *Handlers) ReplaceGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req replaceGrantsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Permissions == nil {
		httputil.WriteError(w, r, apperror.InvalidInput("permissions array is required"))
		return
	}

	grants := make([]PermissionGrant, 0, len(req.Permissions))
	for _, key := range req.Permissions {
		grants = append(grants, PermissionGrant{RoleID: roleID, PermissionKey: key, Granted: true})
	}
	if err := h.service.ReplaceGrants(r.Context(), roleID, grants); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	updated, err := h.service.ListGrants(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"permissions": updated})
}

type assignRoleRequest struct {
	IdentityID int64 `json:"identity_id"`
}

func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req assignRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.IdentityID == 0 {
		httputil.WriteError(w, r, apperror.InvalidInput("identity_id is required"))
		return
	}

	a := &Assignment{IdentityID: req.IdentityID, RoleID: roleID}
	if err := h.service.AssignRole(r.Context(), a); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, a)
}

func (h *Handlers) UnassignRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	identityID, err := httputil.PathInt64(r, "identityId")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := h.service.UnassignRole(r.Context(), identityID, roleID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Catalogue lists the permission keys the platform knows about. Clients use
// it to render grant editors.
func (h *Handlers) Catalogue(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, r, map[string]interface{}{"permissions": Catalogue()})
}

// IdentityPermissions returns the resolved, flattened permission set for one
// identity. Super-privileged identities report the sentinel set.
func (h *Handlers) IdentityPermissions(w http.ResponseWriter, r *http.Request) {
	identityID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	set, err := h.resolver.GetPermissions(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, set)
}

// IdentityRoles returns the deduplicated active roles of one identity.
func (h *Handlers) IdentityRoles(w http.ResponseWriter, r *http.Request) {
	identityID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	roles, err := h.resolver.ResolveRoles(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"roles": roles})
}
