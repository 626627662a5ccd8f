package panel

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Handlers exposes panel management over HTTP.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

type panelRequest struct {
	Name                string                        `json:"name"`
	Description         string                        `json:"description"`
	IsSystem            bool                          `json:"is_system,omitempty"`
	Config              Config                        `json:"config"`
	CapabilityOverrides map[string]CapabilityOverride `json:"capability_overrides,omitempty"`
	PermissionSubset    []string                      `json:"permission_subset,omitempty"`
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	p := &Panel{
		Name:                req.Name,
		Description:         req.Description,
		IsSystem:            req.IsSystem,
		Config:              req.Config,
		CapabilityOverrides: req.CapabilityOverrides,
		PermissionSubset:    req.PermissionSubset,
	}
	if auth := identity.AuthFromContext(r.Context()); auth != nil {
		id := auth.EffectiveID()
		p.CreatedBy = &id
	}
	if err := h.service.Create(r.Context(), p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, p)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), panelID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, p)
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	panels, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"panels": panels})
}

func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req panelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	p := &Panel{
		ID:                  panelID,
		Name:                req.Name,
		Description:         req.Description,
		IsSystem:            req.IsSystem,
		Config:              req.Config,
		CapabilityOverrides: req.CapabilityOverrides,
		PermissionSubset:    req.PermissionSubset,
	}
	if err := h.service.Update(r.Context(), p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, p)
}

func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := h.service.Publish(r.Context(), panelID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, p)
}

func (h *Handlers) Archive(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := h.service.Archive(r.Context(), panelID, false)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, p)
}

type cloneRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) Clone(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req cloneRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var createdBy *int64
	if auth := identity.AuthFromContext(r.Context()); auth != nil {
		id := auth.EffectiveID()
		createdBy = &id
	}
	clone, err := h.service.Clone(r.Context(), panelID, req.Name, createdBy)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, clone)
}

type assignRequest struct {
	IdentityID int64 `json:"identity_id"`
	IsDefault  bool  `json:"is_default"`
}

func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req assignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.IdentityID == 0 {
		httputil.WriteError(w, r, apperror.InvalidInput("identity_id is required"))
		return
	}
	a, err := h.service.Assign(r.Context(), req.IdentityID, panelID, req.IsDefault)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, a)
}

func (h *Handlers) Unassign(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	identityID, err := httputil.PathInt64(r, "identityId")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := h.service.Unassign(r.Context(), identityID, panelID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) EffectiveCapabilities(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	caps, err := h.service.EffectiveCapabilities(r.Context(), panelID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"capabilities": caps})
}

// EffectivePermissions reports the caller's own permissions as narrowed by
// the panel.
func (h *Handlers) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	panelID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	auth := identity.AuthFromContext(r.Context())
	if auth == nil {
		httputil.WriteError(w, r, apperror.AuthRequired("authentication required"))
		return
	}
	set, err := h.service.EffectivePermissions(r.Context(), panelID, auth.EffectiveID())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, set)
}
