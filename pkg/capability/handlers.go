package capability

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Handlers exposes the capability registry over HTTP.
type Handlers struct {
	registry *Registry
	logger   *observability.Logger
}

func NewHandlers(registry *Registry, logger *observability.Logger) *Handlers {
	return &Handlers{registry: registry, logger: logger}
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	summary, err := h.registry.Health(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, summary)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c, err := h.registry.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, c)
}

type registerRequest struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"display_name"`
	OwnerModule string                 `json:"owner_module"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c := &Capability{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		OwnerModule: req.OwnerModule,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if err := h.registry.Register(r.Context(), c); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	stored, err := h.registry.store.Get(r.Context(), req.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, stored)
}

type statusRequest struct {
	Status    Status `json:"status"`
	Reason    string `json:"reason"`
	LastError string `json:"last_error,omitempty"`
}

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	// Disabling is a cataloged destructive action: it carries platform-wide
	// impact and must pass the governance confirmation round trip.
	if req.Status == StatusDisabled {
		httputil.WriteError(w, r, apperror.InvalidStateTransition(
			"disabling a capability requires a confirmed governance action").
			WithDetail("capability", id))
		return
	}
	c, err := h.registry.UpdateStatus(r.Context(), id, req.Status, req.Reason, req.LastError)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, c)
}
