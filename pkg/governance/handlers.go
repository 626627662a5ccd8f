package governance

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Handlers exposes the governance protocol over HTTP. Every route here sits
// behind RequireSuperAdmin.
type Handlers struct {
	engine *Engine
	logger *observability.Logger
}

func NewHandlers(engine *Engine, logger *observability.Logger) *Handlers {
	return &Handlers{engine: engine, logger: logger}
}

type impactRequest struct {
	Action   ActionType `json:"action"`
	EntityID string     `json:"entity_id"`
}

// Impact answers the analyze half of the protocol: a read-only preview with
// no side effects.
func (h *Handlers) Impact(w http.ResponseWriter, r *http.Request) {
	var req impactRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	impact, err := h.engine.AnalyzeImpact(r.Context(), req.Action, req.EntityID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, impact)
}

// Execute answers the confirm-and-execute half.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	result, err := h.engine.Execute(r.Context(), identity.AuthFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, result)
}

type impersonateRequest struct {
	IdentityID int64 `json:"identity_id"`
	Confirmed  bool  `json:"confirmed"`
}

// Impersonate starts an impersonation session through the engine so it runs
// the same impact/confirmation/audit path as every other governance action.
func (h *Handlers) Impersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.IdentityID == 0 {
		httputil.WriteError(w, r, apperror.InvalidInput("identity_id is required"))
		return
	}
	result, err := h.engine.Execute(r.Context(), identity.AuthFromContext(r.Context()), ExecuteRequest{
		Action:    ActionImpersonation,
		EntityID:  formatID(req.IdentityID),
		Confirmed: req.Confirmed,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, result)
}

// EndImpersonation closes the session with an audited bookend.
func (h *Handlers) EndImpersonation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.EndImpersonation(r.Context(), identity.AuthFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]string{"status": "ended"})
}

// ListSettings returns every platform setting.
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.settings.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"settings": settings})
}

// GetSetting returns one platform setting.
func (h *Handlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	key, err := httputil.PathString(r, "key")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	setting, err := h.engine.settings.Get(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, setting)
}
