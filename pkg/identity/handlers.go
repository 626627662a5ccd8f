package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// InvalidatorFunc lets the handlers purge an identity's cached permissions
// after a role-label change without importing the resolver package.
type InvalidatorFunc func(identityID int64)

// Handlers exposes identity and credential management over HTTP. Deletion is
// absent on purpose: identities are only deleted through governance.
type Handlers struct {
	store      *Store
	tokens     *TokenManager
	invalidate InvalidatorFunc
	logger     *observability.Logger
}

func NewHandlers(store *Store, tokens *TokenManager, invalidate InvalidatorFunc, logger *observability.Logger) *Handlers {
	if invalidate == nil {
		invalidate = func(int64) {}
	}
	return &Handlers{store: store, tokens: tokens, invalidate: invalidate, logger: logger}
}

type createIdentityRequest struct {
	DisplayName string                 `json:"display_name"`
	Email       string                 `json:"email"`
	PrimaryRole string                 `json:"primary_role"`
	AdminRole   *string                `json:"admin_role,omitempty"`
	Profile     map[string]interface{} `json:"profile,omitempty"`
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.DisplayName == "" || req.Email == "" || req.PrimaryRole == "" {
		httputil.WriteError(w, r, apperror.InvalidInput("display_name, email and primary_role are required"))
		return
	}

	ident := &Identity{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PrimaryRole: req.PrimaryRole,
		AdminRole:   req.AdminRole,
		IsActive:    true,
		Profile:     req.Profile,
	}
	if err := h.store.CreateIdentity(r.Context(), ident); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, ident)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	ident, err := h.store.GetIdentity(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, ident)
}

// Me returns the caller's own resolved identity, including the impersonation
// marker when the credential is delegated.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	auth := AuthFromContext(r.Context())
	if auth == nil {
		httputil.WriteError(w, r, apperror.AuthRequired("authentication required"))
		return
	}
	httputil.WriteOK(w, r, auth)
}

type roleLabelsRequest struct {
	PrimaryRole string  `json:"primary_role"`
	AdminRole   *string `json:"admin_role,omitempty"`
}

// UpdateRoleLabels swaps an identity's role labels and synchronously purges
// its cached permission set.
func (h *Handlers) UpdateRoleLabels(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req roleLabelsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.PrimaryRole == "" {
		httputil.WriteError(w, r, apperror.InvalidInput("primary_role is required"))
		return
	}
	if err := h.store.UpdateRoleLabels(r.Context(), id, req.PrimaryRole, req.AdminRole); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.invalidate(id)

	ident, err := h.store.GetIdentity(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, ident)
}

type createTokenRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createTokenResponse struct {
	Token     *APIToken `json:"token"`
	Plaintext string    `json:"plaintext"`
}

// CreateToken mints a credential for an identity. The plaintext is returned
// exactly once and never stored.
func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req createTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, r, apperror.InvalidInput("token name is required"))
		return
	}
	if _, err := h.store.GetIdentity(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), id, req.Name, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, createTokenResponse{Token: token, Plaintext: plaintext})
}

func (h *Handlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	tokens, err := h.tokens.ListTokens(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, map[string]interface{}{"tokens": tokens})
}

func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := httputil.PathInt64(r, "tokenId")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := h.tokens.RevokeToken(r.Context(), tokenID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
