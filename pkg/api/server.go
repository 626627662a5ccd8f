// Package api assembles the HTTP surface of the control plane: the public
// health and metrics endpoints plus the authenticated /api/v1 routes.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/governance"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/middleware"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/panel"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

// Server represents the API server.
type Server struct {
	router *mux.Router
	db     *sql.DB
	logger *observability.Logger

	identityHandlers   *identity.Handlers
	roleHandlers       *rbac.Handlers
	capabilityHandlers *capability.Handlers
	panelHandlers      *panel.Handlers
	governanceHandlers *governance.Handlers
	auditHandlers      *audit.Handlers

	engine      *governance.Engine
	metrics     *observability.Metrics
	auth        func(http.Handler) http.Handler
	rateLimit   func(http.Handler) http.Handler
	auditLogger audit.Logger
}

// Deps bundles the server's collaborators. Main chooses the concrete rate
// limiter and audit sink; the server only wires routes.
type Deps struct {
	DB               *sql.DB
	Logger           *observability.Logger
	Metrics          *observability.Metrics
	IdentityStore    *identity.Store
	Tokens           *identity.TokenManager
	IdentityResolver *identity.Resolver
	Roles            *rbac.Service
	RoleResolver     *rbac.Resolver
	Registry         *capability.Registry
	Panels           *panel.Service
	Engine           *governance.Engine
	AuditDB          *audit.DBLogger
	AuditLogger      audit.Logger
	RateLimit        func(http.Handler) http.Handler
}

// NewServer creates the API server and configures its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		db:          deps.DB,
		logger:      deps.Logger,
		engine:      deps.Engine,
		metrics:     deps.Metrics,
		auditLogger: deps.AuditLogger,
		rateLimit:   deps.RateLimit,
	}

	if s.rateLimit == nil {
		s.rateLimit = middleware.RateLimit(middleware.NewRateLimiter(nil), deps.Metrics)
	}
	s.auth = middleware.Auth(deps.IdentityResolver, deps.Logger)
	s.identityHandlers = identity.NewHandlers(deps.IdentityStore, deps.Tokens, deps.Roles.InvalidateIdentity, deps.Logger)
	s.roleHandlers = rbac.NewHandlers(deps.Roles, deps.RoleResolver, deps.Logger)
	s.capabilityHandlers = capability.NewHandlers(deps.Registry, deps.Logger)
	s.panelHandlers = panel.NewHandlers(deps.Panels, deps.Logger)
	s.governanceHandlers = governance.NewHandlers(deps.Engine, deps.Logger)
	s.auditHandlers = audit.NewHandlers(deps.AuditDB, deps.Logger)

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes() {
	// Public endpoints, outside the authenticated chain.
	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		middleware.RequestID,
		middleware.Recovery(s.logger),
		s.rateLimit,
		audit.Middleware(s.auditLogger),
		s.auth,
	)

	// Self-service routes: any authenticated identity.
	api.HandleFunc("/me", s.identityHandlers.Me).Methods("GET")
	api.HandleFunc("/permissions/catalogue", s.roleHandlers.Catalogue).Methods("GET")
	api.HandleFunc("/capabilities", s.capabilityHandlers.List).Methods("GET")
	api.HandleFunc("/capabilities/{id}", s.capabilityHandlers.Get).Methods("GET")
	api.HandleFunc("/panels", s.panelHandlers.List).Methods("GET")
	api.HandleFunc("/panels/{id}", s.panelHandlers.Get).Methods("GET")
	api.HandleFunc("/panels/{id}/effective-capabilities", s.panelHandlers.EffectiveCapabilities).Methods("GET")
	api.HandleFunc("/panels/{id}/effective-permissions", s.panelHandlers.EffectivePermissions).Methods("GET")

	// Administration routes: super-privileged identities only.
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.engine.RequireSuperAdmin)

	// Identity management. Deletion runs through the governance engine so it
	// gets the same impact preview and audit trail as any destructive action.
	admin.HandleFunc("/identities", s.identityHandlers.Create).Methods("POST")
	admin.HandleFunc("/identities/{id}", s.identityHandlers.Get).Methods("GET")
	admin.HandleFunc("/identities/{id}/roles", s.identityHandlers.UpdateRoleLabels).Methods("PUT")
	admin.HandleFunc("/identities/{id}/roles", s.roleHandlers.IdentityRoles).Methods("GET")
	admin.HandleFunc("/identities/{id}/permissions", s.roleHandlers.IdentityPermissions).Methods("GET")
	admin.Handle("/identities/{id}", s.destructive(governance.ActionIdentityDelete, "id",
		http.HandlerFunc(s.deleteIdentity))).Methods("DELETE")
	admin.HandleFunc("/identities/{id}/tokens", s.identityHandlers.CreateToken).Methods("POST")
	admin.HandleFunc("/identities/{id}/tokens", s.identityHandlers.ListTokens).Methods("GET")
	admin.HandleFunc("/identities/{id}/tokens/{tokenId}", s.identityHandlers.RevokeToken).Methods("DELETE")

	// Role management.
	admin.HandleFunc("/roles", s.roleHandlers.CreateRole).Methods("POST")
	admin.HandleFunc("/roles", s.roleHandlers.ListRoles).Methods("GET")
	admin.HandleFunc("/roles/{id}", s.roleHandlers.GetRole).Methods("GET")
	admin.HandleFunc("/roles/{id}", s.roleHandlers.UpdateRole).Methods("PUT")
	admin.Handle("/roles/{id}", s.destructive(governance.ActionRoleDelete, "id",
		http.HandlerFunc(s.deleteRole))).Methods("DELETE")
	admin.HandleFunc("/roles/{id}/permissions", s.roleHandlers.ListGrants).Methods("GET")
	admin.HandleFunc("/roles/{id}/permissions", s.roleHandlers.ReplaceGrants).Methods("PUT")
	admin.HandleFunc("/roles/{id}/assignments", s.roleHandlers.AssignRole).Methods("POST")
	admin.HandleFunc("/roles/{id}/assignments/{identityId}", s.roleHandlers.UnassignRole).Methods("DELETE")

	// Capability registry. Disabling goes through /governance/execute.
	admin.HandleFunc("/capabilities", s.capabilityHandlers.Register).Methods("POST")
	admin.Handle("/capabilities/{id}/status",
		s.engine.AuditSuperAdminAction("capability.status.change")(
			http.HandlerFunc(s.capabilityHandlers.UpdateStatus))).Methods("PUT")

	// Panel management.
	admin.HandleFunc("/panels", s.panelHandlers.Create).Methods("POST")
	admin.HandleFunc("/panels/{id}", s.panelHandlers.Update).Methods("PUT")
	admin.Handle("/panels/{id}", s.destructive(governance.ActionPanelDelete, "id",
		http.HandlerFunc(s.deletePanel))).Methods("DELETE")
	admin.HandleFunc("/panels/{id}/publish", s.panelHandlers.Publish).Methods("POST")
	admin.HandleFunc("/panels/{id}/archive", s.panelHandlers.Archive).Methods("POST")
	admin.HandleFunc("/panels/{id}/clone", s.panelHandlers.Clone).Methods("POST")
	admin.HandleFunc("/panels/{id}/assignments", s.panelHandlers.Assign).Methods("POST")
	admin.HandleFunc("/panels/{id}/assignments/{identityId}", s.panelHandlers.Unassign).Methods("DELETE")

	// Governance surface.
	admin.HandleFunc("/governance/impact", s.governanceHandlers.Impact).Methods("POST")
	admin.HandleFunc("/governance/execute", s.governanceHandlers.Execute).Methods("POST")
	admin.HandleFunc("/governance/impersonate", s.governanceHandlers.Impersonate).Methods("POST")
	admin.HandleFunc("/governance/impersonate/end", s.governanceHandlers.EndImpersonation).Methods("POST")
	admin.HandleFunc("/governance/settings", s.governanceHandlers.ListSettings).Methods("GET")
	admin.HandleFunc("/governance/settings/{key}", s.governanceHandlers.GetSetting).Methods("GET")

	// Audit trail queries.
	admin.HandleFunc("/audit", s.auditHandlers.Search).Methods("GET")
}

// destructive wraps a delete handler in the two-step confirmation gate. The
// handlers behind it run through the governance engine, which writes the one
// audit record for the action; no extra trail middleware is layered here.
func (s *Server) destructive(action governance.ActionType, pathVar string, next http.Handler) http.Handler {
	extract := func(r *http.Request) (string, error) {
		return httputil.PathString(r, pathVar)
	}
	return s.engine.RequireDestructiveConfirmation(action, extract)(next)
}

// deletePanel routes a REST delete through the governance engine. The
// confirmation gate already ran, so the request is submitted confirmed.
func (s *Server) deletePanel(w http.ResponseWriter, r *http.Request) {
	s.executeConfirmed(w, r, governance.ActionPanelDelete)
}

func (s *Server) deleteIdentity(w http.ResponseWriter, r *http.Request) {
	s.executeConfirmed(w, r, governance.ActionIdentityDelete)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	s.executeConfirmed(w, r, governance.ActionRoleDelete)
}

func (s *Server) executeConfirmed(w http.ResponseWriter, r *http.Request, action governance.ActionType) {
	entityID, err := httputil.PathString(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	result, err := s.engine.Execute(r.Context(), identity.AuthFromContext(r.Context()), governance.ExecuteRequest{
		Action:    action,
		EntityID:  entityID,
		Confirmed: true,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteOK(w, r, result)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		_ = httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
