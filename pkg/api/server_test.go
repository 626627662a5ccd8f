package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/gatehouse/pkg/audit"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/governance"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/panel"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

type serverEnv struct {
	server    *Server
	db        *sql.DB
	idStore   *identity.Store
	tokens    *identity.TokenManager
	rbacStore *rbac.Store
}

const serverTestSchema = `
	CREATE TABLE identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		primary_role TEXT NOT NULL,
		admin_role TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		profile TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity_id INTEGER NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		token_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		revoked_at TIMESTAMP
	);
	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_system INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE role_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role_id INTEGER NOT NULL,
		permission_key TEXT NOT NULL,
		granted INTEGER NOT NULL DEFAULT 1,
		UNIQUE (role_id, permission_key)
	);
	CREATE TABLE user_roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		assigned_by INTEGER,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (identity_id, role_id)
	);
	CREATE TABLE capabilities (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		owner_module TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'stable',
		reason TEXT,
		last_error TEXT,
		metadata TEXT,
		last_checked_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE panels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		is_system INTEGER NOT NULL DEFAULT 0,
		config TEXT,
		capability_overrides TEXT,
		permission_subset TEXT,
		created_by INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE user_panels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity_id INTEGER NOT NULL,
		panel_id INTEGER NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (identity_id, panel_id)
	);
	CREATE TABLE platform_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_by INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT,
		entity_id TEXT,
		details TEXT,
		impact TEXT,
		super_admin INTEGER NOT NULL DEFAULT 0,
		ip_address TEXT,
		user_agent TEXT,
		request_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
`

func setupTestServer(t *testing.T) *serverEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(serverTestSchema)
	require.NoError(t, err)

	logger := observability.NopLogger()
	metrics := observability.NewMetrics()

	rbacStore := rbac.NewStore(db)
	cache := rbac.NewMemoryCache(128, time.Minute)
	resolver := rbac.NewResolver(rbacStore, cache, metrics, logger)
	rbacSvc := rbac.NewService(rbacStore, cache, logger)

	registry := capability.NewRegistry(capability.NewStore(db), metrics, logger)
	panelStore := panel.NewStore(db)
	panelSvc := panel.NewService(panelStore, registry, resolver, logger)

	idStore := identity.NewStore(db)
	tokens := identity.NewTokenManager(db)
	issuer := identity.NewImpersonationIssuer("test-secret-key", 15*time.Minute)
	idResolver := identity.NewResolver(idStore, tokens, issuer)

	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	engine := governance.NewEngine(governance.EngineDeps{
		Panels:     panelSvc,
		PanelStore: panelStore,
		Roles:      rbacSvc,
		RoleStore:  rbacStore,
		Resolver:   resolver,
		Registry:   registry,
		Identities: idStore,
		Issuer:     issuer,
		Settings:   governance.NewSettingsStore(db),
		Cache:      cache,
		Metrics:    metrics,
		Logger:     logger,
	})

	server := NewServer(Deps{
		DB:               db,
		Logger:           logger,
		Metrics:          metrics,
		IdentityStore:    idStore,
		Tokens:           tokens,
		IdentityResolver: idResolver,
		Roles:            rbacSvc,
		RoleResolver:     resolver,
		Registry:         registry,
		Panels:           panelSvc,
		Engine:           engine,
		AuditDB:          auditLog,
		AuditLogger:      auditLog,
	})

	return &serverEnv{
		server:    server,
		db:        db,
		idStore:   idStore,
		tokens:    tokens,
		rbacStore: rbacStore,
	}
}

// bearerFor creates an identity with the given role label and mints a token.
func (env *serverEnv) bearerFor(t *testing.T, role string) string {
	t.Helper()
	ctx := context.Background()
	ident := &identity.Identity{
		DisplayName: "User " + role,
		Email:       strings.ToLower(role) + "-" + strings.ToLower(t.Name()) + "@campus.test",
		PrimaryRole: role,
		IsActive:    true,
	}
	require.NoError(t, env.idStore.CreateIdentity(ctx, ident))
	_, plaintext, err := env.tokens.CreateToken(ctx, ident.ID, "test", nil)
	require.NoError(t, err)
	return plaintext
}

func (env *serverEnv) superBearer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if _, err := env.rbacStore.GetRoleByKey(ctx, rbac.RoleKeySuperAdmin); err != nil {
		role := &rbac.Role{Key: rbac.RoleKeySuperAdmin, DisplayName: "Super Admin", IsSystem: true, IsActive: true}
		require.NoError(t, env.rbacStore.CreateRole(ctx, role))
		require.NoError(t, env.rbacStore.ReplaceGrants(ctx, role.ID, []rbac.PermissionGrant{
			{RoleID: role.ID, PermissionKey: rbac.PermissionAll, Granted: true},
		}))
	}
	return env.bearerFor(t, rbac.RoleKeySuperAdmin)
}

func (env *serverEnv) do(t *testing.T, method, path, bearer string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequiredOnAPI(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_REQUIRED")
}

func TestMeEndpoint(t *testing.T) {
	env := setupTestServer(t)
	bearer := env.bearerFor(t, "STAFF")

	rec := env.do(t, http.MethodGet, "/api/v1/me", bearer, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestAdminGuardedBySuperPrivilege(t *testing.T) {
	env := setupTestServer(t)
	super := env.superBearer(t)
	staff := env.bearerFor(t, "STAFF")

	rec := env.do(t, http.MethodGet, "/api/v1/admin/roles", staff, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "PERMISSION_DENIED")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/roles", super, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleCreateAndDeleteTwoStep(t *testing.T) {
	env := setupTestServer(t)
	super := env.superBearer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/roles", super,
		`{"key":"LIBRARIAN","display_name":"Librarian"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.Data.ID)
	rolePath := "/api/v1/admin/roles/" + strconv.FormatInt(created.Data.ID, 10)

	// Assign the role so the delete demands confirmation.
	member := &identity.Identity{
		DisplayName: "Role Member",
		Email:       "member@campus.test",
		PrimaryRole: "STAFF",
		IsActive:    true,
	}
	require.NoError(t, env.idStore.CreateIdentity(context.Background(), member))
	rec = env.do(t, http.MethodPost, rolePath+"/assignments", super,
		`{"identity_id":`+strconv.FormatInt(member.ID, 10)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Round one: no confirmation header. The impact comes back, nothing moves.
	rec = env.do(t, http.MethodDelete, rolePath, super, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requires_confirmation":true`)
	rec = env.do(t, http.MethodGet, rolePath, super, "")
	assert.Equal(t, http.StatusOK, rec.Code, "role must survive the unconfirmed round")

	// Unassign, confirm, delete.
	rec = env.do(t, http.MethodDelete, rolePath+"/assignments/"+strconv.FormatInt(member.ID, 10), super, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, rolePath, nil)
	req.Header.Set("Authorization", "Bearer "+super)
	req.Header.Set("X-Confirm-Action", "true")
	resp := httptest.NewRecorder()
	env.server.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"executed":true`)
	assert.Contains(t, resp.Body.String(), `"impact"`, "the executed action must carry its impact snapshot")

	rec = env.do(t, http.MethodGet, rolePath, super, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The engine wrote the one and only trail record for the deletion.
	assert.Equal(t, 1, env.auditCount(t, "role.delete"))
}

func (env *serverEnv) auditCount(t *testing.T, action string) int {
	t.Helper()
	var count int
	require.NoError(t, env.db.QueryRow(
		`SELECT COUNT(*) FROM audit_logs WHERE action = $1`, action,
	).Scan(&count))
	return count
}

func TestPanelDeleteThroughREST(t *testing.T) {
	env := setupTestServer(t)
	super := env.superBearer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/panels", super,
		`{"name":"Registrar"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	panelPath := "/api/v1/admin/panels/" + strconv.FormatInt(created.Data.ID, 10)

	req := httptest.NewRequest(http.MethodDelete, panelPath, nil)
	req.Header.Set("Authorization", "Bearer "+super)
	req.Header.Set("X-Confirm-Action", "true")
	resp := httptest.NewRecorder()
	env.server.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"executed":true`)

	rec = env.do(t, http.MethodGet, "/api/v1/panels/"+strconv.FormatInt(created.Data.ID, 10), super, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1, env.auditCount(t, "panel.delete"), "a confirmed delete is audited exactly once")
}

func TestCapabilityDisableRejectedOnStatusEndpoint(t *testing.T) {
	env := setupTestServer(t)
	super := env.superBearer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/capabilities", super,
		`{"id":"exams","display_name":"Exams"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/capabilities/exams/status", super,
		`{"status":"disabled","reason":"maintenance"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATE_TRANSITION")

	rec = env.do(t, http.MethodGet, "/api/v1/capabilities/exams", super, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"stable"`)

	// Degrading stays a plain operator action.
	rec = env.do(t, http.MethodPut, "/api/v1/admin/capabilities/exams/status", super,
		`{"status":"degraded","reason":"grading backlog"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCapabilityListVisibleToAllAuthenticated(t *testing.T) {
	env := setupTestServer(t)
	bearer := env.bearerFor(t, "STAFF")

	// Registering needs super privilege.
	rec := env.do(t, http.MethodPost, "/api/v1/admin/capabilities", bearer,
		`{"id":"attendance","display_name":"Attendance"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	super := env.superBearer(t)
	rec = env.do(t, http.MethodPost, "/api/v1/admin/capabilities", super,
		`{"id":"attendance","display_name":"Attendance"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/capabilities", bearer, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attendance")
}

func TestAuditTrailQueryable(t *testing.T) {
	env := setupTestServer(t)
	super := env.superBearer(t)

	// A confirmed destructive action leaves a trail record.
	rec := env.do(t, http.MethodPost, "/api/v1/admin/panels", super, `{"name":"Temp"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodDelete,
		"/api/v1/admin/panels/"+strconv.FormatInt(created.Data.ID, 10), nil)
	req.Header.Set("Authorization", "Bearer "+super)
	req.Header.Set("X-Confirm-Action", "true")
	resp := httptest.NewRecorder()
	env.server.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/audit?action=panel.delete", super, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "panel.delete")
}
