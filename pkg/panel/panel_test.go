package panel

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

func setupTestService(t *testing.T) (*Service, *sql.DB, *capability.Registry) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
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
	`)
	require.NoError(t, err)

	logger := observability.NopLogger()
	metrics := observability.NewMetrics()
	registry := capability.NewRegistry(capability.NewStore(db), metrics, logger)
	resolver := rbac.NewResolver(rbac.NewStore(db), rbac.NewMemoryCache(128, time.Minute), metrics, logger)
	svc := NewService(NewStore(db), registry, resolver, logger)
	return svc, db, registry
}

func createTestPanel(t *testing.T, svc *Service, name string) *Panel {
	t.Helper()
	p := &Panel{
		Name: name,
		Config: Config{
			Theme:      Theme{Mode: "light", PrimaryColor: "#1a2b3c"},
			Navigation: []NavItem{{Label: "Home", Path: "/home"}},
		},
	}
	require.NoError(t, svc.Create(context.Background(), p))
	return p
}

func TestCreateValidatesConfig(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	err := svc.Create(ctx, &Panel{
		Name:   "Broken",
		Config: Config{Theme: Theme{PrimaryColor: "not-a-color"}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))

	err = svc.Create(ctx, &Panel{
		Name:   "Broken nav",
		Config: Config{Navigation: []NavItem{{Label: "Home", Path: "home"}}},
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))

	err = svc.Create(ctx, &Panel{Name: "   "})
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestCreateValidatesOverrides(t *testing.T) {
	svc, _, _ := setupTestService(t)

	err := svc.Create(context.Background(), &Panel{
		Name: "Bad override",
		CapabilityOverrides: map[string]CapabilityOverride{
			"payroll": {Status: "offline"},
		},
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestDefaultPanelUniqueness(t *testing.T) {
	svc, db, _ := setupTestService(t)
	ctx := context.Background()

	p1 := createTestPanel(t, svc, "Teacher Home")
	p2 := createTestPanel(t, svc, "Exam Season")
	p3 := createTestPanel(t, svc, "Minimal")

	const identityID = int64(42)
	_, err := svc.Assign(ctx, identityID, p1.ID, true)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, identityID, p2.ID, true)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, identityID, p3.ID, false)
	require.NoError(t, err)
	// Flip an existing assignment to default.
	_, err = svc.Assign(ctx, identityID, p1.ID, true)
	require.NoError(t, err)

	var defaults int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM user_panels WHERE identity_id = $1 AND is_default = TRUE`, identityID,
	).Scan(&defaults))
	assert.Equal(t, 1, defaults)

	def, err := svc.DefaultFor(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, def.ID)

	assignments, err := svc.AssignmentsFor(ctx, identityID)
	require.NoError(t, err)
	assert.Len(t, assignments, 3)
}

func TestSystemPanelImmutability(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	p := &Panel{Name: "Campus Default", IsSystem: true}
	require.NoError(t, svc.Create(ctx, p))

	// The system flag cannot be flipped through update.
	update := *p
	update.IsSystem = false
	err := svc.Update(ctx, &update)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStateTransition))

	// Non-governance archive is refused.
	_, err = svc.Archive(ctx, p.ID, false)
	assert.True(t, apperror.IsCode(err, apperror.CodePermissionDenied))

	// Governance may archive it.
	archived, err := svc.Archive(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	// Deletion of a system panel is refused unconditionally.
	err = svc.Delete(ctx, p.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestDeletePreconditions(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	p := createTestPanel(t, svc, "Doomed")
	_, err := svc.Assign(ctx, 7, p.ID, false)
	require.NoError(t, err)

	err = svc.Delete(ctx, p.ID)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Details["assignmentCount"])

	require.NoError(t, svc.Unassign(ctx, 7, p.ID))
	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.Get(ctx, p.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}

func TestPublishLifecycle(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	p := createTestPanel(t, svc, "Rollout")
	assert.Equal(t, StatusDraft, p.Status)

	published, err := svc.Publish(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, published.Status)

	_, err = svc.Publish(ctx, p.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStateTransition))

	archived, err := svc.Archive(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	_, err = svc.Archive(ctx, p.ID, false)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStateTransition))
}

func TestCloneProducesDetachedDraft(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	src := &Panel{
		Name:     "System Base",
		IsSystem: true,
		Config:   Config{Theme: Theme{Mode: "dark"}},
		CapabilityOverrides: map[string]CapabilityOverride{
			"reports": {Status: capability.StatusDegraded, Reason: "beta"},
		},
		PermissionSubset: []string{"reports:view"},
	}
	require.NoError(t, svc.Create(ctx, src))
	_, err := svc.Publish(ctx, src.ID)
	require.NoError(t, err)

	clone, err := svc.Clone(ctx, src.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "System Base (copy)", clone.Name)
	assert.Equal(t, StatusDraft, clone.Status)
	assert.False(t, clone.IsSystem, "clones must never inherit the system flag")
	assert.Equal(t, src.CapabilityOverrides, clone.CapabilityOverrides)
	assert.Equal(t, src.PermissionSubset, clone.PermissionSubset)
	assert.NotEqual(t, src.ID, clone.ID)
}

func TestEffectiveCapabilities(t *testing.T) {
	svc, _, registry := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, &capability.Capability{ID: "attendance", DisplayName: "Attendance"}))
	require.NoError(t, registry.Register(ctx, &capability.Capability{ID: "payroll", DisplayName: "Payroll"}))
	_, err := registry.UpdateStatus(ctx, "payroll", capability.StatusDegraded, "slow ledger", "")
	require.NoError(t, err)

	p := &Panel{
		Name: "Reception",
		CapabilityOverrides: map[string]CapabilityOverride{
			"attendance": {Status: capability.StatusDisabled, Reason: "hidden at reception"},
			"ghost":      {Status: capability.StatusDisabled, Reason: "not in registry"},
		},
	}
	require.NoError(t, svc.Create(ctx, p))

	caps, err := svc.EffectiveCapabilities(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, caps, 2, "overrides for unknown ids must not invent entries")

	byID := make(map[string]EffectiveCapability, len(caps))
	for _, c := range caps {
		byID[c.ID] = c
	}
	assert.Equal(t, capability.StatusDisabled, byID["attendance"].Status)
	assert.True(t, byID["attendance"].Overridden)
	assert.Equal(t, "hidden at reception", byID["attendance"].Reason)

	assert.Equal(t, capability.StatusDegraded, byID["payroll"].Status)
	assert.False(t, byID["payroll"].Overridden)
	assert.Equal(t, "slow ledger", byID["payroll"].Reason)
}

func TestEffectivePermissionsNarrows(t *testing.T) {
	svc, db, _ := setupTestService(t)
	ctx := context.Background()

	rbacStore := rbac.NewStore(db)
	role := &rbac.Role{Key: "TEACHER", DisplayName: "Teacher", IsActive: true}
	require.NoError(t, rbacStore.CreateRole(ctx, role))
	require.NoError(t, rbacStore.ReplaceGrants(ctx, role.ID, []rbac.PermissionGrant{
		{RoleID: role.ID, PermissionKey: "exams:view", Granted: true},
		{RoleID: role.ID, PermissionKey: "exams:grade", Granted: true},
		{RoleID: role.ID, PermissionKey: "attendance:record", Granted: true},
	}))

	var identityID int64
	require.NoError(t, db.QueryRow(
		`INSERT INTO identities (display_name, email, primary_role, is_active)
		 VALUES ('T', 't@campus.test', 'TEACHER', TRUE) RETURNING id`,
	).Scan(&identityID))

	p := &Panel{
		Name:             "Exam Hall",
		PermissionSubset: []string{"exams:view", "payroll:generate"},
	}
	require.NoError(t, svc.Create(ctx, p))

	set, err := svc.EffectivePermissions(ctx, p.ID, identityID)
	require.NoError(t, err)
	// The whitelist narrows to the intersection; it cannot grant
	// payroll:generate, which the identity's roles never conferred.
	assert.Equal(t, []string{"exams:view"}, set.Permissions)

	// A panel with no whitelist does not restrict.
	open := createTestPanel(t, svc, "Open")
	set, err = svc.EffectivePermissions(ctx, open.ID, identityID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exams:view", "exams:grade", "attendance:record"}, set.Permissions)
}

func TestEffectivePermissionsSuperPassthrough(t *testing.T) {
	svc, db, _ := setupTestService(t)
	ctx := context.Background()

	rbacStore := rbac.NewStore(db)
	role := &rbac.Role{Key: rbac.RoleKeySuperAdmin, DisplayName: "Super Admin", IsSystem: true, IsActive: true}
	require.NoError(t, rbacStore.CreateRole(ctx, role))
	require.NoError(t, rbacStore.ReplaceGrants(ctx, role.ID, []rbac.PermissionGrant{
		{RoleID: role.ID, PermissionKey: rbac.PermissionAll, Granted: true},
	}))

	var identityID int64
	require.NoError(t, db.QueryRow(
		`INSERT INTO identities (display_name, email, primary_role, is_active)
		 VALUES ('Root', 'root@campus.test', 'SUPER_ADMIN', TRUE) RETURNING id`,
	).Scan(&identityID))

	p := &Panel{Name: "Tiny", PermissionSubset: []string{"attendance:view"}}
	require.NoError(t, svc.Create(ctx, p))

	set, err := svc.EffectivePermissions(ctx, p.ID, identityID)
	require.NoError(t, err)
	assert.True(t, set.Super)
	assert.Equal(t, []string{rbac.PermissionAll}, set.Permissions)
}
