package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO roles (key, display_name, description, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		role.Key, role.DisplayName, role.Description,
		role.IsSystem, role.IsActive, now, now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by id.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, key, display_name, description, is_system, is_active, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID, &role.Key, &role.DisplayName, &role.Description,
		&role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("role %d not found", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByKey retrieves a role by machine key.
func (s *Store) GetRoleByKey(ctx context.Context, key string) (*Role, error) {
	query := `
		SELECT id, key, display_name, description, is_system, is_active, created_at, updated_at
		FROM roles
		WHERE key = $1
	`
	var role Role
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&role.ID, &role.Key, &role.DisplayName, &role.Description,
		&role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("role %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles lists all roles, system roles first.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, key, display_name, description, is_system, is_active, created_at, updated_at
		FROM roles
		ORDER BY is_system DESC, key ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID, &role.Key, &role.DisplayName, &role.Description,
			&role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates display name, description and activation. A system role
// can never be deactivated.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	existing, err := s.GetRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if existing.IsSystem && !role.IsActive {
		return apperror.InvalidStateTransition("system role %q cannot be deactivated", existing.Key)
	}

	role.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE roles SET display_name = $1, description = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		role.DisplayName, role.Description, role.IsActive, role.UpdatedAt, role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// DeleteRole removes a role. System roles and roles with user assignments
// refuse deletion.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperror.InvalidInput("system role %q cannot be deleted", role.Key)
	}

	count, err := s.CountAssignments(ctx, roleID)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperror.InvalidInput("role %q has %d user assignments", role.Key, count).
			WithDetail("assignmentCount", count)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return tx.Commit()
}

// CountAssignments returns the number of identities explicitly holding a role.
func (s *Store) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}

// ListGrants returns the permission grant rows of a role.
func (s *Store) ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id, permission_key, granted FROM role_permissions WHERE role_id = $1 ORDER BY permission_key ASC`,
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		if err := rows.Scan(&g.RoleID, &g.PermissionKey, &g.Granted); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ReplaceGrants swaps the full grant set of a role inside one transaction:
// either every row is replaced and the commit lands, or none are.
func (s *Store) ReplaceGrants(ctx context.Context, roleID int64, grants []PermissionGrant) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear grants: %w", err)
	}

	for _, g := range grants {
		if g.PermissionKey == "" {
			return apperror.InvalidInput("permission key must not be empty")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_key, granted) VALUES ($1, $2, $3)`,
			roleID, g.PermissionKey, g.Granted,
		); err != nil {
			return fmt.Errorf("failed to insert grant: %w", err)
		}
	}

	return tx.Commit()
}

// AssignRole adds an explicit identity-to-role edge.
func (s *Store) AssignRole(ctx context.Context, a *Assignment) error {
	if _, err := s.GetRole(ctx, a.RoleID); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO user_roles (identity_id, role_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, a.IdentityID, a.RoleID, a.AssignedBy, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	a.AssignedAt = now
	return nil
}

// UnassignRole removes an explicit identity-to-role edge.
func (s *Store) UnassignRole(ctx context.Context, identityID, roleID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE identity_id = $1 AND role_id = $2`,
		identityID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("identity %d does not hold role %d", identityID, roleID)
	}
	return nil
}

// IdentitiesWithRole lists identity ids explicitly assigned a role. Used by
// the invalidation path and by governance impact analysis.
func (s *Store) IdentitiesWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_id FROM user_roles WHERE role_id = $1`, roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// identityRoleLabels loads the primary/secondary role labels of an identity.
// Missing identities resolve to empty labels: the resolver fails closed.
func (s *Store) identityRoleLabels(ctx context.Context, identityID int64) (string, string, error) {
	var primary string
	var admin sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT primary_role, admin_role FROM identities WHERE id = $1`, identityID,
	).Scan(&primary, &admin)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load role labels: %w", err)
	}
	return primary, admin.String, nil
}

// assignedRoles loads the explicitly assigned, active roles of an identity.
func (s *Store) assignedRoles(ctx context.Context, identityID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.key, r.display_name, r.description, r.is_system, r.is_active, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.identity_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigned roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID, &role.Key, &role.DisplayName, &role.Description,
			&role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// grantedPermissions flattens granted=true permission keys across role ids.
func (s *Store) grantedPermissions(ctx context.Context, roleIDs []int64) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT permission_key FROM role_permissions WHERE role_id IN (%s) AND granted = TRUE ORDER BY permission_key ASC`,
		strings.Join(placeholders, ", "),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}
