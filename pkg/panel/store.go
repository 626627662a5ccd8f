package panel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// Store persists panels and panel assignments.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const panelColumns = `id, name, description, status, is_system, config, capability_overrides, permission_subset, created_by, created_at, updated_at`

func scanPanel(row interface{ Scan(...interface{}) error }) (*Panel, error) {
	var p Panel
	var config, overrides, subset []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Status, &p.IsSystem,
		&config, &overrides, &subset, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &p.Config); err != nil {
			return nil, fmt.Errorf("failed to decode panel config: %w", err)
		}
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &p.CapabilityOverrides); err != nil {
			return nil, fmt.Errorf("failed to decode panel overrides: %w", err)
		}
	}
	if len(subset) > 0 {
		if err := json.Unmarshal(subset, &p.PermissionSubset); err != nil {
			return nil, fmt.Errorf("failed to decode panel permission subset: %w", err)
		}
	}
	return &p, nil
}

func encodePanel(p *Panel) (config, overrides, subset []byte, err error) {
	if config, err = json.Marshal(p.Config); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode panel config: %w", err)
	}
	if p.CapabilityOverrides != nil {
		if overrides, err = json.Marshal(p.CapabilityOverrides); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode panel overrides: %w", err)
		}
	}
	if p.PermissionSubset != nil {
		if subset, err = json.Marshal(p.PermissionSubset); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode panel permission subset: %w", err)
		}
	}
	return config, overrides, subset, nil
}

// Create inserts a new panel.
func (s *Store) Create(ctx context.Context, p *Panel) error {
	config, overrides, subset, err := encodePanel(p)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO panels (name, description, status, is_system, config, capability_overrides, permission_subset, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Status, p.IsSystem,
		config, overrides, subset, p.CreatedBy, now, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create panel: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Get loads one panel by id.
func (s *Store) Get(ctx context.Context, panelID int64) (*Panel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+panelColumns+` FROM panels WHERE id = $1`, panelID,
	)
	p, err := scanPanel(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("panel %d not found", panelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get panel: %w", err)
	}
	return p, nil
}

// List returns every panel ordered by name.
func (s *Store) List(ctx context.Context) ([]Panel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+panelColumns+` FROM panels ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}
	defer rows.Close()

	var out []Panel
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan panel: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update rewrites a panel's mutable fields.
func (s *Store) Update(ctx context.Context, p *Panel) error {
	config, overrides, subset, err := encodePanel(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE panels
		SET name = $1, description = $2, status = $3, config = $4,
		    capability_overrides = $5, permission_subset = $6, updated_at = $7
		WHERE id = $8`,
		p.Name, p.Description, p.Status, config, overrides, subset, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update panel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("panel %d not found", p.ID)
	}
	return nil
}

// Delete removes a panel and its assignments in one transaction. Callers
// enforce the deletion preconditions first.
func (s *Store) Delete(ctx context.Context, panelID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_panels WHERE panel_id = $1`, panelID); err != nil {
		return fmt.Errorf("failed to delete panel assignments: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM panels WHERE id = $1`, panelID)
	if err != nil {
		return fmt.Errorf("failed to delete panel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("panel %d not found", panelID)
	}
	return tx.Commit()
}

// CountAssignments returns the number of identities assigned to a panel.
func (s *Store) CountAssignments(ctx context.Context, panelID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_panels WHERE panel_id = $1`, panelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count panel assignments: %w", err)
	}
	return count, nil
}

// Assign attaches a panel to an identity. When asDefault is set, any prior
// default for that identity is cleared in the same transaction: concurrent
// readers never observe two defaults.
func (s *Store) Assign(ctx context.Context, identityID, panelID int64, asDefault bool) (*Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if asDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_panels SET is_default = FALSE WHERE identity_id = $1 AND is_default = TRUE`,
			identityID,
		); err != nil {
			return nil, fmt.Errorf("failed to clear prior default panel: %w", err)
		}
	}

	now := time.Now().UTC()
	a := &Assignment{IdentityID: identityID, PanelID: panelID, IsDefault: asDefault, AssignedAt: now}

	// Re-assigning an existing edge just updates its default flag.
	res, err := tx.ExecContext(ctx,
		`UPDATE user_panels SET is_default = $1 WHERE identity_id = $2 AND panel_id = $3`,
		asDefault, identityID, panelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update panel assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO user_panels (identity_id, panel_id, is_default, assigned_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			identityID, panelID, asDefault, now,
		).Scan(&a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to assign panel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit panel assignment: %w", err)
	}
	return a, nil
}

// Unassign removes an identity-to-panel edge.
func (s *Store) Unassign(ctx context.Context, identityID, panelID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_panels WHERE identity_id = $1 AND panel_id = $2`,
		identityID, panelID,
	)
	if err != nil {
		return fmt.Errorf("failed to unassign panel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("identity %d is not assigned panel %d", identityID, panelID)
	}
	return nil
}

// AssignmentsFor lists an identity's panel assignments.
func (s *Store) AssignmentsFor(ctx context.Context, identityID int64) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_id, panel_id, is_default, assigned_at
		 FROM user_panels WHERE identity_id = $1 ORDER BY assigned_at ASC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list panel assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.PanelID, &a.IsDefault, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan panel assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DefaultFor returns the identity's default panel, or NotFound when none is
// marked.
func (s *Store) DefaultFor(ctx context.Context, identityID int64) (*Panel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prefixedPanelColumns+`
		 FROM panels p
		 JOIN user_panels up ON up.panel_id = p.id
		 WHERE up.identity_id = $1 AND up.is_default = TRUE`,
		identityID,
	)
	p, err := scanPanel(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("identity %d has no default panel", identityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default panel: %w", err)
	}
	return p, nil
}

const prefixedPanelColumns = `p.id, p.name, p.description, p.status, p.is_system, p.config, p.capability_overrides, p.permission_subset, p.created_by, p.created_at, p.updated_at`
