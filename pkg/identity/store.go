package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// Store handles identity persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetIdentity retrieves an identity by id.
func (s *Store) GetIdentity(ctx context.Context, id int64) (*Identity, error) {
	query := `
		SELECT id, display_name, email, primary_role, admin_role, is_active, profile, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	var ident Identity
	var adminRole sql.NullString
	var profileJSON sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ident.ID, &ident.DisplayName, &ident.Email,
		&ident.PrimaryRole, &adminRole, &ident.IsActive,
		&profileJSON, &ident.CreatedAt, &ident.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("identity %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if adminRole.Valid {
		ar := adminRole.String
		ident.AdminRole = &ar
	}
	if profileJSON.Valid && profileJSON.String != "" {
		if err := json.Unmarshal([]byte(profileJSON.String), &ident.Profile); err != nil {
			ident.Profile = nil
		}
	}

	return &ident, nil
}

// CreateIdentity inserts a new identity record.
func (s *Store) CreateIdentity(ctx context.Context, ident *Identity) error {
	profileJSON, err := json.Marshal(ident.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO identities (display_name, email, primary_role, admin_role, is_active, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		ident.DisplayName, ident.Email, ident.PrimaryRole, ident.AdminRole,
		ident.IsActive, string(profileJSON), now, now,
	).Scan(&ident.ID)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	ident.CreatedAt = now
	ident.UpdatedAt = now
	return nil
}

// UpdateRoleLabels mutates the primary/secondary role labels of an identity.
func (s *Store) UpdateRoleLabels(ctx context.Context, id int64, primaryRole string, adminRole *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET primary_role = $1, admin_role = $2, updated_at = $3 WHERE id = $4`,
		primaryRole, adminRole, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update role labels: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("identity %d not found", id)
	}
	return nil
}

// DeleteIdentity removes an identity record along with its role assignments,
// panel assignments, and tokens, in one transaction. Only the governance
// engine calls this; the impact analysis runs before it.
func (s *Store) DeleteIdentity(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM user_roles WHERE identity_id = $1`,
		`DELETE FROM user_panels WHERE identity_id = $1`,
		`DELETE FROM api_tokens WHERE identity_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete identity edges: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("identity %d not found", id)
	}
	return tx.Commit()
}

// CountIdentities returns the total identity count.
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return count, nil
}

// CountTokens returns the number of active (unrevoked) tokens for an identity.
func (s *Store) CountTokens(ctx context.Context, identityID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_tokens WHERE identity_id = $1 AND revoked_at IS NULL`,
		identityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}
