package capability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// Store persists capability records.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert registers a capability or refreshes its display metadata. A
// re-register never clobbers runtime status, reason or last error: operators
// own those.
func (s *Store) Upsert(ctx context.Context, c *Capability) error {
	now := time.Now().UTC()

	var metadata []byte
	if c.Metadata != nil {
		var err error
		metadata, err = json.Marshal(c.Metadata)
		if err != nil {
			return apperror.InvalidInput("capability metadata is not serializable").WithCause(err)
		}
	}

	status := c.Status
	if status == "" {
		status = StatusStable
	}

	query := `
		INSERT INTO capabilities (id, display_name, owner_module, description, status, reason, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			owner_module = EXCLUDED.owner_module,
			description = EXCLUDED.description,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.DisplayName, c.OwnerModule, c.Description, status, c.Reason, metadata, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert capability: %w", err)
	}
	return nil
}

const capabilityColumns = `id, display_name, owner_module, description, status, reason, last_error, metadata, last_checked_at, created_at, updated_at`

func scanCapability(row interface{ Scan(...interface{}) error }) (*Capability, error) {
	var c Capability
	var reason, lastError sql.NullString
	var metadata []byte
	err := row.Scan(
		&c.ID, &c.DisplayName, &c.OwnerModule, &c.Description, &c.Status,
		&reason, &lastError, &metadata, &c.LastCheckedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Reason = reason.String
	c.LastError = lastError.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode capability metadata: %w", err)
		}
	}
	return &c, nil
}

// Get loads one capability by id.
func (s *Store) Get(ctx context.Context, id string) (*Capability, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+capabilityColumns+` FROM capabilities WHERE id = $1`, id,
	)
	c, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("capability %q not registered", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capability: %w", err)
	}
	return c, nil
}

// List returns every registered capability ordered by id.
func (s *Store) List(ctx context.Context) ([]Capability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+capabilityColumns+` FROM capabilities ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer rows.Close()

	var out []Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetStatus stamps a new status, reason, last error and check time on a
// capability.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, reason, lastError string) (*Capability, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE capabilities SET status = $1, reason = $2, last_error = $3, last_checked_at = $4, updated_at = $5 WHERE id = $6`,
		status, reason, lastError, now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update capability status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("capability %q not registered", id)
	}
	return s.Get(ctx, id)
}
