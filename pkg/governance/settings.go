package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// Setting is one platform-wide configuration document keyed by name.
// Mutations only happen through the governance engine.
type Setting struct {
	Key       string                 `json:"key"`
	Value     map[string]interface{} `json:"value"`
	UpdatedBy int64                  `json:"updated_by"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SettingsStore persists platform configuration documents.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get loads one setting by key.
func (s *SettingsStore) Get(ctx context.Context, key string) (*Setting, error) {
	var setting Setting
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, updated_by, updated_at FROM platform_config WHERE key = $1`, key,
	).Scan(&setting.Key, &value, &setting.UpdatedBy, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("platform setting %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform setting: %w", err)
	}
	if err := json.Unmarshal(value, &setting.Value); err != nil {
		return nil, fmt.Errorf("failed to decode platform setting: %w", err)
	}
	return &setting, nil
}

// List returns every setting ordered by key.
func (s *SettingsStore) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_by, updated_at FROM platform_config ORDER BY key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var setting Setting
		var value []byte
		if err := rows.Scan(&setting.Key, &value, &setting.UpdatedBy, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan platform setting: %w", err)
		}
		if err := json.Unmarshal(value, &setting.Value); err != nil {
			return nil, fmt.Errorf("failed to decode platform setting: %w", err)
		}
		out = append(out, setting)
	}
	return out, rows.Err()
}

// Set upserts one setting document.
func (s *SettingsStore) Set(ctx context.Context, key string, value map[string]interface{}, updatedBy int64) (*Setting, error) {
	if key == "" {
		return nil, apperror.InvalidInput("setting key is required")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, apperror.InvalidInput("setting value is not serializable").WithCause(err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO platform_config (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`,
		key, encoded, updatedBy, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set platform setting: %w", err)
	}
	return &Setting{Key: key, Value: value, UpdatedBy: updatedBy, UpdatedAt: now}, nil
}
