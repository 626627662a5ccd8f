package panel

// Schema holds the panel tables.
const Schema = `
CREATE TABLE IF NOT EXISTS panels (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL DEFAULT 'draft',
    is_system BOOLEAN NOT NULL DEFAULT FALSE,
    config JSONB,
    capability_overrides JSONB,
    permission_subset JSONB,
    created_by BIGINT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_panels (
    id BIGSERIAL PRIMARY KEY,
    identity_id BIGINT NOT NULL,
    panel_id BIGINT NOT NULL REFERENCES panels(id) ON DELETE CASCADE,
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (identity_id, panel_id)
);

CREATE INDEX IF NOT EXISTS idx_user_panels_identity ON user_panels(identity_id);
CREATE INDEX IF NOT EXISTS idx_user_panels_panel ON user_panels(panel_id);
`
