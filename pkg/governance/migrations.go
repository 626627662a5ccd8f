package governance

// Schema holds the platform configuration table.
const Schema = `
CREATE TABLE IF NOT EXISTS platform_config (
    key VARCHAR(128) PRIMARY KEY,
    value JSONB NOT NULL,
    updated_by BIGINT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
