package identity

// Schema holds the identity tables. Applied by the shared migration runner at
// startup; CREATE IF NOT EXISTS keeps it idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	id BIGSERIAL PRIMARY KEY,
	display_name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL UNIQUE,
	primary_role VARCHAR(100) NOT NULL,
	admin_role VARCHAR(100),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	profile JSONB,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS api_tokens (
	id BIGSERIAL PRIMARY KEY,
	identity_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	token_hash VARCHAR(64) NOT NULL UNIQUE,
	token_prefix VARCHAR(20) NOT NULL,
	name VARCHAR(255) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMP WITH TIME ZONE,
	last_used_at TIMESTAMP WITH TIME ZONE,
	revoked_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_api_tokens_identity_id ON api_tokens(identity_id);
CREATE INDEX IF NOT EXISTS idx_api_tokens_token_hash ON api_tokens(token_hash);
`
