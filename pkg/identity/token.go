package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

const (
	// TokenPrefix identifies Gatehouse API tokens
	TokenPrefix = "gate_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: gate_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix identify the token in listings.
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager manages API token lifecycle against the store.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken mints a token for an identity and persists its hash. The
// plaintext is returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, identityID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		IdentityID:  identityID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO api_tokens (identity_id, token_hash, token_prefix, name, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tm.db.QueryRowContext(ctx, query,
		identityID, tokenHash, tokenPrefix, name, now, expiresAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	apiToken.CreatedAt = now
	return apiToken, token, nil
}

// ValidateToken resolves a plaintext token to its stored record, rejecting
// revoked and expired tokens, and stamps last_used_at best-effort.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, apperror.AuthRequired("invalid token format").WithCause(err)
	}

	tokenHash := tm.generator.HashToken(token)

	query := `
		SELECT id, identity_id, token_hash, token_prefix, name, created_at, expires_at, last_used_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1
	`

	var t APIToken
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.IdentityID, &t.TokenHash, &t.TokenPrefix, &t.Name,
		&t.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.AuthRequired("unknown token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if revokedAt.Valid {
		return nil, apperror.AuthRequired("token revoked")
	}
	if expiresAt.Valid {
		ea := expiresAt.Time
		t.ExpiresAt = &ea
		if ea.Before(time.Now()) {
			return nil, apperror.AuthRequired("token expired")
		}
	}
	if lastUsedAt.Valid {
		lu := lastUsedAt.Time
		t.LastUsedAt = &lu
	}

	// Usage stamp is best-effort; a failed update never blocks authentication.
	_, _ = tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), t.ID,
	)

	return &t, nil
}

// RevokeToken marks a token revoked.
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	res, err := tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("token %d not found or already revoked", tokenID)
	}
	return nil
}

// ListTokens lists tokens for an identity, newest first.
func (tm *TokenManager) ListTokens(ctx context.Context, identityID int64) ([]APIToken, error) {
	query := `
		SELECT id, identity_id, token_hash, token_prefix, name, created_at, expires_at, last_used_at, revoked_at
		FROM api_tokens
		WHERE identity_id = $1
		ORDER BY created_at DESC
	`
	rows, err := tm.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(
			&t.ID, &t.IdentityID, &t.TokenHash, &t.TokenPrefix, &t.Name,
			&t.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expiresAt.Valid {
			ea := expiresAt.Time
			t.ExpiresAt = &ea
		}
		if lastUsedAt.Valid {
			lu := lastUsedAt.Time
			t.LastUsedAt = &lu
		}
		if revokedAt.Valid {
			ra := revokedAt.Time
			t.RevokedAt = &ra
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}
