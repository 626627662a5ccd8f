// Package identity resolves bearer credentials into caller identities.
//
// Two credential shapes are accepted: opaque API tokens (prefix "gate_",
// sha256-hashed at rest) and short-lived delegated impersonation credentials
// minted by the governance engine. Both resolve to an AuthContext that travels
// with the request.
package identity

import "time"

// Identity is a caller's identity record. The record itself is immutable;
// role labels are mutable by privileged actors only.
type Identity struct {
	ID          int64                  `json:"id"`
	DisplayName string                 `json:"display_name"`
	Email       string                 `json:"email"`
	PrimaryRole string                 `json:"primary_role"`
	AdminRole   *string                `json:"admin_role,omitempty"`
	IsActive    bool                   `json:"is_active"`
	Profile     map[string]interface{} `json:"profile,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// APIToken is a stored credential. The plaintext is shown exactly once at
// creation and only its hash is persisted.
type APIToken struct {
	ID          int64      `json:"id"`
	IdentityID  int64      `json:"identity_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Impersonation marks an AuthContext as delegated: the actor is acting as
// Subject on behalf of ImpersonatorID.
type Impersonation struct {
	ImpersonatorID int64     `json:"impersonator_id"`
	StartedAt      time.Time `json:"started_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// AuthContext is attached to every authenticated request.
type AuthContext struct {
	Identity      *Identity      `json:"identity"`
	TokenID       *int64         `json:"token_id,omitempty"`
	Impersonation *Impersonation `json:"impersonation,omitempty"`
}

// EffectiveID returns the identity id all downstream checks run against.
func (a *AuthContext) EffectiveID() int64 {
	if a == nil || a.Identity == nil {
		return 0
	}
	return a.Identity.ID
}

// IsImpersonated reports whether the context carries a delegated credential.
func (a *AuthContext) IsImpersonated() bool {
	return a != nil && a.Impersonation != nil
}
