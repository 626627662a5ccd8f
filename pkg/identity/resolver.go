package identity

import (
	"context"
	"strings"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// Resolver verifies a bearer credential and loads the caller's identity.
type Resolver struct {
	store  *Store
	tokens *TokenManager
	issuer *ImpersonationIssuer
}

// NewResolver constructs a Resolver.
func NewResolver(store *Store, tokens *TokenManager, issuer *ImpersonationIssuer) *Resolver {
	return &Resolver{store: store, tokens: tokens, issuer: issuer}
}

// Authenticate resolves a bearer credential into an AuthContext. Opaque API
// tokens and delegated impersonation credentials are both accepted; anything
// else fails with AuthRequired.
func (r *Resolver) Authenticate(ctx context.Context, credential string) (*AuthContext, error) {
	if credential == "" {
		return nil, apperror.AuthRequired("missing credential")
	}

	if strings.HasPrefix(credential, TokenPrefix) {
		return r.authenticateToken(ctx, credential)
	}
	return r.authenticateDelegated(ctx, credential)
}

func (r *Resolver) authenticateToken(ctx context.Context, credential string) (*AuthContext, error) {
	token, err := r.tokens.ValidateToken(ctx, credential)
	if err != nil {
		return nil, err
	}

	ident, err := r.store.GetIdentity(ctx, token.IdentityID)
	if err != nil {
		// A token pointing at a deleted identity is an auth failure, not a 404.
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return nil, apperror.AuthRequired("identity no longer exists")
		}
		return nil, err
	}
	if !ident.IsActive {
		return nil, apperror.AuthRequired("identity deactivated")
	}

	return &AuthContext{Identity: ident, TokenID: &token.ID}, nil
}

func (r *Resolver) authenticateDelegated(ctx context.Context, credential string) (*AuthContext, error) {
	claims, err := r.issuer.Parse(credential)
	if err != nil {
		return nil, err
	}

	ident, err := r.store.GetIdentity(ctx, claims.SubjectID)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return nil, apperror.AuthRequired("impersonated identity no longer exists")
		}
		return nil, err
	}
	if !ident.IsActive {
		return nil, apperror.AuthRequired("impersonated identity deactivated")
	}

	return &AuthContext{
		Identity: ident,
		Impersonation: &Impersonation{
			ImpersonatorID: claims.ImpersonatorID,
			StartedAt:      claims.IssuedAt.Time,
			ExpiresAt:      claims.ExpiresAt.Time,
		},
	}, nil
}
