package identity

import (
	"context"

	"github.com/campusiq/gatehouse/pkg/contextkeys"
)

// AuthFromContext retrieves the typed AuthContext set by the auth middleware,
// or nil when the request is unauthenticated.
func AuthFromContext(ctx context.Context) *AuthContext {
	if a, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext); ok {
		return a
	}
	return nil
}
