// Package middleware holds the request-scoped HTTP middleware: credential
// resolution, correlation ids, panic recovery, and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/contextkeys"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/identity"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Auth resolves the bearer credential into an AuthContext and attaches it to
// the request. Requests without a credential are refused here; per-route
// permission checks happen downstream.
func Auth(resolver *identity.Resolver, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)
			if credential == "" {
				httputil.WriteError(w, r, apperror.AuthRequired("missing bearer credential"))
				return
			}

			auth, err := resolver.Authenticate(r.Context(), credential)
			if err != nil {
				logger.WithField("path", r.URL.Path).WithError(err).Debug("authentication failed")
				httputil.WriteError(w, r, err)
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
