package audit

import "net/http"

// Middleware injects the audit logger into every request context so that
// handlers and governance middleware can append records without plumbing the
// writer through each constructor.
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}
