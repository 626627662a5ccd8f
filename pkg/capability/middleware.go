package capability

import (
	"net/http"

	"github.com/campusiq/gatehouse/pkg/contextkeys"
	"github.com/campusiq/gatehouse/pkg/httputil"
)

func overlay(id string, status Status, reason string) *contextkeys.CapabilityOverlay {
	return &contextkeys.CapabilityOverlay{
		CapabilityID: id,
		Status:       string(status),
		Degraded:     true,
		Reason:       reason,
	}
}

// Required is the hard gate: requests against a disabled capability are
// refused before the handler runs. A degraded capability passes, annotated
// with the overlay so the envelope surfaces the degradation.
func (r *Registry) Required(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			status, reason, err := r.Gate(req.Context(), id)
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if status == StatusDegraded {
				req = req.WithContext(contextkeys.WithCapabilityOverlay(req.Context(), overlay(id, status, reason)))
			}
			next.ServeHTTP(w, req)
		})
	}
}

// Checked is the status overlay: it never blocks. The handler always runs,
// and any non-stable capability, disabled included, attaches overlay metadata
// that the response envelope surfaces to the caller.
func (r *Registry) Checked(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			status, reason, err := r.Check(req.Context(), id)
			if err != nil {
				httputil.WriteError(w, req, err)
				return
			}
			if status != StatusStable {
				req = req.WithContext(contextkeys.WithCapabilityOverlay(req.Context(), overlay(id, status, reason)))
			}
			next.ServeHTTP(w, req)
		})
	}
}
