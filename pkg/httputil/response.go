// Package httputil provides HTTP handler utilities for the control plane's
// response envelope, JSON decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/contextkeys"
)

// ErrorBody is the error object inside the denial envelope.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Envelope is the uniform response shape. Capability-overlay responses carry
// degraded/degradedReason alongside the normal payload.
type Envelope struct {
	Success        bool        `json:"success"`
	Data           interface{} `json:"data,omitempty"`
	Error          *ErrorBody  `json:"error,omitempty"`
	Degraded       *bool       `json:"degraded,omitempty"`
	DegradedReason string      `json:"degradedReason,omitempty"`
}

// WriteJSON writes a raw JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a success envelope. When the request passed through a
// capability status-overlay middleware, degraded metadata is attached so the
// caller can choose to show a banner.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	env := Envelope{Success: true, Data: data}
	if overlay := contextkeys.CapabilityOverlayFrom(r.Context()); overlay != nil {
		degraded := overlay.Degraded
		env.Degraded = &degraded
		env.DegradedReason = overlay.Reason
	}
	_ = WriteJSON(w, status, env)
}

// WriteError maps any error onto the denial envelope using the fixed status
// mapping of the taxonomy. Untyped errors surface as INTERNAL with only the
// request correlation id; storage error strings never cross the boundary.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)

	body := &ErrorBody{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	if appErr.Code == apperror.CodeInternal {
		body.Message = "internal error"
		body.Details = nil
		if reqID := contextkeys.RequestID(r.Context()); reqID != "" {
			body.Details = map[string]interface{}{"correlationId": reqID}
		}
	}

	_ = WriteJSON(w, appErr.HTTPStatus(), Envelope{Success: false, Error: body})
}

// WriteCreated writes a 201 success envelope.
func WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	WriteData(w, r, http.StatusCreated, data)
}

// WriteOK writes a 200 success envelope.
func WriteOK(w http.ResponseWriter, r *http.Request, data interface{}) {
	WriteData(w, r, http.StatusOK, data)
}

// WriteNoContent writes a 204 response with no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
