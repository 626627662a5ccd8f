package capability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/contextkeys"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/observability"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE capabilities (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			owner_module TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'stable',
			reason TEXT,
			last_error TEXT,
			metadata TEXT,
			last_checked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)

	return NewRegistry(NewStore(db), observability.NewMetrics(), observability.NopLogger())
}

func TestRegisterIdempotentKeepsOperatorStatus(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "payroll", DisplayName: "Payroll"}))

	_, err := reg.UpdateStatus(ctx, "payroll", StatusDisabled, "ledger migration in progress", "")
	require.NoError(t, err)

	// Startup re-registration must not flip the capability back to stable.
	require.NoError(t, reg.Register(ctx, &Capability{ID: "payroll", DisplayName: "Payroll v2"}))

	c, err := reg.store.Get(ctx, "payroll")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, c.Status)
	assert.Equal(t, "ledger migration in progress", c.Reason)
	assert.Equal(t, "Payroll v2", c.DisplayName)
}

func TestCheckUnregisteredDefaultsToStable(t *testing.T) {
	reg := setupTestRegistry(t)

	status, reason, err := reg.Check(context.Background(), "never-registered")
	require.NoError(t, err)
	assert.Equal(t, StatusStable, status)
	assert.Empty(t, reason)

	require.NoError(t, reg.Require(context.Background(), "never-registered"))
}

func TestRequireBlocksDisabled(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "exams", DisplayName: "Exams"}))
	_, err := reg.UpdateStatus(ctx, "exams", StatusDisabled, "grading backend offline", "")
	require.NoError(t, err)

	err = reg.Require(ctx, "exams")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeFeatureDisabled))

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "exams", appErr.Details["capability"])
	assert.Equal(t, "grading backend offline", appErr.Details["reason"])
}

func TestRequirePassesDegraded(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "reports", DisplayName: "Reports"}))
	_, err := reg.UpdateStatus(ctx, "reports", StatusDegraded, "cache cold", "")
	require.NoError(t, err)

	require.NoError(t, reg.Require(ctx, "reports"))
}

func TestUpdateStatusValidation(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, &Capability{ID: "hr", DisplayName: "HR"}))

	_, err := reg.UpdateStatus(ctx, "hr", Status("offline"), "x", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))

	_, err = reg.UpdateStatus(ctx, "hr", StatusDegraded, "", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))

	_, err = reg.UpdateStatus(ctx, "missing", StatusDisabled, "because", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))

	c, err := reg.UpdateStatus(ctx, "hr", StatusDisabled, "restructure", "")
	require.NoError(t, err)
	assert.NotNil(t, c.LastCheckedAt)

	// Returning to stable clears the reason.
	c, err = reg.UpdateStatus(ctx, "hr", StatusStable, "stale reason", "")
	require.NoError(t, err)
	assert.Empty(t, c.Reason)
}

func TestHealthSummaryCounts(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterDefaults(ctx))
	_, err := reg.UpdateStatus(ctx, "payroll", StatusDisabled, "maintenance", "")
	require.NoError(t, err)
	_, err = reg.UpdateStatus(ctx, "reports", StatusDegraded, "slow warehouse", "")
	require.NoError(t, err)

	summary, err := reg.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Defaults()), summary.Total)
	assert.Equal(t, 1, summary.Disabled)
	assert.Equal(t, 1, summary.Degraded)
	assert.Equal(t, summary.Total-2, summary.Stable)
}

func TestCheckedMiddlewareAttachesOverlay(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "attendance", DisplayName: "Attendance"}))
	_, err := reg.UpdateStatus(ctx, "attendance", StatusDegraded, "sync lag", "")
	require.NoError(t, err)

	handler := reg.Checked("attendance")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteOK(w, r, map[string]string{"ok": "yes"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attendance", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success        bool   `json:"success"`
		Degraded       bool   `json:"degraded"`
		DegradedReason string `json:"degradedReason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Degraded)
	assert.Equal(t, "sync lag", body.DegradedReason)
}

func TestRequiredMiddlewareBlocksDisabled(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "tickets", DisplayName: "Tickets"}))
	_, err := reg.UpdateStatus(ctx, "tickets", StatusDisabled, "queue migration", "")
	require.NoError(t, err)

	called := false
	handler := reg.Required("tickets")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tickets", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(apperror.CodeFeatureDisabled), body.Error.Code)
}

func TestCheckedMiddlewareNeverBlocksDisabled(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "attendance", DisplayName: "Attendance"}))
	_, err := reg.UpdateStatus(ctx, "attendance", StatusDisabled, "term closed", "")
	require.NoError(t, err)

	called := false
	handler := reg.Checked("attendance")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		httputil.WriteOK(w, r, map[string]string{"ok": "yes"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attendance", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called, "the overlay must not block, whatever the status")

	var body struct {
		Success        bool   `json:"success"`
		Degraded       bool   `json:"degraded"`
		DegradedReason string `json:"degradedReason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Degraded)
	assert.Equal(t, "term closed", body.DegradedReason)
}

func TestRequiredMiddlewareAnnotatesDegraded(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, &Capability{ID: "payroll", DisplayName: "Payroll"}))
	_, err := reg.UpdateStatus(ctx, "payroll", StatusDegraded, "bank feed lag", "")
	require.NoError(t, err)

	var seen *contextkeys.CapabilityOverlay
	handler := reg.Required("payroll")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.CapabilityOverlayFrom(r.Context())
		httputil.WriteOK(w, r, map[string]string{"ok": "yes"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, string(StatusDegraded), seen.Status)
	assert.Equal(t, "bank feed lag", seen.Reason)
	assert.Contains(t, rec.Body.String(), `"degraded":true`)
}
