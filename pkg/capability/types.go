// Package capability implements the capability registry: the runtime health
// state of each product module and the HTTP gates that consult it.
package capability

import "time"

// Status is the health state of a capability.
type Status string

const (
	// StatusStable means the capability serves normally.
	StatusStable Status = "stable"
	// StatusDegraded means the capability serves with reduced fidelity;
	// requests pass but responses carry a degraded marker.
	StatusDegraded Status = "degraded"
	// StatusDisabled means the capability refuses requests outright.
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusStable, StatusDegraded, StatusDisabled:
		return true
	}
	return false
}

// Capability is one registered product module with its runtime state. Reason
// is required whenever the status is not stable.
type Capability struct {
	ID            string                 `json:"id"`
	DisplayName   string                 `json:"display_name"`
	OwnerModule   string                 `json:"owner_module"`
	Description   string                 `json:"description"`
	Status        Status                 `json:"status"`
	Reason        string                 `json:"reason,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	LastCheckedAt *time.Time             `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// HealthSummary is the aggregate view over every registered capability.
type HealthSummary struct {
	Total        int          `json:"total"`
	Stable       int          `json:"stable"`
	Degraded     int          `json:"degraded"`
	Disabled     int          `json:"disabled"`
	Capabilities []Capability `json:"capabilities"`
}

// Defaults returns the capabilities of the platform's product modules, all
// stable. Registered idempotently at startup.
func Defaults() []Capability {
	return []Capability{
		{ID: "attendance", DisplayName: "Attendance", OwnerModule: "attendance", Description: "Attendance tracking and reporting"},
		{ID: "leave", DisplayName: "Leave", OwnerModule: "hr", Description: "Leave requests and approvals"},
		{ID: "payroll", DisplayName: "Payroll", OwnerModule: "finance", Description: "Payroll generation and payslips"},
		{ID: "exams", DisplayName: "Exams", OwnerModule: "academics", Description: "Exam scheduling and grading"},
		{ID: "tickets", DisplayName: "Tickets", OwnerModule: "support", Description: "Support ticketing"},
		{ID: "feedback", DisplayName: "Feedback", OwnerModule: "support", Description: "Student and staff feedback"},
		{ID: "hr", DisplayName: "HR", OwnerModule: "hr", Description: "Staff records and HR workflows"},
		{ID: "reports", DisplayName: "Reports", OwnerModule: "analytics", Description: "Cross-module reporting"},
	}
}
