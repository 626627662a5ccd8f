// Package audit appends security-relevant decisions and governance actions to
// a durable trail. Writes are best-effort: the trail must never be the reason
// a legitimate action fails, and never blocks execution.
package audit

import "time"

// Record is one append-only audit entry. Governance actions additionally
// carry an impact snapshot and the super-admin marker.
type Record struct {
	ID         int64                  `json:"id,omitempty"`
	ActorID    int64                  `json:"actor_id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Impact     interface{}            `json:"impact,omitempty"`
	SuperAdmin bool                   `json:"super_admin"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Filters narrows an audit trail query. Zero values mean "no filter".
type Filters struct {
	ActorID    int64
	Action     string
	EntityType string
	EntityID   string
	SuperOnly  bool
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
