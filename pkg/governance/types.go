// Package governance is the super-admin safety net: a fixed catalogue of
// destructive action types, each with a blast-radius impact function, an
// explicit two-step confirmation protocol, and enriched audit records.
package governance

import (
	"encoding/json"
	"fmt"
)

// ActionType enumerates the destructive action catalogue. Impact dispatch is
// an exhaustive switch over this enum: adding an action type without an
// impact function is a compile-time hole, not a silent default.
type ActionType int

const (
	ActionUnknown ActionType = iota
	ActionPanelDelete
	ActionRoleDelete
	ActionIdentityDelete
	ActionCapabilityDisable
	ActionPlatformConfigChange
	ActionImpersonation
)

var actionNames = map[ActionType]string{
	ActionPanelDelete:          "panel.delete",
	ActionRoleDelete:           "role.delete",
	ActionIdentityDelete:       "identity.delete",
	ActionCapabilityDisable:    "capability.disable",
	ActionPlatformConfigChange: "platform_config.change",
	ActionImpersonation:        "identity.impersonate",
}

func (a ActionType) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseActionType maps a wire name onto the catalogue.
func ParseActionType(name string) (ActionType, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return ActionUnknown, fmt.Errorf("unknown governance action %q", name)
}

// MarshalJSON emits the wire name.
func (a ActionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the wire name.
func (a *ActionType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseActionType(name)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Severity tags the blast radius of an action.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AffectedCount is either a concrete number of affected entities or the
// literal "all" for platform-wide actions.
type AffectedCount struct {
	All   bool
	Count int
}

// MarshalJSON emits a number, or the string "all".
func (c AffectedCount) MarshalJSON() ([]byte, error) {
	if c.All {
		return json.Marshal("all")
	}
	return json.Marshal(c.Count)
}

// UnmarshalJSON accepts either form.
func (c *AffectedCount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("invalid affected count %q", s)
		}
		c.All = true
		c.Count = 0
		return nil
	}
	c.All = false
	return json.Unmarshal(data, &c.Count)
}

// Impact is the computed blast radius of one governance action, returned to
// the caller before anything mutates.
type Impact struct {
	Action               ActionType    `json:"action"`
	EntityID             string        `json:"entity_id"`
	Severity             Severity      `json:"severity"`
	Reversible           bool          `json:"reversible"`
	AffectedCount        AffectedCount `json:"affected_count"`
	Message              string        `json:"message"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
}

// ExecuteRequest is one confirm-and-execute submission.
type ExecuteRequest struct {
	Action    ActionType             `json:"action"`
	EntityID  string                 `json:"entity_id"`
	Confirmed bool                   `json:"confirmed"`
	Reason    string                 `json:"reason,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Result is the outcome of an Execute call. When confirmation is still
// required, Executed is false and Impact carries the structured payload the
// caller must surface to a human before re-submitting.
type Result struct {
	Executed             bool        `json:"executed"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	Impact               *Impact     `json:"impact"`
	Data                 interface{} `json:"data,omitempty"`
}
