// Package panel implements workspaces: named bundles of navigation, theming,
// permission subsets and capability overrides presented to a subset of
// identities. Overrides are a display-time view over the capability
// registry, never a mutation of it.
package panel

import (
	"time"

	"github.com/campusiq/gatehouse/pkg/capability"
)

// Status is the lifecycle state of a panel.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Theme is the visual configuration of a panel.
type Theme struct {
	PrimaryColor string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	AccentColor  string `json:"accent_color,omitempty" validate:"omitempty,hexcolor"`
	Mode         string `json:"mode,omitempty" validate:"omitempty,oneof=light dark system"`
	LogoURL      string `json:"logo_url,omitempty" validate:"omitempty,url"`
}

// NavItem is one navigation entry. Capability, when set, ties the entry to a
// registry capability so clients can hide it while that capability is down.
type NavItem struct {
	Label      string `json:"label" validate:"required,max=64"`
	Path       string `json:"path" validate:"required,startswith=/"`
	Icon       string `json:"icon,omitempty" validate:"omitempty,max=64"`
	Capability string `json:"capability,omitempty" validate:"omitempty,max=64"`
}

// Config is the structured configuration blob of a panel. It is stored as an
// opaque JSON document; shape validation happens at the service boundary.
type Config struct {
	Theme      Theme     `json:"theme"`
	Navigation []NavItem `json:"navigation,omitempty" validate:"max=64,dive"`
}

// CapabilityOverride relabels one capability's status for display inside a
// panel. An override can narrow (stable shown as degraded/disabled) or
// annotate; it never loosens actual gating.
type CapabilityOverride struct {
	Status capability.Status `json:"status" validate:"required,oneof=stable degraded disabled"`
	Reason string            `json:"reason,omitempty" validate:"max=255"`
}

// Panel is one workspace definition.
type Panel struct {
	ID                  int64                         `json:"id"`
	Name                string                        `json:"name"`
	Description         string                        `json:"description"`
	Status              Status                        `json:"status"`
	IsSystem            bool                          `json:"is_system"`
	Config              Config                        `json:"config"`
	CapabilityOverrides map[string]CapabilityOverride `json:"capability_overrides,omitempty"`
	PermissionSubset    []string                      `json:"permission_subset,omitempty"`
	CreatedBy           *int64                        `json:"created_by,omitempty"`
	CreatedAt           time.Time                     `json:"created_at"`
	UpdatedAt           time.Time                     `json:"updated_at"`
}

// Assignment is an identity-to-panel edge. At most one assignment per
// identity carries IsDefault.
type Assignment struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	PanelID    int64     `json:"panel_id"`
	IsDefault  bool      `json:"is_default"`
	AssignedAt time.Time `json:"assigned_at"`
}

// EffectiveCapability is one registry entry as seen through a panel: the
// global state with the panel's override layered on top, marked when an
// override applied.
type EffectiveCapability struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Status      capability.Status `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	Overridden  bool              `json:"overridden"`
}
