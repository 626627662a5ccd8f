package panel

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/capability"
	"github.com/campusiq/gatehouse/pkg/observability"
	"github.com/campusiq/gatehouse/pkg/rbac"
)

// Service enforces the panel invariants on top of the store: config shape
// validation, system panel immutability, lifecycle transitions, deletion
// preconditions, and the read-time composition over the capability registry
// and permission resolver.
type Service struct {
	store    *Store
	registry *capability.Registry
	resolver *rbac.Resolver
	validate *validator.Validate
	logger   *observability.Logger
}

func NewService(store *Store, registry *capability.Registry, resolver *rbac.Resolver, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Service) validatePanel(p *Panel) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperror.InvalidInput("panel name is required")
	}
	if err := s.validate.Struct(&p.Config); err != nil {
		appErr := apperror.InvalidInput("panel config failed validation").WithCause(err)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+":"+fe.Tag())
			}
			appErr = appErr.WithDetail("violations", fields)
		}
		return appErr
	}
	for id, ov := range p.CapabilityOverrides {
		if id == "" {
			return apperror.InvalidInput("capability override key must not be empty")
		}
		if err := s.validate.Struct(&ov); err != nil {
			return apperror.InvalidInput("invalid override for capability %q", id).WithCause(err)
		}
	}
	for _, key := range p.PermissionSubset {
		if strings.TrimSpace(key) == "" {
			return apperror.InvalidInput("permission subset entries must not be empty")
		}
	}
	return nil
}

// Create validates and stores a new panel. New panels always start in draft;
// the system flag can only be set at creation time.
func (s *Service) Create(ctx context.Context, p *Panel) error {
	if err := s.validatePanel(p); err != nil {
		return err
	}
	p.Status = StatusDraft
	return s.store.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, panelID int64) (*Panel, error) {
	return s.store.Get(ctx, panelID)
}

func (s *Service) List(ctx context.Context) ([]Panel, error) {
	return s.store.List(ctx)
}

// Update rewrites a panel's content. The system flag is immutable and the
// lifecycle status only moves through Publish/Archive, never through here.
func (s *Service) Update(ctx context.Context, p *Panel) error {
	existing, err := s.store.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.IsSystem != existing.IsSystem {
		return apperror.InvalidStateTransition("the system flag of a panel cannot be changed")
	}
	if err := s.validatePanel(p); err != nil {
		return err
	}
	p.Status = existing.Status
	p.CreatedBy = existing.CreatedBy
	return s.store.Update(ctx, p)
}

// Publish moves a draft panel to published.
func (s *Service) Publish(ctx context.Context, panelID int64) (*Panel, error) {
	p, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusDraft {
		return nil, apperror.InvalidStateTransition("panel %d is %s, only drafts can be published", panelID, p.Status)
	}
	p.Status = StatusPublished
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Archive retires a published panel. System panels can only be archived
// through the governance engine, which passes viaGovernance.
func (s *Service) Archive(ctx context.Context, panelID int64, viaGovernance bool) (*Panel, error) {
	p, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if p.IsSystem && !viaGovernance {
		return nil, apperror.PermissionDenied("system panel %d can only be archived through governance", panelID)
	}
	if p.Status == StatusArchived {
		return nil, apperror.InvalidStateTransition("panel %d is already archived", panelID)
	}
	p.Status = StatusArchived
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a panel. System panels refuse unconditionally; panels with
// assignments refuse with the count attached.
func (s *Service) Delete(ctx context.Context, panelID int64) error {
	p, err := s.store.Get(ctx, panelID)
	if err != nil {
		return err
	}
	if p.IsSystem {
		return apperror.InvalidInput("system panel %q cannot be deleted", p.Name)
	}
	count, err := s.store.CountAssignments(ctx, panelID)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperror.InvalidInput("panel %q has %d user assignments", p.Name, count).
			WithDetail("assignmentCount", count)
	}
	return s.store.Delete(ctx, panelID)
}

// Clone copies a panel into a fresh draft. The copy is never a system panel
// regardless of the source.
func (s *Service) Clone(ctx context.Context, panelID int64, name string, createdBy *int64) (*Panel, error) {
	src, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = src.Name + " (copy)"
	}

	clone := &Panel{
		Name:             name,
		Description:      src.Description,
		Status:           StatusDraft,
		IsSystem:         false,
		Config:           src.Config,
		PermissionSubset: append([]string(nil), src.PermissionSubset...),
		CreatedBy:        createdBy,
	}
	if src.CapabilityOverrides != nil {
		clone.CapabilityOverrides = make(map[string]CapabilityOverride, len(src.CapabilityOverrides))
		for k, v := range src.CapabilityOverrides {
			clone.CapabilityOverrides[k] = v
		}
	}
	if err := s.store.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// Assign attaches a panel to an identity, atomically moving the default flag
// when requested.
func (s *Service) Assign(ctx context.Context, identityID, panelID int64, asDefault bool) (*Assignment, error) {
	if _, err := s.store.Get(ctx, panelID); err != nil {
		return nil, err
	}
	return s.store.Assign(ctx, identityID, panelID, asDefault)
}

func (s *Service) Unassign(ctx context.Context, identityID, panelID int64) error {
	return s.store.Unassign(ctx, identityID, panelID)
}

func (s *Service) AssignmentsFor(ctx context.Context, identityID int64) ([]Assignment, error) {
	return s.store.AssignmentsFor(ctx, identityID)
}

func (s *Service) DefaultFor(ctx context.Context, identityID int64) (*Panel, error) {
	return s.store.DefaultFor(ctx, identityID)
}

// EffectiveCapabilities returns the full registry as seen through a panel:
// every registered capability at its global status, with the panel's
// overrides layered on top and marked. Overrides for ids the registry does
// not know are ignored rather than invented.
func (s *Service) EffectiveCapabilities(ctx context.Context, panelID int64) ([]EffectiveCapability, error) {
	p, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	summary, err := s.registry.Health(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]EffectiveCapability, 0, len(summary.Capabilities))
	for _, c := range summary.Capabilities {
		eff := EffectiveCapability{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Status:      c.Status,
			Reason:      c.Reason,
		}
		if ov, ok := p.CapabilityOverrides[c.ID]; ok {
			eff.Status = ov.Status
			eff.Reason = ov.Reason
			eff.Overridden = true
		}
		out = append(out, eff)
	}
	return out, nil
}

// EffectivePermissions intersects the identity's resolved permission set with
// the panel's permission whitelist. The whitelist narrows; it never grants a
// permission the identity's roles did not confer. An empty whitelist means
// the panel does not restrict. Super-privilege passes through untouched: the
// sentinel set is not narrowable by a display-layer construct.
func (s *Service) EffectivePermissions(ctx context.Context, panelID, identityID int64) (*rbac.PermissionSet, error) {
	p, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.GetPermissions(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if resolved.Super || len(p.PermissionSubset) == 0 {
		return resolved, nil
	}

	allowed := make(map[string]bool, len(p.PermissionSubset))
	for _, key := range p.PermissionSubset {
		allowed[key] = true
	}
	narrowed := &rbac.PermissionSet{IdentityID: identityID, Permissions: []string{}}
	for _, key := range resolved.Permissions {
		if allowed[key] {
			narrowed.Permissions = append(narrowed.Permissions, key)
		}
	}
	return narrowed, nil
}
