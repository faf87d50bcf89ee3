package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/plans"
)

// Directory maps identities to their organization, one to one.
type Directory struct {
	deps Deps
	log  *zap.Logger
}

// Usage is the seat consumption of an organization.
type Usage struct {
	ActiveStaffCount int
}

// PlanUsage is the usage block of the plan overview.
type PlanUsage struct {
	TeamMembers     int         `json:"team_members"`
	TeamMemberLimit plans.Limit `json:"team_member_limit"`
	RemainingSlots  plans.Limit `json:"remaining_slots"`
}

// PlanOverview describes an organization's plan and how much of it is used.
type PlanOverview struct {
	Organization      *models.Organization `json:"organization"`
	Plan              *plans.Plan          `json:"plan"`
	Usage             PlanUsage            `json:"usage"`
	UpgradeSuggestion *plans.Plan          `json:"upgrade_suggestion"`
}

// Resolve returns the identity's organization, creating it on first access
// with the free tier. created reports whether this call inserted it.
func (d *Directory) Resolve(ctx context.Context, identity *models.Identity) (org *models.Organization, created bool, err error) {
	rec := d.deps.Metrics.Record("resolve_organization")
	org, created, err = d.resolve(ctx, identity)
	return org, created, rec(err)
}

func (d *Directory) resolve(ctx context.Context, identity *models.Identity) (*models.Organization, bool, error) {
	const op = "directory/resolve"
	if identity == nil || identity.ID == "" {
		return nil, false, apperr.Unauthorized(op)
	}

	org, err := d.lookup(ctx, identity.ID)
	if err == nil {
		return org, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, apperr.Persistence(op, err)
	}

	org = &models.Organization{
		IdentityID: identity.ID,
		Name:       models.DefaultOrganizationName(identity.FirstName),
		Plan:       models.TierFree,
		CreatedAt:  d.deps.now(),
	}
	err = d.deps.Store.CreateOrganization(ctx, org)
	switch {
	case err == nil:
		d.log.Info("Organization created",
			zap.String("org_id", org.ID),
			zap.String("identity_id", identity.ID))
		d.cacheSet(ctx, org)
		return org, true, nil
	case errors.Is(err, database.ErrDuplicate):
		// a concurrent request created it first
		winner, err := d.deps.Store.GetOrganizationByIdentity(ctx, identity.ID)
		if err != nil {
			return nil, false, apperr.Persistence(op, err)
		}
		d.log.Debug("Organization created concurrently, using existing", zap.String("org_id", winner.ID))
		d.cacheSet(ctx, winner)
		return winner, false, nil
	}
	return nil, false, apperr.Persistence(op, err)
}

// Find returns the identity's organization without creating it. It always
// reads the store, so the plan tier it carries is current; entitlement checks
// must start from here. The cache is refreshed with the result.
func (d *Directory) Find(ctx context.Context, identity *models.Identity) (*models.Organization, error) {
	rec := d.deps.Metrics.Record("find_organization")
	org, err := d.find(ctx, identity, d.read)
	return org, rec(err)
}

// FindCached is Find served from the cache when possible. The tier may lag
// the store by up to the cache TTL; use it only for display.
func (d *Directory) FindCached(ctx context.Context, identity *models.Identity) (*models.Organization, error) {
	rec := d.deps.Metrics.Record("find_organization_cached")
	org, err := d.find(ctx, identity, d.lookup)
	return org, rec(err)
}

func (d *Directory) find(ctx context.Context, identity *models.Identity, get func(context.Context, string) (*models.Organization, error)) (*models.Organization, error) {
	const op = "directory/find"
	if identity == nil || identity.ID == "" {
		return nil, apperr.Unauthorized(op)
	}
	org, err := get(ctx, identity.ID)
	if err != nil {
		return nil, storeError(op, err, "Organization")
	}
	return org, nil
}

// read bypasses the cache and refreshes it.
func (d *Directory) read(ctx context.Context, identityID string) (*models.Organization, error) {
	org, err := d.deps.Store.GetOrganizationByIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) && d.deps.Cache != nil {
			d.deps.Cache.Delete(ctx, identityID)
		}
		return nil, err
	}
	d.cacheSet(ctx, org)
	return org, nil
}

func (d *Directory) lookup(ctx context.Context, identityID string) (*models.Organization, error) {
	if d.deps.Cache != nil {
		if org, ok := d.deps.Cache.Get(ctx, identityID); ok {
			return org, nil
		}
	}
	return d.read(ctx, identityID)
}

func (d *Directory) cacheSet(ctx context.Context, org *models.Organization) {
	if d.deps.Cache != nil {
		d.deps.Cache.Set(ctx, org)
	}
}

// Usage counts the organization's active members.
func (d *Directory) Usage(ctx context.Context, org *models.Organization) (Usage, error) {
	rec := d.deps.Metrics.Record("usage")
	n, err := d.deps.Store.CountTeamMembers(ctx, org.ID, models.MemberActive)
	if err != nil {
		return Usage{}, rec(apperr.Persistence("directory/usage", err))
	}
	return Usage{ActiveStaffCount: n}, rec(nil)
}

// Overview combines the plan, the usage and an upgrade suggestion.
func (d *Directory) Overview(ctx context.Context, org *models.Organization) (*PlanOverview, error) {
	usage, err := d.Usage(ctx, org)
	if err != nil {
		return nil, err
	}

	table := d.deps.Plans
	out := &PlanOverview{
		Organization: org,
		Plan:         table.Plan(org.Plan),
		Usage: PlanUsage{
			TeamMembers:     usage.ActiveStaffCount,
			TeamMemberLimit: table.StaffLimit(org.Plan),
			RemainingSlots:  table.RemainingSlots(org.Plan, usage.ActiveStaffCount),
		},
	}
	if next, ok := table.SuggestUpgrade(org.Plan, usage.ActiveStaffCount); ok {
		out.UpgradeSuggestion = table.Plan(next)
	}
	return out, nil
}
