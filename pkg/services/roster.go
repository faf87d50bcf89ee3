package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
)

// Roster manages an organization's staff within its plan's seat limit.
type Roster struct {
	deps Deps
	log  *zap.Logger
}

// seatGuard rejects a new active member once the tier's limit is reached.
func (r *Roster) seatGuard(op string, org *models.Organization) database.SeatGuard {
	return func(active int) error {
		if r.deps.Plans.CanAddStaff(org.Plan, active) {
			return nil
		}
		return r.limitExceeded(op, org, active)
	}
}

func (r *Roster) limitExceeded(op string, org *models.Organization, active int) error {
	// 未知等级按 free 执行，提示里也用实际执行的等级
	enforced := r.deps.Plans.Plan(org.Plan)
	n, _ := enforced.StaffLimit.Value()
	return &apperr.Error{
		Code: apperr.ELimitExceeded,
		Op:   op,
		Msg: fmt.Sprintf("Team member limit reached: you have %d active team members and your %s plan allows up to %d. Please upgrade your plan to add more.",
			active, enforced.ID, n),
		Fields: map[string]interface{}{
			"current_count": active,
			"limit":         n,
		},
	}
}

// ListMembers returns the organization's staff, newest first, each with its
// course assignments.
func (r *Roster) ListMembers(ctx context.Context, org *models.Organization) ([]models.TeamMember, error) {
	rec := r.deps.Metrics.Record("list_members")
	members, err := r.deps.Store.ListTeamMembers(ctx, org.ID)
	if err != nil {
		return nil, rec(apperr.Persistence("roster/list", err))
	}
	return members, rec(nil)
}

// AddMember adds an active member.
func (r *Roster) AddMember(ctx context.Context, org *models.Organization, name, email string) (*models.TeamMember, error) {
	rec := r.deps.Metrics.Record("add_member")
	m, err := r.addMember(ctx, org, name, email)
	return m, rec(err)
}

func (r *Roster) addMember(ctx context.Context, org *models.Organization, name, email string) (*models.TeamMember, error) {
	const op = "roster/add"

	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, apperr.Validation(op, "Name and email are required")
	}

	// friendly pre-checks; the store re-checks both atomically
	active, err := r.deps.Store.CountTeamMembers(ctx, org.ID, models.MemberActive)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if !r.deps.Plans.CanAddStaff(org.Plan, active) {
		return nil, r.limitExceeded(op, org, active)
	}
	if err := r.ensureEmailFree(ctx, op, org, email, ""); err != nil {
		return nil, err
	}

	m := &models.TeamMember{
		OrgID:     org.ID,
		Name:      name,
		Email:     email,
		Status:    models.MemberActive,
		CreatedAt: r.deps.now(),
	}
	if err := r.deps.Store.CreateTeamMember(ctx, m, r.seatGuard(op, org)); err != nil {
		return nil, r.writeError(op, err)
	}

	r.log.Info("Team member added",
		zap.String("org_id", org.ID),
		zap.String("member_id", m.ID))
	return m, nil
}

// UpdateMember applies a partial update to a member owned by org.
func (r *Roster) UpdateMember(ctx context.Context, org *models.Organization, memberID string, patch models.TeamMemberPatch) (*models.TeamMember, error) {
	rec := r.deps.Metrics.Record("update_member")
	m, err := r.updateMember(ctx, org, memberID, patch)
	return m, rec(err)
}

func (r *Roster) updateMember(ctx context.Context, org *models.Organization, memberID string, patch models.TeamMemberPatch) (*models.TeamMember, error) {
	const op = "roster/update"

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.Validation(op, "Name cannot be empty")
		}
		patch.Name = &name
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			return nil, apperr.Validation(op, "Email cannot be empty")
		}
		patch.Email = &email
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Validation(op, fmt.Sprintf("Invalid status %q: must be one of active, invited, inactive", *patch.Status))
	}

	current, err := r.deps.Store.GetTeamMember(ctx, org.ID, memberID)
	if err != nil {
		return nil, storeError(op, err, "Team member")
	}
	if patch.Email != nil && *patch.Email != current.Email {
		if err := r.ensureEmailFree(ctx, op, org, *patch.Email, memberID); err != nil {
			return nil, err
		}
	}

	updated, err := r.deps.Store.UpdateTeamMember(ctx, org.ID, memberID, patch, r.seatGuard(op, org))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound(op, "Team member")
		}
		return nil, r.writeError(op, err)
	}

	r.log.Info("Team member updated",
		zap.String("org_id", org.ID),
		zap.String("member_id", memberID))
	return updated, nil
}

// RemoveMember deletes a member owned by org together with all of its
// course assignments and reports how many assignments were removed.
func (r *Roster) RemoveMember(ctx context.Context, org *models.Organization, memberID string) (int, error) {
	rec := r.deps.Metrics.Record("remove_member")
	const op = "roster/remove"

	removed, err := r.deps.Store.DeleteTeamMember(ctx, org.ID, memberID)
	if err != nil {
		return 0, rec(storeError(op, err, "Team member"))
	}

	r.log.Info("Team member removed",
		zap.String("org_id", org.ID),
		zap.String("member_id", memberID),
		zap.Int("assignments_removed", removed))
	return removed, rec(nil)
}

func (r *Roster) ensureEmailFree(ctx context.Context, op string, org *models.Organization, email, selfID string) error {
	existing, err := r.deps.Store.FindTeamMemberByEmail(ctx, org.ID, email)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil
	case err != nil:
		return apperr.Persistence(op, err)
	case existing.ID != selfID:
		return duplicateEmail(op)
	}
	return nil
}

// writeError maps errors from guarded writes. Guard errors are already
// *apperr.Error and pass through.
func (r *Roster) writeError(op string, err error) error {
	if errors.Is(err, database.ErrDuplicate) {
		return duplicateEmail(op)
	}
	return storeError(op, err, "")
}

func duplicateEmail(op string) error {
	return &apperr.Error{
		Code: apperr.EDuplicateEmail,
		Op:   op,
		Msg:  "A team member with this email already exists",
	}
}
