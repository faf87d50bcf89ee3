package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/models"
)

func strPtr(s string) *string { return &s }

func statusPtr(s models.MemberStatus) *models.MemberStatus { return &s }

func TestRoster_FreeTierThirdMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierFree)
	f.addMembers(t, org, "a@example.com", "b@example.com")

	_, err := f.svc.Roster.AddMember(ctx, org, "Carol", "c@example.com")
	ae := requireCode(t, err, apperr.ELimitExceeded)
	assert.Equal(t, 2, ae.Fields["current_count"])
	assert.Equal(t, 2, ae.Fields["limit"])
	assert.Contains(t, ae.Msg, "you have 2 active team members")
	assert.Contains(t, ae.Msg, "free plan allows up to 2")

	members, err := f.svc.Roster.ListMembers(ctx, org)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}


func TestRoster_UnknownTierReportsEnforcedPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierFree)
	org.Plan = "enterprise"
	f.addMembers(t, org, "a@example.com", "b@example.com")

	_, err := f.svc.Roster.AddMember(ctx, org, "Carol", "c@example.com")
	ae := requireCode(t, err, apperr.ELimitExceeded)
	assert.Contains(t, ae.Msg, "your free plan allows up to 2")
	assert.NotContains(t, ae.Msg, "enterprise")
	assert.Equal(t, 2, ae.Fields["limit"])

	_, err = f.svc.Assignments.AssignCourse(ctx, org, mustFirstMember(t, f, org), 5)
	ae = requireCode(t, err, apperr.EPlanRestricted)
	assert.Contains(t, ae.Msg, "your free plan")
	assert.Equal(t, "free", ae.Fields["plan"])
}

func mustFirstMember(t *testing.T, f *fixture, org *models.Organization) string {
	t.Helper()
	members, err := f.svc.Roster.ListMembers(context.Background(), org)
	require.NoError(t, err)
	require.NotEmpty(t, members)
	return members[0].ID
}

func TestRoster_LimitBoundariesPerTier(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		tier  models.Tier
		limit int
	}{
		{tier: models.TierFree, limit: 2},
		{tier: models.TierStarter, limit: 10},
	} {
		t.Run(string(tc.tier), func(t *testing.T) {
			f := newFixture(t)
			org := f.org(t, "owner", tc.tier)
			for i := 0; i < tc.limit; i++ {
				_, err := f.svc.Roster.AddMember(ctx, org, "Staff", string(rune('a'+i))+"@example.com")
				require.NoError(t, err, "member %d", i+1)
			}
			_, err := f.svc.Roster.AddMember(ctx, org, "One too many", "extra@example.com")
			requireCode(t, err, apperr.ELimitExceeded)
		})
	}
}

func TestRoster_BusinessIsUnlimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierBusiness)
	for i := 0; i < 60; i++ {
		_, err := f.svc.Roster.AddMember(ctx, org, "Staff", string(rune('A'+i))+"@example.com")
		require.NoError(t, err)
	}
}

func TestRoster_AddValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierStarter)

	for _, tc := range []struct{ name, email string }{
		{"", "a@example.com"},
		{"Ann", ""},
		{"   ", "a@example.com"},
		{"Ann", " \t"},
	} {
		_, err := f.svc.Roster.AddMember(ctx, org, tc.name, tc.email)
		ae := requireCode(t, err, apperr.EValidation)
		assert.Equal(t, "Name and email are required", ae.Msg)
	}

	m, err := f.svc.Roster.AddMember(ctx, org, "  Ann  ", " ann@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "Ann", m.Name)
	assert.Equal(t, "ann@example.com", m.Email)
	assert.Equal(t, models.MemberActive, m.Status)
	assert.Equal(t, org.ID, m.OrgID)
}

func TestRoster_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierStarter)
	f.addMembers(t, org, "a@example.com")

	_, err := f.svc.Roster.AddMember(ctx, org, "Again", "a@example.com")
	requireCode(t, err, apperr.EDuplicateEmail)

	// a different organization may reuse the address
	other := f.org(t, "other-owner", models.TierStarter)
	_, err = f.svc.Roster.AddMember(ctx, other, "Ann", "a@example.com")
	require.NoError(t, err)
}

func TestRoster_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierStarter)
	added := f.addMembers(t, org, "a@example.com", "b@example.com", "c@example.com")

	members, err := f.svc.Roster.ListMembers(ctx, org)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, added[2].ID, members[0].ID)
	assert.Equal(t, added[1].ID, members[1].ID)
	assert.Equal(t, added[0].ID, members[2].ID)
	for _, m := range members {
		assert.NotNil(t, m.Assignments)
	}
}

func TestRoster_AddRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierStarter)
	f.addMembers(t, org, "a@example.com")

	before, err := f.svc.Directory.Usage(ctx, org)
	require.NoError(t, err)

	m, err := f.svc.Roster.AddMember(ctx, org, "Temp", "temp@example.com")
	require.NoError(t, err)
	removed, err := f.svc.Roster.RemoveMember(ctx, org, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	after, err := f.svc.Directory.Usage(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRoster_RemoveCascadesAssignments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierPro)
	m := f.addMembers(t, org, "a@example.com")[0]
	for _, id := range []int{1, 4, 7} {
		_, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, id)
		require.NoError(t, err)
	}

	removed, err := f.svc.Roster.RemoveMember(ctx, org, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	left, err := f.store.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	members, err := f.svc.Roster.ListMembers(ctx, org)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = f.svc.Roster.RemoveMember(ctx, org, m.ID)
	requireCode(t, err, apperr.ENotFound)
}

func TestRoster_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierFree)
	added := f.addMembers(t, org, "a@example.com", "b@example.com")
	a, b := added[0], added[1]

	updated, err := f.svc.Roster.UpdateMember(ctx, org, a.ID, models.TeamMemberPatch{Name: strPtr(" Alice ")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, "a@example.com", updated.Email)
	assert.Equal(t, models.MemberActive, updated.Status)

	// same email is not a collision with itself
	_, err = f.svc.Roster.UpdateMember(ctx, org, a.ID, models.TeamMemberPatch{Email: strPtr("a@example.com")})
	require.NoError(t, err)

	_, err = f.svc.Roster.UpdateMember(ctx, org, a.ID, models.TeamMemberPatch{Email: strPtr("b@example.com")})
	requireCode(t, err, apperr.EDuplicateEmail)

	_, err = f.svc.Roster.UpdateMember(ctx, org, a.ID, models.TeamMemberPatch{Status: statusPtr("suspended")})
	requireCode(t, err, apperr.EValidation)

	_, err = f.svc.Roster.UpdateMember(ctx, org, a.ID, models.TeamMemberPatch{Name: strPtr("  ")})
	requireCode(t, err, apperr.EValidation)

	_, err = f.svc.Roster.UpdateMember(ctx, org, "missing", models.TeamMemberPatch{Name: strPtr("x")})
	requireCode(t, err, apperr.ENotFound)

	// deactivating frees a seat
	_, err = f.svc.Roster.UpdateMember(ctx, org, b.ID, models.TeamMemberPatch{Status: statusPtr(models.MemberInactive)})
	require.NoError(t, err)
	c, err := f.svc.Roster.AddMember(ctx, org, "Carol", "c@example.com")
	require.NoError(t, err)

	// reactivating b would exceed the free limit
	_, err = f.svc.Roster.UpdateMember(ctx, org, b.ID, models.TeamMemberPatch{Status: statusPtr(models.MemberActive)})
	ae := requireCode(t, err, apperr.ELimitExceeded)
	assert.Equal(t, 2, ae.Fields["current_count"])

	// active -> active is not an activation
	_, err = f.svc.Roster.UpdateMember(ctx, org, c.ID, models.TeamMemberPatch{Status: statusPtr(models.MemberActive)})
	require.NoError(t, err)

	unchanged, err := f.svc.Roster.UpdateMember(ctx, org, c.ID, models.TeamMemberPatch{})
	require.NoError(t, err)
	assert.Equal(t, "Carol", unchanged.Name)
}

func TestRoster_OwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.org(t, "me", models.TierStarter)
	theirs := f.org(t, "them", models.TierStarter)
	m := f.addMembers(t, theirs, "x@example.com")[0]

	_, err := f.svc.Roster.UpdateMember(ctx, mine, m.ID, models.TeamMemberPatch{Name: strPtr("mine now")})
	requireCode(t, err, apperr.ENotFound)

	_, err = f.svc.Roster.RemoveMember(ctx, mine, m.ID)
	requireCode(t, err, apperr.ENotFound)

	members, err := f.svc.Roster.ListMembers(ctx, mine)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRoster_ConcurrentLastSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierFree)
	f.addMembers(t, org, "a@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Roster.AddMember(ctx, org, "Racer", string(rune('k'+i))+"@example.com")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.ELimitExceeded, apperr.Code(err))
	}
	assert.Equal(t, 1, ok)

	usage, err := f.svc.Directory.Usage(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.ActiveStaffCount)
}
