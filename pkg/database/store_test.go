package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"safetrain-backend/pkg/models"
)

var errFull = errors.New("full")

func seatsGuard(limit int) SeatGuard {
	return func(active int) error {
		if active >= limit {
			return errFull
		}
		return nil
	}
}

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()

	log := zaptest.NewLogger(t)
	store, err := NewSQLiteStore(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, Migrate(context.Background(), store, log))
	return store
}

func newTestMemoryStore(t *testing.T) Store {
	return NewMemoryStore()
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": newTestMemoryStore,
		"sqlite": newTestSQLiteStore,
	}
	for name, newStore := range stores {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Run("organizations", func(t *testing.T) { testOrganizations(t, newStore(t)) })
			t.Run("members", func(t *testing.T) { testMembers(t, newStore(t)) })
			t.Run("seat guard", func(t *testing.T) { testSeatGuard(t, newStore(t)) })
			t.Run("assignments", func(t *testing.T) { testAssignments(t, newStore(t)) })
			t.Run("cascade", func(t *testing.T) { testCascade(t, newStore(t)) })
			t.Run("ownership", func(t *testing.T) { testOwnership(t, newStore(t)) })
		})
	}
}

func mustCreateOrg(t *testing.T, s Store, identity string) *models.Organization {
	t.Helper()
	org := &models.Organization{IdentityID: identity, Name: identity + "'s Organization"}
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return org
}

func mustCreateMember(t *testing.T, s Store, orgID, email string, created time.Time) *models.TeamMember {
	t.Helper()
	m := &models.TeamMember{OrgID: orgID, Name: "Staff " + email, Email: email, CreatedAt: created}
	require.NoError(t, s.CreateTeamMember(context.Background(), m, nil))
	return m
}

func testOrganizations(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetOrganizationByIdentity(ctx, "user-1")
	require.ErrorIs(t, err, ErrNotFound)

	org := mustCreateOrg(t, s, "user-1")
	assert.NotEmpty(t, org.ID)
	assert.Equal(t, models.TierFree, org.Plan)
	assert.False(t, org.CreatedAt.IsZero())

	got, err := s.GetOrganizationByIdentity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
	assert.Equal(t, "user-1's Organization", got.Name)
	assert.Equal(t, models.TierFree, got.Plan)

	err = s.CreateOrganization(ctx, &models.Organization{IdentityID: "user-1", Name: "again"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func testMembers(t *testing.T, s Store) {
	ctx := context.Background()
	org := mustCreateOrg(t, s, "owner")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := mustCreateMember(t, s, org.ID, "a@example.com", base)
	second := mustCreateMember(t, s, org.ID, "b@example.com", base.Add(time.Minute))
	assert.Equal(t, models.MemberActive, first.Status)
	assert.NotNil(t, first.Assignments)

	list, err := s.ListTeamMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)
	assert.NotNil(t, list[0].Assignments)
	assert.Empty(t, list[0].Assignments)

	n, err := s.CountTeamMembers(ctx, org.ID, models.MemberActive)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.FindTeamMemberByEmail(ctx, org.ID, "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	err = s.CreateTeamMember(ctx, &models.TeamMember{OrgID: org.ID, Name: "Dup", Email: "a@example.com"}, nil)
	require.ErrorIs(t, err, ErrDuplicate)

	name := "Renamed"
	inactive := models.MemberInactive
	updated, err := s.UpdateTeamMember(ctx, org.ID, first.ID, models.TeamMemberPatch{Name: &name, Status: &inactive}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "a@example.com", updated.Email)
	assert.Equal(t, models.MemberInactive, updated.Status)

	n, err = s.CountTeamMembers(ctx, org.ID, models.MemberActive)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountTeamMembers(ctx, org.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	taken := "b@example.com"
	_, err = s.UpdateTeamMember(ctx, org.ID, first.ID, models.TeamMemberPatch{Email: &taken}, nil)
	require.ErrorIs(t, err, ErrDuplicate)

	unchanged, err := s.UpdateTeamMember(ctx, org.ID, first.ID, models.TeamMemberPatch{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", unchanged.Name)

	_, err = s.UpdateTeamMember(ctx, org.ID, "missing", models.TeamMemberPatch{Name: &name}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func testSeatGuard(t *testing.T, s Store) {
	ctx := context.Background()
	org := mustCreateOrg(t, s, "owner")
	guard := seatsGuard(2)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		require.NoError(t, s.CreateTeamMember(ctx, &models.TeamMember{OrgID: org.ID, Name: "x", Email: email}, guard))
	}
	err := s.CreateTeamMember(ctx, &models.TeamMember{OrgID: org.ID, Name: "x", Email: "c@example.com"}, guard)
	require.ErrorIs(t, err, errFull)

	// invited members do not take a seat
	invited := &models.TeamMember{OrgID: org.ID, Name: "x", Email: "c@example.com", Status: models.MemberInvited}
	require.NoError(t, s.CreateTeamMember(ctx, invited, guard))

	active := models.MemberActive
	_, err = s.UpdateTeamMember(ctx, org.ID, invited.ID, models.TeamMemberPatch{Status: &active}, guard)
	require.ErrorIs(t, err, errFull)

	got, err := s.GetTeamMember(ctx, org.ID, invited.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemberInvited, got.Status)

	n, err := s.CountTeamMembers(ctx, org.ID, models.MemberActive)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testAssignments(t *testing.T, s Store) {
	ctx := context.Background()
	org := mustCreateOrg(t, s, "owner")
	m := mustCreateMember(t, s, org.ID, "a@example.com", time.Time{})

	a := &models.CourseAssignment{MemberID: m.ID, CourseID: 5}
	require.NoError(t, s.CreateCourseAssignment(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 0, a.Progress)
	assert.Nil(t, a.CompletedAt)

	err := s.CreateCourseAssignment(ctx, &models.CourseAssignment{MemberID: m.ID, CourseID: 5})
	require.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.CreateCourseAssignment(ctx, &models.CourseAssignment{MemberID: m.ID, CourseID: 1}))

	found, err := s.FindCourseAssignment(ctx, m.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	list, err := s.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].CourseID)
	assert.Equal(t, 5, list[1].CourseID)

	members, err := s.ListTeamMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Len(t, members[0].Assignments, 2)

	got, err := s.GetCourseAssignment(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CourseID)

	require.NoError(t, s.DeleteCourseAssignment(ctx, a.ID))
	_, err = s.FindCourseAssignment(ctx, m.ID, 5)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteCourseAssignment(ctx, a.ID), ErrNotFound)
}

func testCascade(t *testing.T, s Store) {
	ctx := context.Background()
	org := mustCreateOrg(t, s, "owner")
	m := mustCreateMember(t, s, org.ID, "a@example.com", time.Time{})
	other := mustCreateMember(t, s, org.ID, "b@example.com", time.Time{})

	for _, id := range []int{1, 2, 3} {
		require.NoError(t, s.CreateCourseAssignment(ctx, &models.CourseAssignment{MemberID: m.ID, CourseID: id}))
	}
	require.NoError(t, s.CreateCourseAssignment(ctx, &models.CourseAssignment{MemberID: other.ID, CourseID: 1}))

	removed, err := s.DeleteTeamMember(ctx, org.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = s.GetTeamMember(ctx, org.ID, m.ID)
	require.ErrorIs(t, err, ErrNotFound)
	left, err := s.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	kept, err := s.ListCourseAssignments(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	_, err = s.DeleteTeamMember(ctx, org.ID, m.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func testOwnership(t *testing.T, s Store) {
	ctx := context.Background()
	mine := mustCreateOrg(t, s, "me")
	theirs := mustCreateOrg(t, s, "them")
	m := mustCreateMember(t, s, theirs.ID, "x@example.com", time.Time{})
	a := &models.CourseAssignment{MemberID: m.ID, CourseID: 1}
	require.NoError(t, s.CreateCourseAssignment(ctx, a))

	// the same email may exist in another organization
	mustCreateMember(t, s, mine.ID, "x@example.com", time.Time{})

	_, err := s.GetTeamMember(ctx, mine.ID, m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	name := "hijack"
	_, err = s.UpdateTeamMember(ctx, mine.ID, m.ID, models.TeamMemberPatch{Name: &name}, nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.DeleteTeamMember(ctx, mine.ID, m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetCourseAssignment(ctx, mine.ID, a.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetTeamMember(ctx, theirs.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Staff x@example.com", got.Name)
}

func TestMemoryStore_LastSeatRace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	org := mustCreateOrg(t, s, "owner")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &models.TeamMember{OrgID: org.ID, Name: "x", Email: string(rune('a'+i)) + "@example.com"}
			errs <- s.CreateTeamMember(ctx, m, seatsGuard(2))
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, errFull)
		}
	}
	assert.Equal(t, 2, ok)
}

func TestMemoryStore_SetPlan(t *testing.T) {
	s := NewMemoryStore()
	org := mustCreateOrg(t, s, "owner")

	require.NoError(t, s.SetPlan(org.ID, models.TierPro))
	got, err := s.GetOrganizationByIdentity(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, got.Plan)

	require.ErrorIs(t, s.SetPlan("missing", models.TierPro), ErrNotFound)
}
