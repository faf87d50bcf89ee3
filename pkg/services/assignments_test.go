package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
)

func TestAssignments_FreeTierRestricted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierFree)
	m := f.addMembers(t, org, "a@example.com")[0]

	_, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, 5)
	ae := requireCode(t, err, apperr.EPlanRestricted)
	assert.Contains(t, ae.Msg, "free plan")

	for _, id := range []int{1, 2} {
		_, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, id)
		require.NoError(t, err)
	}
}

func TestAssignments_BusinessAnyCourse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierBusiness)
	m := f.addMembers(t, org, "a@example.com")[0]

	ca, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, ca.Progress)
	assert.Nil(t, ca.CompletedAt)
	assert.Equal(t, m.ID, ca.MemberID)
	assert.Equal(t, 5, ca.CourseID)
	assert.NotEmpty(t, ca.ID)

	members, err := f.svc.Roster.ListMembers(ctx, org)
	require.NoError(t, err)
	require.Len(t, members[0].Assignments, 1)
	assert.Equal(t, ca.ID, members[0].Assignments[0].ID)
}

func TestAssignments_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierPro)
	m := f.addMembers(t, org, "a@example.com")[0]

	_, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.Assignments.AssignCourse(ctx, org, m.ID, 3)
	requireCode(t, err, apperr.EDuplicateAssignment)

	list, err := f.store.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// lateDuplicateStore hides existing assignments from the pre-check so the
// constraint on insert is what reports the duplicate.
type lateDuplicateStore struct {
	*database.MemoryStore
}

func (s lateDuplicateStore) FindCourseAssignment(context.Context, string, int) (*models.CourseAssignment, error) {
	return nil, database.ErrNotFound
}

func TestAssignments_DuplicateFromConstraint(t *testing.T) {
	ctx := context.Background()
	store := lateDuplicateStore{database.NewMemoryStore()}
	svc := New(Deps{Store: store, Log: zaptest.NewLogger(t)})
	org, _, err := svc.Directory.Resolve(ctx, &models.Identity{ID: "owner"})
	require.NoError(t, err)
	m, err := svc.Roster.AddMember(ctx, org, "Ann", "a@example.com")
	require.NoError(t, err)

	_, err = svc.Assignments.AssignCourse(ctx, org, m.ID, 1)
	require.NoError(t, err)
	_, err = svc.Assignments.AssignCourse(ctx, org, m.ID, 1)
	requireCode(t, err, apperr.EDuplicateAssignment)
}

func TestAssignments_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierBusiness)
	m := f.addMembers(t, org, "a@example.com")[0]

	_, err := f.svc.Assignments.AssignCourse(ctx, org, "", 1)
	requireCode(t, err, apperr.EValidation)
	_, err = f.svc.Assignments.AssignCourse(ctx, org, m.ID, 0)
	requireCode(t, err, apperr.EValidation)
	_, err = f.svc.Assignments.AssignCourse(ctx, org, m.ID, 99)
	ae := requireCode(t, err, apperr.EValidation)
	assert.Equal(t, "Unknown course id 99", ae.Msg)

	err = f.svc.Assignments.UnassignCourse(ctx, org, "")
	requireCode(t, err, apperr.EValidation)
}

func TestAssignments_MemberOwnershipCheckedBeforePlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.org(t, "me", models.TierFree)
	theirs := f.org(t, "them", models.TierBusiness)
	m := f.addMembers(t, theirs, "x@example.com")[0]

	_, err := f.svc.Assignments.AssignCourse(ctx, mine, m.ID, 5)
	ae := requireCode(t, err, apperr.ENotFound)
	assert.Equal(t, "Team member not found", ae.Msg)

	_, err = f.svc.Assignments.AssignCourse(ctx, mine, "missing", 1)
	requireCode(t, err, apperr.ENotFound)
}

func TestAssignments_AssignUnassignRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	org := f.org(t, "owner", models.TierStarter)
	m := f.addMembers(t, org, "a@example.com")[0]

	before, err := f.store.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)

	ca, err := f.svc.Assignments.AssignCourse(ctx, org, m.ID, 8)
	require.NoError(t, err)
	require.NoError(t, f.svc.Assignments.UnassignCourse(ctx, org, ca.ID))

	after, err := f.store.ListCourseAssignments(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	err = f.svc.Assignments.UnassignCourse(ctx, org, ca.ID)
	ae := requireCode(t, err, apperr.ENotFound)
	assert.Equal(t, "Assignment not found", ae.Msg)
}

func TestAssignments_UnassignForeign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.org(t, "me", models.TierStarter)
	theirs := f.org(t, "them", models.TierStarter)
	m := f.addMembers(t, theirs, "x@example.com")[0]
	ca, err := f.svc.Assignments.AssignCourse(ctx, theirs, m.ID, 3)
	require.NoError(t, err)

	err = f.svc.Assignments.UnassignCourse(ctx, mine, ca.ID)
	requireCode(t, err, apperr.ENotFound)

	still, err := f.store.FindCourseAssignment(ctx, m.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, ca.ID, still.ID)
}

func TestAssignments_Catalog(t *testing.T) {
	f := newFixture(t)

	free := f.svc.Assignments.Catalog(&models.Organization{Plan: models.TierFree})
	require.Len(t, free, 12)
	for _, c := range free {
		assert.Equal(t, c.ID == 1 || c.ID == 2, c.Available, "course %d", c.ID)
	}

	pro := f.svc.Assignments.Catalog(&models.Organization{Plan: models.TierPro})
	for _, c := range pro {
		assert.True(t, c.Available, "course %d", c.ID)
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := database.NewMemoryStore()
	svc := New(Deps{Store: store, Metrics: metrics, Log: zaptest.NewLogger(t)})

	org, _, err := svc.Directory.Resolve(ctx, &models.Identity{ID: "owner"})
	require.NoError(t, err)
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		svc.Roster.AddMember(ctx, org, "Staff", e)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.reqs.WithLabelValues("add_member")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.errs.WithLabelValues("add_member", apperr.ELimitExceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reqs.WithLabelValues("resolve_organization")))

	var nilMetrics *Metrics
	assert.NoError(t, nilMetrics.Record("noop")(nil))
}
