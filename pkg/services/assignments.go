package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/courses"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
)

// Assignments links staff to catalog courses within the plan's catalog.
type Assignments struct {
	deps Deps
	log  *zap.Logger
}

// CourseEntry is a catalog course annotated for one organization's plan.
type CourseEntry struct {
	courses.Course
	Available bool `json:"available"`
}

// Catalog lists every course with its availability under org's plan.
func (a *Assignments) Catalog(org *models.Organization) []CourseEntry {
	all := a.deps.Courses.All()
	out := make([]CourseEntry, len(all))
	for i, c := range all {
		out[i] = CourseEntry{Course: c, Available: a.deps.Plans.IsCourseAvailable(org.Plan, c.ID)}
	}
	return out
}

// AssignCourse assigns a course to a member owned by org, starting at 0% progress.
func (a *Assignments) AssignCourse(ctx context.Context, org *models.Organization, memberID string, courseID int) (*models.CourseAssignment, error) {
	rec := a.deps.Metrics.Record("assign_course")
	ca, err := a.assignCourse(ctx, org, memberID, courseID)
	return ca, rec(err)
}

func (a *Assignments) assignCourse(ctx context.Context, org *models.Organization, memberID string, courseID int) (*models.CourseAssignment, error) {
	const op = "assignments/assign"

	if memberID == "" || courseID == 0 {
		return nil, apperr.Validation(op, "Member ID and Course ID are required")
	}
	if _, ok := a.deps.Courses.Get(courseID); !ok {
		return nil, apperr.Validation(op, fmt.Sprintf("Unknown course id %d", courseID))
	}

	member, err := a.deps.Store.GetTeamMember(ctx, org.ID, memberID)
	if err != nil {
		return nil, storeError(op, err, "Team member")
	}

	if !a.deps.Plans.IsCourseAvailable(org.Plan, courseID) {
		return nil, &apperr.Error{
			Code: apperr.EPlanRestricted,
			Op:   op,
			Msg:  fmt.Sprintf("This course is not available in your %s plan. Please upgrade to access all courses.", a.deps.Plans.Plan(org.Plan).ID),
			Fields: map[string]interface{}{
				"plan":      string(a.deps.Plans.Plan(org.Plan).ID),
				"course_id": courseID,
			},
		}
	}

	_, err = a.deps.Store.FindCourseAssignment(ctx, member.ID, courseID)
	switch {
	case err == nil:
		return nil, duplicateAssignment(op)
	case !errors.Is(err, database.ErrNotFound):
		return nil, apperr.Persistence(op, err)
	}

	ca := &models.CourseAssignment{
		MemberID:  member.ID,
		CourseID:  courseID,
		Progress:  0,
		CreatedAt: a.deps.now(),
	}
	if err := a.deps.Store.CreateCourseAssignment(ctx, ca); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, duplicateAssignment(op)
		}
		return nil, storeError(op, err, "Team member")
	}

	a.log.Info("Course assigned",
		zap.String("org_id", org.ID),
		zap.String("member_id", member.ID),
		zap.Int("course_id", courseID))
	return ca, nil
}

// UnassignCourse deletes an assignment whose member belongs to org.
func (a *Assignments) UnassignCourse(ctx context.Context, org *models.Organization, assignmentID string) error {
	rec := a.deps.Metrics.Record("unassign_course")
	return rec(a.unassignCourse(ctx, org, assignmentID))
}

func (a *Assignments) unassignCourse(ctx context.Context, org *models.Organization, assignmentID string) error {
	const op = "assignments/unassign"

	if assignmentID == "" {
		return apperr.Validation(op, "Assignment ID is required")
	}
	ca, err := a.deps.Store.GetCourseAssignment(ctx, org.ID, assignmentID)
	if err != nil {
		return storeError(op, err, "Assignment")
	}
	if err := a.deps.Store.DeleteCourseAssignment(ctx, ca.ID); err != nil {
		return storeError(op, err, "Assignment")
	}

	a.log.Info("Course unassigned",
		zap.String("org_id", org.ID),
		zap.String("assignment_id", ca.ID),
		zap.Int("course_id", ca.CourseID))
	return nil
}

func duplicateAssignment(op string) error {
	return &apperr.Error{
		Code: apperr.EDuplicateAssignment,
		Op:   op,
		Msg:  "Course already assigned to this member",
	}
}
