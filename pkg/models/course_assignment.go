package models

import "time"

// CourseAssignment links one team member to one catalog course.
type CourseAssignment struct {
	ID          string     `json:"id" db:"id"`
	MemberID    string     `json:"member_id" db:"member_id"`
	CourseID    int        `json:"course_id" db:"course_id"`
	Progress    int        `json:"progress" db:"progress"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
