package models

import "time"

// MemberStatus represents the status of a team member
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInvited  MemberStatus = "invited"
	MemberInactive MemberStatus = "inactive"
)

// Valid reports whether s is a known member status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberInvited, MemberInactive:
		return true
	}
	return false
}

// TeamMember is a staff record owned by exactly one organization.
type TeamMember struct {
	ID        string       `json:"id" db:"id"`
	OrgID     string       `json:"org_id" db:"org_id"`
	Name      string       `json:"name" db:"name"`
	Email     string       `json:"email" db:"email"`
	Status    MemberStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`

	// 关联数据
	Assignments []CourseAssignment `json:"course_assignments" db:"-"`
}

// TeamMemberPatch carries a partial update; nil fields are left untouched.
type TeamMemberPatch struct {
	Name   *string       `json:"name,omitempty"`
	Email  *string       `json:"email,omitempty"`
	Status *MemberStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TeamMemberPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Status == nil
}

// Apply copies the supplied fields onto m.
func (p TeamMemberPatch) Apply(m *TeamMember) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
}
