package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"safetrain-backend/pkg/models"
)

// MemoryStore keeps everything in process memory. It enforces the same
// uniqueness and ownership rules as the SQL schema and serialises every
// write behind one lock, so seat checks are atomic.
type MemoryStore struct {
	mu sync.RWMutex

	seq           int64
	orgs          map[string]*models.Organization // by id
	orgByIdentity map[string]string
	members       map[string]*memberRow
	assignments   map[string]*models.CourseAssignment
}

type memberRow struct {
	models.TeamMember
	seq int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:          make(map[string]*models.Organization),
		orgByIdentity: make(map[string]string),
		members:       make(map[string]*memberRow),
		assignments:   make(map[string]*models.CourseAssignment),
	}
}

func (s *MemoryStore) GetOrganizationByIdentity(_ context.Context, identityID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orgByIdentity[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	org := *s.orgs[id]
	return &org, nil
}

func (s *MemoryStore) CreateOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgByIdentity[org.IdentityID]; ok {
		return ErrDuplicate
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if _, ok := s.orgs[org.ID]; ok {
		return ErrDuplicate
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	if org.Plan == "" {
		org.Plan = models.TierFree
	}

	stored := *org
	s.orgs[org.ID] = &stored
	s.orgByIdentity[org.IdentityID] = org.ID
	return nil
}

// SetPlan changes an organization's tier. Billing is handled elsewhere; this
// exists for tests and local tooling.
func (s *MemoryStore) SetPlan(orgID string, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	org.Plan = tier
	return nil
}

func (s *MemoryStore) CountTeamMembers(_ context.Context, orgID string, status models.MemberStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(orgID, status), nil
}

func (s *MemoryStore) countLocked(orgID string, status models.MemberStatus) int {
	n := 0
	for _, m := range s.members {
		if m.OrgID == orgID && (status == "" || m.Status == status) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) ListTeamMembers(_ context.Context, orgID string) ([]models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*memberRow, 0)
	for _, m := range s.members {
		if m.OrgID == orgID {
			rows = append(rows, m)
		}
	}
	// newest first; insertion order breaks timestamp ties
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	out := make([]models.TeamMember, len(rows))
	for i, r := range rows {
		out[i] = r.TeamMember
		out[i].Assignments = s.assignmentsLocked(r.ID)
	}
	return out, nil
}

func (s *MemoryStore) assignmentsLocked(memberID string) []models.CourseAssignment {
	out := []models.CourseAssignment{}
	for _, a := range s.assignments {
		if a.MemberID == memberID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out
}

func (s *MemoryStore) GetTeamMember(_ context.Context, orgID, memberID string) (*models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberID]
	if !ok || m.OrgID != orgID {
		return nil, ErrNotFound
	}
	out := m.TeamMember
	return &out, nil
}

func (s *MemoryStore) FindTeamMemberByEmail(_ context.Context, orgID, email string) (*models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m := s.byEmailLocked(orgID, email); m != nil {
		out := m.TeamMember
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) byEmailLocked(orgID, email string) *memberRow {
	for _, m := range s.members {
		if m.OrgID == orgID && m.Email == email {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) CreateTeamMember(_ context.Context, m *models.TeamMember, guard SeatGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[m.OrgID]; !ok {
		return ErrNotFound
	}
	if m.Status == "" {
		m.Status = models.MemberActive
	}
	if m.Status == models.MemberActive && guard != nil {
		if err := guard(s.countLocked(m.OrgID, models.MemberActive)); err != nil {
			return err
		}
	}
	if s.byEmailLocked(m.OrgID, m.Email) != nil {
		return ErrDuplicate
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.members[m.ID]; ok {
		return ErrDuplicate
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Assignments = []models.CourseAssignment{}

	s.seq++
	row := &memberRow{TeamMember: *m, seq: s.seq}
	row.Assignments = nil
	s.members[m.ID] = row
	return nil
}

func (s *MemoryStore) UpdateTeamMember(_ context.Context, orgID, memberID string, patch models.TeamMemberPatch, guard SeatGuard) (*models.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.members[memberID]
	if !ok || row.OrgID != orgID {
		return nil, ErrNotFound
	}

	if patch.Status != nil && *patch.Status == models.MemberActive && row.Status != models.MemberActive && guard != nil {
		if err := guard(s.countLocked(orgID, models.MemberActive)); err != nil {
			return nil, err
		}
	}
	if patch.Email != nil && *patch.Email != row.Email {
		if other := s.byEmailLocked(orgID, *patch.Email); other != nil && other.ID != memberID {
			return nil, ErrDuplicate
		}
	}

	patch.Apply(&row.TeamMember)
	out := row.TeamMember
	return &out, nil
}

func (s *MemoryStore) DeleteTeamMember(_ context.Context, orgID, memberID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.members[memberID]
	if !ok || row.OrgID != orgID {
		return 0, ErrNotFound
	}
	removed := 0
	for id, a := range s.assignments {
		if a.MemberID == memberID {
			delete(s.assignments, id)
			removed++
		}
	}
	delete(s.members, memberID)
	return removed, nil
}

func (s *MemoryStore) GetCourseAssignment(_ context.Context, orgID, assignmentID string) (*models.CourseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentID]
	if !ok {
		return nil, ErrNotFound
	}
	if m, ok := s.members[a.MemberID]; !ok || m.OrgID != orgID {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) FindCourseAssignment(_ context.Context, memberID string, courseID int) (*models.CourseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assignments {
		if a.MemberID == memberID && a.CourseID == courseID {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCourseAssignments(_ context.Context, memberID string) ([]models.CourseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignmentsLocked(memberID), nil
}

func (s *MemoryStore) CreateCourseAssignment(_ context.Context, a *models.CourseAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[a.MemberID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.assignments {
		if existing.MemberID == a.MemberID && existing.CourseID == a.CourseID {
			return ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	stored := *a
	s.assignments[a.ID] = &stored
	return nil
}

func (s *MemoryStore) DeleteCourseAssignment(_ context.Context, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[assignmentID]; !ok {
		return ErrNotFound
	}
	delete(s.assignments, assignmentID)
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
