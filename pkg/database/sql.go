package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
)

const (
	tableOrganizations     = "organizations"
	tableTeamMembers       = "team_members"
	tableCourseAssignments = "course_assignments"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	// lockSuffix is appended to the organization read that serialises seat checks.
	lockSuffix        string
	isUniqueViolation func(error) bool
}

// SQLStore implements Store on database/sql through sqlx and squirrel.
// It backs both PostgreSQL and SQLite.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	log     *zap.Logger
}

func newSQLStore(db *sqlx.DB, d dialect, log *zap.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: d, log: log}
}

// DB exposes the underlying handle for migrations and tests.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

// Dialect returns the backend name ("postgres" or "sqlite").
func (s *SQLStore) Dialect() string { return s.dialect.name }

func (s *SQLStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.placeholder)
}

// translate maps driver errors onto the package sentinels.
func (s *SQLStore) translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case s.dialect.isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inTx runs fn inside a transaction, rolling back on any error.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) GetOrganizationByIdentity(ctx context.Context, identityID string) (*models.Organization, error) {
	query, args, err := s.builder().
		Select("id", "identity_id", "name", "plan", "created_at").
		From(tableOrganizations).
		Where(sq.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var org models.Organization
	if err := s.db.GetContext(ctx, &org, query, args...); err != nil {
		return nil, s.translate("get organization", err)
	}
	return &org, nil
}

func (s *SQLStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	if org.Plan == "" {
		org.Plan = models.TierFree
	}

	query, args, err := s.builder().
		Insert(tableOrganizations).
		Columns("id", "identity_id", "name", "plan", "created_at").
		Values(org.ID, org.IdentityID, org.Name, string(org.Plan), org.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return s.translate("create organization", err)
}

func (s *SQLStore) CountTeamMembers(ctx context.Context, orgID string, status models.MemberStatus) (int, error) {
	return s.countMembers(ctx, s.db, orgID, status)
}

func (s *SQLStore) countMembers(ctx context.Context, q sqlx.QueryerContext, orgID string, status models.MemberStatus) (int, error) {
	where := sq.Eq{"org_id": orgID}
	if status != "" {
		where["status"] = string(status)
	}
	query, args, err := s.builder().
		Select("COUNT(*)").
		From(tableTeamMembers).
		Where(where).
		ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return 0, s.translate("count team members", err)
	}
	return n, nil
}

func (s *SQLStore) memberColumns() []string {
	return []string{"id", "org_id", "name", "email", "status", "created_at"}
}

func (s *SQLStore) ListTeamMembers(ctx context.Context, orgID string) ([]models.TeamMember, error) {
	query, args, err := s.builder().
		Select(s.memberColumns()...).
		From(tableTeamMembers).
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	members := []models.TeamMember{}
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, s.translate("list team members", err)
	}
	if len(members) == 0 {
		return members, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	assignments, err := s.assignmentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i].Assignments = assignments[members[i].ID]
		if members[i].Assignments == nil {
			members[i].Assignments = []models.CourseAssignment{}
		}
	}
	return members, nil
}

func (s *SQLStore) assignmentColumns(prefix string) []string {
	cols := []string{"id", "member_id", "course_id", "progress", "completed_at", "created_at"}
	if prefix == "" {
		return cols
	}
	for i, c := range cols {
		cols[i] = prefix + "." + c
	}
	return cols
}

// assignmentsFor loads the assignments of several members in one query.
func (s *SQLStore) assignmentsFor(ctx context.Context, memberIDs []string) (map[string][]models.CourseAssignment, error) {
	query, args, err := s.builder().
		Select(s.assignmentColumns("")...).
		From(tableCourseAssignments).
		Where(sq.Eq{"member_id": memberIDs}).
		OrderBy("course_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []models.CourseAssignment
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.translate("list course assignments", err)
	}
	out := make(map[string][]models.CourseAssignment, len(memberIDs))
	for _, a := range rows {
		out[a.MemberID] = append(out[a.MemberID], a)
	}
	return out, nil
}

func (s *SQLStore) GetTeamMember(ctx context.Context, orgID, memberID string) (*models.TeamMember, error) {
	return s.getMember(ctx, s.db, sq.Eq{"id": memberID, "org_id": orgID})
}

func (s *SQLStore) FindTeamMemberByEmail(ctx context.Context, orgID, email string) (*models.TeamMember, error) {
	return s.getMember(ctx, s.db, sq.Eq{"org_id": orgID, "email": email})
}

func (s *SQLStore) getMember(ctx context.Context, q sqlx.QueryerContext, where sq.Eq) (*models.TeamMember, error) {
	query, args, err := s.builder().
		Select(s.memberColumns()...).
		From(tableTeamMembers).
		Where(where).
		ToSql()
	if err != nil {
		return nil, err
	}

	var m models.TeamMember
	if err := sqlx.GetContext(ctx, q, &m, query, args...); err != nil {
		return nil, s.translate("get team member", err)
	}
	return &m, nil
}

// lockOrganization serialises seat checks for one organization until tx ends.
func (s *SQLStore) lockOrganization(ctx context.Context, tx *sqlx.Tx, orgID string) error {
	b := s.builder().Select("id").From(tableOrganizations).Where(sq.Eq{"id": orgID})
	if s.dialect.lockSuffix != "" {
		b = b.Suffix(s.dialect.lockSuffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	var id string
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		return s.translate("lock organization", err)
	}
	return nil
}

// checkSeat runs guard against the active count observed inside tx.
func (s *SQLStore) checkSeat(ctx context.Context, tx *sqlx.Tx, orgID string, guard SeatGuard) error {
	if guard == nil {
		return nil
	}
	if err := s.lockOrganization(ctx, tx, orgID); err != nil {
		return err
	}
	active, err := s.countMembers(ctx, tx, orgID, models.MemberActive)
	if err != nil {
		return err
	}
	return guard(active)
}

func (s *SQLStore) CreateTeamMember(ctx context.Context, m *models.TeamMember, guard SeatGuard) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = models.MemberActive
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if m.Status == models.MemberActive {
			if err := s.checkSeat(ctx, tx, m.OrgID, guard); err != nil {
				return err
			}
		}

		query, args, err := s.builder().
			Insert(tableTeamMembers).
			Columns(s.memberColumns()...).
			Values(m.ID, m.OrgID, m.Name, m.Email, string(m.Status), m.CreatedAt).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		if err == nil && m.Assignments == nil {
			m.Assignments = []models.CourseAssignment{}
		}
		return s.translate("create team member", err)
	})
}

func (s *SQLStore) UpdateTeamMember(ctx context.Context, orgID, memberID string, patch models.TeamMemberPatch, guard SeatGuard) (*models.TeamMember, error) {
	var updated *models.TeamMember
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.getMember(ctx, tx, sq.Eq{"id": memberID, "org_id": orgID})
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = current
			return nil
		}

		activating := patch.Status != nil && *patch.Status == models.MemberActive && current.Status != models.MemberActive
		if activating {
			if err := s.checkSeat(ctx, tx, orgID, guard); err != nil {
				return err
			}
		}

		set := map[string]interface{}{}
		if patch.Name != nil {
			set["name"] = *patch.Name
		}
		if patch.Email != nil {
			set["email"] = *patch.Email
		}
		if patch.Status != nil {
			set["status"] = string(*patch.Status)
		}
		query, args, err := s.builder().
			Update(tableTeamMembers).
			SetMap(set).
			Where(sq.Eq{"id": memberID, "org_id": orgID}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return s.translate("update team member", err)
		}

		patch.Apply(current)
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLStore) DeleteTeamMember(ctx context.Context, orgID, memberID string) (int, error) {
	var removed int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.getMember(ctx, tx, sq.Eq{"id": memberID, "org_id": orgID}); err != nil {
			return err
		}

		query, args, err := s.builder().
			Delete(tableCourseAssignments).
			Where(sq.Eq{"member_id": memberID}).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return s.translate("delete course assignments", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)

		query, args, err = s.builder().
			Delete(tableTeamMembers).
			Where(sq.Eq{"id": memberID, "org_id": orgID}).
			ToSql()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return s.translate("delete team member", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLStore) GetCourseAssignment(ctx context.Context, orgID, assignmentID string) (*models.CourseAssignment, error) {
	query, args, err := s.builder().
		Select(s.assignmentColumns("ca")...).
		From(tableCourseAssignments + " ca").
		Join(tableTeamMembers + " tm ON tm.id = ca.member_id").
		Where(sq.Eq{"ca.id": assignmentID, "tm.org_id": orgID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a models.CourseAssignment
	if err := s.db.GetContext(ctx, &a, query, args...); err != nil {
		return nil, s.translate("get course assignment", err)
	}
	return &a, nil
}

func (s *SQLStore) FindCourseAssignment(ctx context.Context, memberID string, courseID int) (*models.CourseAssignment, error) {
	query, args, err := s.builder().
		Select(s.assignmentColumns("")...).
		From(tableCourseAssignments).
		Where(sq.Eq{"member_id": memberID, "course_id": courseID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var a models.CourseAssignment
	if err := s.db.GetContext(ctx, &a, query, args...); err != nil {
		return nil, s.translate("find course assignment", err)
	}
	return &a, nil
}

func (s *SQLStore) ListCourseAssignments(ctx context.Context, memberID string) ([]models.CourseAssignment, error) {
	byMember, err := s.assignmentsFor(ctx, []string{memberID})
	if err != nil {
		return nil, err
	}
	out := byMember[memberID]
	if out == nil {
		out = []models.CourseAssignment{}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *SQLStore) CreateCourseAssignment(ctx context.Context, a *models.CourseAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.builder().
		Insert(tableCourseAssignments).
		Columns(s.assignmentColumns("")...).
		Values(a.ID, a.MemberID, a.CourseID, a.Progress, a.CompletedAt, a.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return s.translate("create course assignment", err)
}

func (s *SQLStore) DeleteCourseAssignment(ctx context.Context, assignmentID string) error {
	query, args, err := s.builder().
		Delete(tableCourseAssignments).
		Where(sq.Eq{"id": assignmentID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.translate("delete course assignment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
