package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
)

// PostgREST error codes
const (
	pgrstNoRows = "PGRST116"
)

// Filter is a set of equality conditions, column -> value.
type Filter map[string]interface{}

// restClient exposes the keyed CRUD primitives of a PostgREST endpoint:
// findOne, findMany, count, insert, update and delete.
type restClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// restError is the PostgREST error body.
type restError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *restError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s %s", e.Status, e.Code, e.Message)
}

func (f Filter) encode(q url.Values) {
	for col, v := range f {
		q.Set(col, "eq."+fmt.Sprint(v))
	}
}

// do 发送HTTP请求到Supabase
func (c *restClient) do(ctx context.Context, method, table string, q url.Values, body interface{}, headers map[string]string) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	endpoint := c.baseURL + "/rest/v1/" + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置请求头
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &restError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		switch {
		case apiErr.Code == pgUniqueViolation:
			return resp, nil, fmt.Errorf("%w: %v", ErrDuplicate, apiErr)
		case apiErr.Code == pgrstNoRows:
			return resp, nil, ErrNotFound
		}
		return resp, nil, apiErr
	}

	return resp, respBody, nil
}

// findMany returns matching rows decoded into dest (a pointer to a slice).
func (c *restClient) findMany(ctx context.Context, table string, filter Filter, sel, order string, dest interface{}) error {
	q := url.Values{}
	filter.encode(q)
	if sel == "" {
		sel = "*"
	}
	q.Set("select", sel)
	if order != "" {
		q.Set("order", order)
	}
	_, data, err := c.do(ctx, http.MethodGet, table, q, nil, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// findOne decodes the single matching row into dest or returns ErrNotFound.
func (c *restClient) findOne(ctx context.Context, table string, filter Filter, sel string, dest interface{}) error {
	q := url.Values{}
	filter.encode(q)
	if sel == "" {
		sel = "*"
	}
	q.Set("select", sel)
	q.Set("limit", "1")
	_, data, err := c.do(ctx, http.MethodGet, table, q, nil, nil)
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(rows[0], dest)
}

// count returns the number of matching rows using an exact HEAD count.
func (c *restClient) count(ctx context.Context, table string, filter Filter) (int, error) {
	q := url.Values{}
	filter.encode(q)
	q.Set("select", "id")
	resp, _, err := c.do(ctx, http.MethodHead, table, q, nil, map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

func (c *restClient) insert(ctx context.Context, table string, fields map[string]interface{}) error {
	_, _, err := c.do(ctx, http.MethodPost, table, nil, fields, nil)
	return err
}

// update patches matching rows and reports how many changed.
func (c *restClient) update(ctx context.Context, table string, filter Filter, patch map[string]interface{}) (int, error) {
	q := url.Values{}
	filter.encode(q)
	_, data, err := c.do(ctx, http.MethodPatch, table, q, patch, nil)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// delete removes matching rows and reports how many went.
func (c *restClient) delete(ctx context.Context, table string, filter Filter) (int, error) {
	q := url.Values{}
	filter.encode(q)
	_, data, err := c.do(ctx, http.MethodDelete, table, q, nil, nil)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// parseContentRangeTotal reads the total from "0-9/42" or "*/0".
func parseContentRangeTotal(h string) (int, error) {
	i := strings.LastIndex(h, "/")
	if i < 0 || i == len(h)-1 {
		return 0, fmt.Errorf("missing total in Content-Range %q", h)
	}
	total := h[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not returned in Content-Range %q", h)
	}
	return strconv.Atoi(total)
}

// SupabaseStore implements Store against the Supabase REST API.
//
// PostgREST has no multi-statement transactions, so the seat check in
// CreateTeamMember is count-then-insert: two requests racing for the last
// seat can both succeed. Cascading deletes are single requests relying on the
// ON DELETE CASCADE foreign key.
type SupabaseStore struct {
	rest *restClient
	log  *zap.Logger
}

// NewSupabaseStore 创建Supabase存储实例
func NewSupabaseStore(baseURL, key string, log *zap.Logger) *SupabaseStore {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}

	return &SupabaseStore{
		rest: &restClient{
			baseURL: strings.TrimRight(baseURL, "/"),
			apiKey:  key,
			httpClient: &http.Client{
				Timeout: 30 * time.Second,
			},
		},
		log: log,
	}
}

const (
	memberSelect     = "id,org_id,name,email,status,created_at"
	assignmentSelect = "id,member_id,course_id,progress,completed_at,created_at"
)

func (s *SupabaseStore) GetOrganizationByIdentity(ctx context.Context, identityID string) (*models.Organization, error) {
	var row struct {
		models.Organization
		Name string      `json:"name"`
		Plan models.Tier `json:"plan"`
	}
	if err := s.rest.findOne(ctx, tableOrganizations, Filter{"identity_id": identityID}, "", &row); err != nil {
		return nil, err
	}
	org := row.Organization
	org.Name = row.Name
	org.Plan = row.Plan
	return &org, nil
}

func (s *SupabaseStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	if org.Plan == "" {
		org.Plan = models.TierFree
	}
	return s.rest.insert(ctx, tableOrganizations, map[string]interface{}{
		"id":          org.ID,
		"identity_id": org.IdentityID,
		"name":        org.Name,
		"plan":        string(org.Plan),
		"created_at":  org.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *SupabaseStore) CountTeamMembers(ctx context.Context, orgID string, status models.MemberStatus) (int, error) {
	f := Filter{"org_id": orgID}
	if status != "" {
		f["status"] = string(status)
	}
	return s.rest.count(ctx, tableTeamMembers, f)
}

func (s *SupabaseStore) ListTeamMembers(ctx context.Context, orgID string) ([]models.TeamMember, error) {
	// embed assignments in one round-trip
	var rows []struct {
		models.TeamMember
		Assignments []models.CourseAssignment `json:"course_assignments"`
	}
	sel := memberSelect + ",course_assignments(" + assignmentSelect + ")"
	if err := s.rest.findMany(ctx, tableTeamMembers, Filter{"org_id": orgID}, sel, "created_at.desc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.TeamMember, 0, len(rows))
	for _, r := range rows {
		m := r.TeamMember
		m.Assignments = r.Assignments
		if m.Assignments == nil {
			m.Assignments = []models.CourseAssignment{}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *SupabaseStore) GetTeamMember(ctx context.Context, orgID, memberID string) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := s.rest.findOne(ctx, tableTeamMembers, Filter{"id": memberID, "org_id": orgID}, memberSelect, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SupabaseStore) FindTeamMemberByEmail(ctx context.Context, orgID, email string) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := s.rest.findOne(ctx, tableTeamMembers, Filter{"org_id": orgID, "email": email}, memberSelect, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SupabaseStore) CreateTeamMember(ctx context.Context, m *models.TeamMember, guard SeatGuard) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = models.MemberActive
	}

	if m.Status == models.MemberActive && guard != nil {
		active, err := s.CountTeamMembers(ctx, m.OrgID, models.MemberActive)
		if err != nil {
			return err
		}
		if err := guard(active); err != nil {
			return err
		}
	}

	err := s.rest.insert(ctx, tableTeamMembers, map[string]interface{}{
		"id":         m.ID,
		"org_id":     m.OrgID,
		"name":       m.Name,
		"email":      m.Email,
		"status":     string(m.Status),
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
	})
	if err == nil && m.Assignments == nil {
		m.Assignments = []models.CourseAssignment{}
	}
	return err
}

func (s *SupabaseStore) UpdateTeamMember(ctx context.Context, orgID, memberID string, patch models.TeamMemberPatch, guard SeatGuard) (*models.TeamMember, error) {
	current, err := s.GetTeamMember(ctx, orgID, memberID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	if patch.Status != nil && *patch.Status == models.MemberActive && current.Status != models.MemberActive && guard != nil {
		active, err := s.CountTeamMembers(ctx, orgID, models.MemberActive)
		if err != nil {
			return nil, err
		}
		if err := guard(active); err != nil {
			return nil, err
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
	n, err := s.rest.update(ctx, tableTeamMembers, Filter{"id": memberID, "org_id": orgID}, set)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	patch.Apply(current)
	return current, nil
}

func (s *SupabaseStore) DeleteTeamMember(ctx context.Context, orgID, memberID string) (int, error) {
	if _, err := s.GetTeamMember(ctx, orgID, memberID); err != nil {
		return 0, err
	}
	assigned, err := s.rest.count(ctx, tableCourseAssignments, Filter{"member_id": memberID})
	if err != nil {
		return 0, err
	}
	// course_assignments go with the member through ON DELETE CASCADE
	n, err := s.rest.delete(ctx, tableTeamMembers, Filter{"id": memberID, "org_id": orgID})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return assigned, nil
}

func (s *SupabaseStore) GetCourseAssignment(ctx context.Context, orgID, assignmentID string) (*models.CourseAssignment, error) {
	q := url.Values{}
	q.Set("id", "eq."+assignmentID)
	q.Set("team_members.org_id", "eq."+orgID)
	q.Set("select", assignmentSelect+",team_members!inner(org_id)")
	q.Set("limit", "1")
	_, data, err := s.rest.do(ctx, http.MethodGet, tableCourseAssignments, q, nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []models.CourseAssignment
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *SupabaseStore) FindCourseAssignment(ctx context.Context, memberID string, courseID int) (*models.CourseAssignment, error) {
	var a models.CourseAssignment
	f := Filter{"member_id": memberID, "course_id": courseID}
	if err := s.rest.findOne(ctx, tableCourseAssignments, f, assignmentSelect, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SupabaseStore) ListCourseAssignments(ctx context.Context, memberID string) ([]models.CourseAssignment, error) {
	out := []models.CourseAssignment{}
	err := s.rest.findMany(ctx, tableCourseAssignments, Filter{"member_id": memberID}, assignmentSelect, "course_id.asc", &out)
	return out, err
}

func (s *SupabaseStore) CreateCourseAssignment(ctx context.Context, a *models.CourseAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	fields := map[string]interface{}{
		"id":         a.ID,
		"member_id":  a.MemberID,
		"course_id":  a.CourseID,
		"progress":   a.Progress,
		"created_at": a.CreatedAt.Format(time.RFC3339Nano),
	}
	if a.CompletedAt != nil {
		fields["completed_at"] = a.CompletedAt.Format(time.RFC3339Nano)
	}
	return s.rest.insert(ctx, tableCourseAssignments, fields)
}

func (s *SupabaseStore) DeleteCourseAssignment(ctx context.Context, assignmentID string) error {
	n, err := s.rest.delete(ctx, tableCourseAssignments, Filter{"id": assignmentID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck 健康检查：查询一行组织数据
func (s *SupabaseStore) HealthCheck(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	if _, _, err := s.rest.do(ctx, http.MethodGet, tableOrganizations, q, nil, nil); err != nil {
		return fmt.Errorf("supabase health check: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Close() error {
	s.rest.httpClient.CloseIdleConnections()
	return nil
}
