package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// CourseHandler serves the course catalog, the plan table and course assignments.
type CourseHandler struct {
	base
}

func NewCourseHandler(svc *services.Services, log *zap.Logger) *CourseHandler {
	return &CourseHandler{base: newBase(svc, log, "courses")}
}

// 字段名与前端保持一致
type assignCourseRequest struct {
	MemberID string `json:"memberId"`
	CourseID int    `json:"courseId"`
}

// GET /api/plans
// 公开接口，定价页使用
func (h *CourseHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{"plans": h.svc.Plans.Plans()})
}

// GET /api/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	org, ok := h.organization(w, r)
	if !ok {
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"courses": h.svc.Assignments.Catalog(org),
		"plan":    org.Plan,
	})
}

// POST /api/courses/assign
func (h *CourseHandler) AssignCourse(w http.ResponseWriter, r *http.Request) {
	var req assignCourseRequest
	if !h.decode(w, r, "assignments/assign", &req) {
		return
	}
	org, ok := h.organization(w, r)
	if !ok {
		return
	}

	assignment, err := h.svc.Assignments.AssignCourse(r.Context(), org, req.MemberID, req.CourseID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"assignment": assignment}, "Course assigned successfully")
}

// DELETE /api/courses/assign/{id}
func (h *CourseHandler) UnassignCourse(w http.ResponseWriter, r *http.Request) {
	org, ok := h.organization(w, r)
	if !ok {
		return
	}
	if err := h.svc.Assignments.UnassignCourse(r.Context(), org, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteMessageResponse(w, http.StatusOK, nil, "Assignment removed successfully")
}
