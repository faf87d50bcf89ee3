package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// TeamHandler 团队成员管理
type TeamHandler struct {
	base
}

func NewTeamHandler(svc *services.Services, log *zap.Logger) *TeamHandler {
	return &TeamHandler{base: newBase(svc, log, "team")}
}

type addMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GET /api/team
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	org, ok := h.cachedOrganization(w, r)
	if !ok {
		return
	}
	members, err := h.svc.Roster.ListMembers(r.Context(), org)
	if err != nil {
		h.fail(w, err)
		return
	}
	if members == nil {
		members = []models.TeamMember{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"members":      members,
		"organization": org,
	})
}

// POST /api/team
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !h.decode(w, r, "team/add", &req) {
		return
	}
	org, ok := h.organization(w, r)
	if !ok {
		return
	}

	member, err := h.svc.Roster.AddMember(r.Context(), org, req.Name, req.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"member": member}, "Team member added successfully")
}

// PATCH /api/team/{id}
func (h *TeamHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var patch models.TeamMemberPatch
	if !h.decode(w, r, "team/update", &patch) {
		return
	}
	org, ok := h.organization(w, r)
	if !ok {
		return
	}

	member, err := h.svc.Roster.UpdateMember(r.Context(), org, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteMessageResponse(w, http.StatusOK, map[string]interface{}{"member": member}, "Team member updated successfully")
}

// DELETE /api/team/{id}
// 成员的课程分配一并删除
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	org, ok := h.organization(w, r)
	if !ok {
		return
	}

	removed, err := h.svc.Roster.RemoveMember(r.Context(), org, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteMessageResponse(w, http.StatusOK, map[string]interface{}{
		"assignments_removed": removed,
	}, "Team member deleted successfully")
}
