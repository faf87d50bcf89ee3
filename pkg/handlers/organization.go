package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// OrganizationHandler serves the caller's organization and plan overview.
type OrganizationHandler struct {
	base
}

func NewOrganizationHandler(svc *services.Services, log *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{base: newBase(svc, log, "organization")}
}

// GET /api/organization/init
// 尚未初始化时返回 organization: null
func (h *OrganizationHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	org, err := h.svc.Directory.FindCached(r.Context(), identity)
	if err != nil && !apperr.Is(err, apperr.ENotFound) {
		h.fail(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"organization": org})
}

// POST /api/organization/init
func (h *OrganizationHandler) InitOrganization(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	org, created, err := h.svc.Directory.Resolve(r.Context(), identity)
	if err != nil {
		h.fail(w, err)
		return
	}

	data := map[string]interface{}{"organization": org}
	if created {
		utils.WriteCreatedResponse(w, data, "Organization created successfully")
		return
	}
	utils.WriteMessageResponse(w, http.StatusOK, data, "Organization already exists")
}

// GET /api/organization/plan
func (h *OrganizationHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	org, ok := h.organization(w, r)
	if !ok {
		return
	}
	overview, err := h.svc.Directory.Overview(r.Context(), org)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteSuccessResponse(w, overview)
}
