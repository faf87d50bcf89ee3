package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/middleware"
	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// base 是各处理器共享的依赖
type base struct {
	svc *services.Services
	log *zap.Logger
}

func newBase(svc *services.Services, log *zap.Logger, name string) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{svc: svc, log: log.With(zap.String("handler", name))}
}

// identity 获取调用者身份，不存在时直接写 401
func (b base) identity(w http.ResponseWriter, r *http.Request) (*models.Identity, bool) {
	identity, ok := middleware.CurrentIdentity(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Unauthorized")
		return nil, false
	}
	return identity, true
}

// organization 获取调用者的组织，不会自动创建；直接读库，计划等级是最新的
func (b base) organization(w http.ResponseWriter, r *http.Request) (*models.Organization, bool) {
	return b.findOrganization(w, r, b.svc.Directory.Find)
}

// cachedOrganization 允许走缓存，只用于展示，不能用于权益校验
func (b base) cachedOrganization(w http.ResponseWriter, r *http.Request) (*models.Organization, bool) {
	return b.findOrganization(w, r, b.svc.Directory.FindCached)
}

func (b base) findOrganization(w http.ResponseWriter, r *http.Request,
	find func(context.Context, *models.Identity) (*models.Organization, error)) (*models.Organization, bool) {
	identity, ok := b.identity(w, r)
	if !ok {
		return nil, false
	}
	org, err := find(r.Context(), identity)
	if err != nil {
		b.fail(w, err)
		return nil, false
	}
	return org, true
}

func (b base) fail(w http.ResponseWriter, err error) {
	utils.WriteError(w, b.log, err)
}

// decode 解析请求体，格式错误时写 400
func (b base) decode(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	if err := utils.ParseJSONBody(r, v); err != nil {
		b.log.Debug("Invalid request body", zap.String("op", op), zap.Error(err))
		b.fail(w, apperr.Validation(op, "Invalid request body"))
		return false
	}
	return true
}
