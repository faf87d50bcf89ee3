package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/utils"
)

// ContextKey 用于在context中存储身份信息的键
type ContextKey string

const (
	IdentityContextKey ContextKey = "identity"

	// request logger slot, filled in by Auth
	identitySinkKey ContextKey = "identity_sink"
)

// Auth 身份认证中间件：校验 Bearer token 并把调用者身份放入 context
func Auth(jwtService *utils.JWTService, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Debug("Missing authorization header", zap.String("path", r.URL.Path))
				utils.WriteUnauthorizedResponse(w, "Unauthorized")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				log.Debug("Invalid authorization header format", zap.String("path", r.URL.Path))
				utils.WriteUnauthorizedResponse(w, "Unauthorized")
				return
			}

			identity, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				log.Debug("Token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				utils.WriteUnauthorizedResponse(w, "Unauthorized")
				return
			}

			if sink, ok := r.Context().Value(identitySinkKey).(*string); ok {
				*sink = identity.ID
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity 将身份信息添加到context
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// CurrentIdentity 从context中获取调用者身份
func CurrentIdentity(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil && identity.ID != ""
}

func withIdentitySink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, identitySinkKey, sink)
}
