package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
	"safetrain-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误响应
// verbose 为 true 时（开发环境）响应中带上panic信息
func Recovery(log *zap.Logger, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					// 客户端断开，交给 net/http 处理
					panic(rvr)
				}

				log.Error("Panic recovered",
					zap.Any("panic", rvr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.ByteString("stack", debug.Stack()),
				)

				details := ""
				if verbose {
					details = fmt.Sprint(rvr)
				}
				utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
					apperr.EInternal, "Internal server error", details)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
