package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/handlers"
	customMiddleware "safetrain-backend/pkg/middleware"
	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// Deps are everything the router needs to build its handlers.
type Deps struct {
	Config   *config.Config
	Services *services.Services
	Store    database.Store
	Cache    handlers.Pinger
	JWT      *utils.JWTService
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// New 创建Chi路由器，所有API端点集中在一个路由器中管理
func New(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	router := chi.NewRouter()
	setupMiddleware(router, d)
	setupRoutes(router, d)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, d Deps) {
	cfg := d.Config

	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(d.Log.Named("http")))
	router.Use(customMiddleware.Recovery(d.Log, cfg.IsDevelopment()))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// 请求体限制
	if cfg.MaxBodyBytes > 0 {
		router.Use(customMiddleware.MaxBodySize(cfg.MaxBodyBytes))
	}
	router.Use(customMiddleware.ContentTypeJSON)

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, d Deps) {
	healthHandler := handlers.NewHealthHandler(d.Config, d.Store, d.Cache, d.Log)
	orgHandler := handlers.NewOrganizationHandler(d.Services, d.Log)
	teamHandler := handlers.NewTeamHandler(d.Services, d.Log)
	courseHandler := handlers.NewCourseHandler(d.Services, d.Log)

	// 健康检查端点
	router.Get("/", healthHandler.HealthCheck)
	router.Get("/healthz", healthHandler.Ready)
	if d.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// 数据库连接池状态端点（调试用）
	if d.Config.IsDevelopment() {
		router.Get("/debug/db-pool", healthHandler.PoolStats)
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Get("/plans", courseHandler.ListPlans)

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Auth(d.JWT, d.Log.Named("auth")))

			r.Route("/organization", func(r chi.Router) {
				r.Get("/init", orgHandler.GetOrganization)
				r.Post("/init", orgHandler.InitOrganization)
				r.Get("/plan", orgHandler.GetPlan)
			})

			r.Route("/team", func(r chi.Router) {
				r.Get("/", teamHandler.ListMembers)
				r.Post("/", teamHandler.AddMember)
				r.Patch("/{id}", teamHandler.UpdateMember)
				r.Delete("/{id}", teamHandler.RemoveMember)
			})

			r.Route("/courses", func(r chi.Router) {
				r.Get("/", courseHandler.ListCourses)
				r.Post("/assign", courseHandler.AssignCourse)
				r.Delete("/assign/{id}", courseHandler.UnassignCourse)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "method_not_allowed",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
