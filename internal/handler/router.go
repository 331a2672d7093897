package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/feellog-api/internal/middleware"
	"github.com/noah-isme/feellog-api/internal/service"
	"github.com/noah-isme/feellog-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/feellog-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/feellog-api/pkg/middleware/requestid"
	"github.com/noah-isme/feellog-api/pkg/ratelimit"
)

// Limiters holds the rate limit budgets. Auth applies separately to each credential route.
// Nil entries disable limiting.
type Limiters struct {
	Auth    ratelimit.Limiter
	Refresh ratelimit.Limiter
	Profile ratelimit.Limiter
}

// RouterConfig collects everything the HTTP surface depends on.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Auth      *AuthHandler
	Metrics   *MetricsHandler
	Validator middleware.AccessTokenValidator
	Limiters  Limiters

	MetricsService *service.MetricsService
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.MetricsService))

	r.GET("/health", cfg.Metrics.Health)
	r.GET("/ready", cfg.Metrics.Ready)
	r.GET("/metrics", cfg.Metrics.Prometheus)

	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", cfg.Metrics.Summary)

	authLimit := func(scope string) gin.HandlerFunc {
		return middleware.RateLimit(scope, cfg.Limiters.Auth, cfg.MetricsService, cfg.Logger)
	}
	refreshLimit := middleware.RateLimit("refresh", cfg.Limiters.Refresh, cfg.MetricsService, cfg.Logger)
	profileLimit := middleware.RateLimit("profile", cfg.Limiters.Profile, cfg.MetricsService, cfg.Logger)
	requireAuth := middleware.JWT(cfg.Validator)

	auth := api.Group("/auth")
	auth.POST("/register", authLimit("register"), cfg.Auth.Register)
	auth.POST("/login", authLimit("login"), cfg.Auth.Login)
	auth.POST("/refresh", refreshLimit, cfg.Auth.Refresh)
	auth.POST("/logout", requireAuth, cfg.Auth.Logout)
	auth.POST("/forgot-password", authLimit("forgot-password"), cfg.Auth.ForgotPassword)
	auth.POST("/reset-password", authLimit("reset-password"), cfg.Auth.ResetPassword)
	auth.GET("/me", profileLimit, requireAuth, cfg.Auth.Me)

	return r
}
