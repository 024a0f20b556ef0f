package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/infra/config"
	"github.com/medscan/hospital-records/internal/infra/telemetry"
	"github.com/medscan/hospital-records/internal/transport/http/handlers"
	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// ServiceSet groups the application services the HTTP layer exposes.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Patients     *usecase.PatientService
	MRI          *usecase.MRIService
	Predictions  *usecase.PredictionService
}

// DatabaseChecker reports database connectivity for readiness probes.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker reports cache connectivity for readiness probes.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies carries everything Register needs to build the router.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *telemetry.Metrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// Register builds the Gin engine with the full middleware chain and all
// API routes mounted under /api/v1.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.CORS(nil))

	checks := make(map[string]handlers.DependencyChecker)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}
	health := handlers.NewHealthHandler(checks)
	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	handlers.NewAuthHandler(deps.Services.Auth, deps.Metrics).
		RegisterRoutes(auth, loginMiddlewares(deps), refreshMiddlewares(deps))
	handlers.NewRegistrationHandler(deps.Services.Registration).
		RegisterRoutes(auth, registerMiddlewares(deps)...)

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(deps.Services.Auth))

	handlers.NewPatientHandler(deps.Services.Patients).RegisterRoutes(protected.Group("/patients"))
	handlers.NewMRIHandler(deps.Services.MRI).RegisterRoutes(protected.Group("/mri"))
	handlers.NewPredictionHandler(deps.Services.Predictions).RegisterRoutes(protected.Group("/predictions"))

	return r
}

func loginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return limitBy(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)
}

func refreshMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return limitBy(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts)
}

func registerMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return limitBy(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts)
}

// limitBy builds a client-IP sliding-window rule; a nil limiter or a
// non-positive limit disables throttling for the endpoint.
func limitBy(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     deps.Config.RateLimit.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}
