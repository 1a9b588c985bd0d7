package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tiko/mediacache/config"
	"github.com/tiko/mediacache/controllers"
	"github.com/tiko/mediacache/metrics"
	"github.com/tiko/mediacache/middleware"
	"github.com/tiko/mediacache/repository"
	"github.com/tiko/mediacache/utils"
)

// Dependencies are the collaborators the router wires into controllers.
type Dependencies struct {
	Config       config.AppConfig
	Logger       *zap.Logger
	Source       repository.MediaSource
	Cache        utils.KVStore
	MediaOptions []controllers.MediaOption
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(utils.Ginzap(deps.Logger, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(deps.Logger, true))
	r.Use(metrics.Middleware())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	mediaController := controllers.NewMediaController(deps.Source, deps.Cache, deps.Logger, cfg.DeploymentVersion, cfg.CacheTTL(), deps.MediaOptions...)
	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute)
	public := []gin.HandlerFunc{mediaController.CORS(), limiter.Middleware(), mediaController.Handle}
	r.Any("/", public...)
	r.Any("/api/v1/media/public", public...)

	if cfg.JWTSecret != "" {
		corsCfg := cors.Config{
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
		} else {
			corsCfg.AllowOrigins = cfg.AllowedOrigins
		}

		adminController := controllers.NewAdminController(mediaController, deps.Cache, deps.Logger)
		admin := r.Group("/api/v1/admin")
		admin.Use(cors.New(corsCfg))
		// Preflight is answered by the cors middleware before any token check.
		admin.OPTIONS("/*path", func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })
		admin.Use(middleware.AdminRequired(cfg.JWTSecret))
		admin.GET("/cache/status", adminController.CacheStatus)
		admin.POST("/cache/purge", adminController.Purge)
		admin.POST("/cache/cleanup", adminController.Cleanup)
	} else {
		deps.Logger.Info("admin endpoints disabled: no JWT secret configured")
	}

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, "Not found")
	})

	return r
}
