package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tiko/mediacache/middleware"
	"github.com/tiko/mediacache/utils"
)

// AdminController exposes cache inspection and maintenance for operators.
type AdminController struct {
	media  *MediaController
	kv     utils.KVStore
	logger *zap.Logger
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(media *MediaController, kv utils.KVStore, logger *zap.Logger) *AdminController {
	return &AdminController{media: media, kv: kv, logger: logger}
}

// CacheStatus reports whether the current version's entry exists and how long it has left.
func (a *AdminController) CacheStatus(ctx *gin.Context) {
	version := a.media.Version()
	key := utils.CacheKey(version)

	_, cached, err := a.kv.Get(ctx.Request.Context(), key)
	if err != nil {
		a.logger.Warn("admin cache status read failed", zap.String("key", key), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.MsgCacheUnavailable)
		return
	}
	ttl, err := a.kv.TTL(ctx.Request.Context(), key)
	if err != nil {
		a.logger.Warn("admin cache ttl read failed", zap.String("key", key), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.MsgCacheUnavailable)
		return
	}
	stored, err := a.kv.Keys(ctx.Request.Context(), utils.CacheKeyPrefix)
	if err != nil {
		a.logger.Warn("admin cache key listing failed", zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.MsgCacheUnavailable)
		return
	}

	utils.Success(ctx, gin.H{
		"version":     version,
		"key":         key,
		"cached":      cached,
		"ttl_seconds": int64(ttl.Seconds()),
		"keys":        stored,
	})
}

// Purge drops every deployment scoped entry, including the current one.
func (a *AdminController) Purge(ctx *gin.Context) {
	a.sweep(ctx, "")
}

// Cleanup drops every entry except the current version's.
func (a *AdminController) Cleanup(ctx *gin.Context) {
	a.sweep(ctx, a.media.CurrentKey())
}

func (a *AdminController) sweep(ctx *gin.Context, keep string) {
	res := utils.CleanupStaleKeys(ctx.Request.Context(), a.kv, utils.CacheKeyPrefix, keep)
	res.Log(a.logger.With(zap.String("subject", ctx.GetString(middleware.ContextSubjectKey))))
	if res.Err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, utils.MsgCacheUnavailable)
		return
	}
	utils.Success(ctx, res)
}
