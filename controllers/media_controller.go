package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tiko/mediacache/metrics"
	"github.com/tiko/mediacache/models"
	"github.com/tiko/mediacache/repository"
	"github.com/tiko/mediacache/utils"
)

const (
	HeaderCacheStatus       = "X-Cache-Status"
	HeaderDeploymentVersion = "X-Deployment-Version"

	cacheStatusHit  = "HIT"
	cacheStatusMiss = "MISS"

	cacheOpTimeout = 2 * time.Second
	cleanupTimeout = 10 * time.Second
)

// MediaController serves the public media list through a deployment scoped read-through cache.
type MediaController struct {
	source     repository.MediaSource
	kv         utils.KVStore
	logger     *zap.Logger
	version    string
	ttl        time.Duration
	now        func() time.Time
	runCleanup func(func())
}

// MediaOption customises a MediaController.
type MediaOption func(*MediaController)

// WithClock replaces the wall clock used for the date fallback version and cachedAt.
func WithClock(now func() time.Time) MediaOption {
	return func(m *MediaController) { m.now = now }
}

// WithCleanupRunner replaces how the post-miss cleanup is scheduled. The default runs it in a goroutine.
func WithCleanupRunner(run func(func())) MediaOption {
	return func(m *MediaController) { m.runCleanup = run }
}

// NewMediaController creates a new MediaController instance.
// An empty version selects the UTC date fallback; a non-positive ttl selects utils.DefaultCacheTTL.
func NewMediaController(source repository.MediaSource, kv utils.KVStore, logger *zap.Logger, version string, ttl time.Duration, opts ...MediaOption) *MediaController {
	if ttl <= 0 {
		ttl = utils.DefaultCacheTTL
	}
	m := &MediaController{
		source:     source,
		kv:         kv,
		logger:     logger,
		version:    version,
		ttl:        ttl,
		now:        time.Now,
		runCleanup: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Version is the deployment version in effect right now.
func (m *MediaController) Version() string {
	return utils.DeploymentVersion(m.version, m.now())
}

// CurrentKey is the cache key for Version.
func (m *MediaController) CurrentKey() string {
	return utils.CacheKey(m.Version())
}

// CORS marks every response of the public route as readable from any origin.
func (m *MediaController) CORS() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		ctx.Next()
	}
}

// Handle dispatches on method: GET serves the list, OPTIONS answers preflight, anything else is 405.
func (m *MediaController) Handle(ctx *gin.Context) {
	switch ctx.Request.Method {
	case http.MethodGet:
		m.serve(ctx)
	case http.MethodOptions:
		ctx.Status(http.StatusOK)
	default:
		utils.Error(ctx, http.StatusMethodNotAllowed, utils.MsgMethodNotAllowed)
	}
}

func (m *MediaController) serve(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	version := m.Version()
	key := utils.CacheKey(version)

	if ctx.Query("refresh") != "true" {
		if body, ok := m.readCache(reqCtx, key); ok {
			metrics.CacheHits.Inc()
			m.respond(ctx, body, cacheStatusHit, version)
			return
		}
	}
	metrics.CacheMisses.Inc()

	items, err := m.source.ListPublic(reqCtx)
	if err != nil {
		metrics.BackendErrors.Inc()
		m.logger.Error("failed to fetch public media", zap.String("key", key), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.MsgFetchFailed)
		return
	}

	payload := models.NewCachedMediaResponse(models.PublicNewestFirst(items), m.now(), version)
	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to encode media payload", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.MsgInternalError)
		return
	}

	m.writeCache(reqCtx, key, body)
	m.runCleanup(func() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		utils.CleanupStaleKeys(cctx, m.kv, utils.CacheKeyPrefix, key).Log(m.logger)
	})

	m.respond(ctx, body, cacheStatusMiss, version)
}

// readCache reports a hit only for a successful read; store errors count as a miss.
func (m *MediaController) readCache(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	body, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("read").Inc()
		m.logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return body, ok
}

// writeCache is best-effort and outlives a client that disconnects mid-request.
func (m *MediaController) writeCache(ctx context.Context, key string, body []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := m.kv.Set(ctx, key, body, m.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("write").Inc()
		m.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *MediaController) respond(ctx *gin.Context, body []byte, status, version string) {
	ctx.Header(HeaderCacheStatus, status)
	ctx.Header(HeaderDeploymentVersion, version)
	ctx.Data(http.StatusOK, "application/json", body)
}
