package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiko/mediacache/models"
	"github.com/tiko/mediacache/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	mu    sync.Mutex
	items []models.MediaItem
	err   error
	calls int
}

func (f *fakeSource) ListPublic(_ context.Context) ([]models.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.MediaItem(nil), f.items...), nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyKV fails selected operations on top of an in-memory store.
type flakyKV struct {
	*utils.MemoryKV
	getErr error
	setErr error
	sets   map[string]time.Duration
}

func newFlakyKV() *flakyKV {
	return &flakyKV{MemoryKV: utils.NewMemoryKV(), sets: map[string]time.Duration{}}
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets[key] = ttl
	return f.MemoryKV.Set(ctx, key, value, ttl)
}

func (f *flakyKV) keys(t *testing.T) []string {
	t.Helper()
	keys, err := f.MemoryKV.Keys(context.Background(), "")
	require.NoError(t, err)
	return keys
}

func (f *flakyKV) value(t *testing.T, key string) string {
	t.Helper()
	b, ok, err := f.MemoryKV.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "expected key %s", key)
	return string(b)
}

type harness struct {
	source *fakeSource
	kv     *flakyKV
	now    time.Time
	media  *MediaController
	engine *gin.Engine
}

func newHarness(t *testing.T, version string, items ...models.MediaItem) *harness {
	t.Helper()
	h := &harness{
		source: &fakeSource{items: items},
		kv:     newFlakyKV(),
		now:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	h.media = NewMediaController(h.source, h.kv, zap.NewNop(), version, 0,
		WithClock(func() time.Time { return h.now }),
		WithCleanupRunner(func(fn func()) { fn() }),
	)
	h.engine = gin.New()
	h.engine.Any("/", h.media.CORS(), h.media.Handle)
	return h
}

func (h *harness) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func item(id string, createdAt time.Time, private bool) models.MediaItem {
	return models.MediaItem{
		ID:          id,
		Filename:    id + ".png",
		FileSize:    100,
		MimeType:    "image/png",
		IsPrivate:   private,
		OriginalURL: "https://media.example.com/" + id + ".png",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.CachedMediaResponse {
	t.Helper()
	var out models.CachedMediaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func assertCORS(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestUnsupportedMethods(t *testing.T) {
	h := newHarness(t, "v1")
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			w := h.do(method, "/")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			if method != http.MethodHead {
				assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
			}
			assertCORS(t, w)
		})
	}
	assert.Zero(t, h.source.Calls())
	assert.Empty(t, h.kv.keys(t))
}

func TestOptionsPreflight(t *testing.T) {
	h := newHarness(t, "v1")
	w := h.do(http.MethodOptions, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assertCORS(t, w)
	assert.Zero(t, h.source.Calls())
}

func TestMissThenHit(t *testing.T) {
	base := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, "2024-01-01", item("a", base, false), item("b", base.Add(time.Hour), false))

	first := h.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(HeaderCacheStatus))
	assert.Equal(t, "2024-01-01", first.Header().Get(HeaderDeploymentVersion))
	assert.Equal(t, "application/json", first.Header().Get("Content-Type"))
	assertCORS(t, first)

	second := h.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(HeaderCacheStatus))
	assert.Equal(t, "2024-01-01", second.Header().Get(HeaderDeploymentVersion))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assertCORS(t, second)

	assert.Equal(t, 1, h.source.Calls())
	assert.Equal(t, utils.DefaultCacheTTL, h.kv.sets["public-media-2024-01-01"])

	out := decode(t, first)
	assert.Equal(t, "2024-01-01", out.DeploymentVersion)
	assert.True(t, h.now.Equal(out.CachedAt))
	require.Len(t, out.Media, 2)
	assert.Equal(t, "b", out.Media[0].ID)
	assert.Equal(t, "a", out.Media[1].ID)
}

func TestHitReturnsStoredBytesVerbatim(t *testing.T) {
	h := newHarness(t, "v9")
	stored := `{"media":[],  "cachedAt":"2020-02-02T00:00:00Z","deploymentVersion":"v9","extra":true}`
	require.NoError(t, h.kv.MemoryKV.Set(context.Background(), "public-media-v9", []byte(stored), time.Hour))

	w := h.do(http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get(HeaderCacheStatus))
	assert.Equal(t, stored, w.Body.String())
	assert.Zero(t, h.source.Calls())
}

func TestRefreshBypassesAndOverwritesCache(t *testing.T) {
	h := newHarness(t, "v9", item("fresh", time.Now(), false))
	require.NoError(t, h.kv.MemoryKV.Set(context.Background(), "public-media-v9", []byte(`{"stale":true}`), time.Hour))

	w := h.do(http.MethodGet, "/?refresh=true")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get(HeaderCacheStatus))
	assert.Equal(t, 1, h.source.Calls())
	assert.Equal(t, w.Body.String(), h.kv.value(t, "public-media-v9"))
	assert.Equal(t, "fresh", decode(t, w).Media[0].ID)
}

func TestRefreshRequiresLiteralTrue(t *testing.T) {
	h := newHarness(t, "v9")
	require.NoError(t, h.kv.MemoryKV.Set(context.Background(), "public-media-v9", []byte(`{"media":[]}`), time.Hour))

	for _, q := range []string{"?refresh=1", "?refresh=TRUE", "?refresh=", "?refresh=yes"} {
		w := h.do(http.MethodGet, "/"+q)
		assert.Equal(t, "HIT", w.Header().Get(HeaderCacheStatus), q)
	}
	assert.Zero(t, h.source.Calls())
}

func TestPrivateItemsNeverReturned(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, "2024-01-01",
		item("pub-1", base, false),
		item("priv-1", base.Add(time.Minute), true),
		item("pub-2", base.Add(2*time.Minute), false),
		item("priv-2", base.Add(3*time.Minute), true),
		item("pub-3", base.Add(4*time.Minute), false),
	)

	w := h.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	require.Len(t, out.Media, 3)
	for _, it := range out.Media {
		assert.False(t, it.IsPrivate, it.ID)
	}
	assert.Equal(t, "pub-3", out.Media[0].ID)
	assert.Equal(t, "pub-2", out.Media[1].ID)
	assert.Equal(t, "pub-1", out.Media[2].ID)
	assert.NotContains(t, w.Body.String(), `"is_private":true`)
}

func TestRepeatedRefreshIsStableForUnchangedData(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, "v1", item("x", base, false), item("y", base.Add(time.Hour), false))

	first := decode(t, h.do(http.MethodGet, "/?refresh=true"))
	second := decode(t, h.do(http.MethodGet, "/?refresh=true"))
	assert.Equal(t, first.Media, second.Media)
}

func TestBackendFailureLeavesCacheUntouched(t *testing.T) {
	h := newHarness(t, "v2")
	h.source.err = errors.New("dial tcp 10.0.0.9:3306: connection refused")
	require.NoError(t, h.kv.MemoryKV.Set(context.Background(), "public-media-v1", []byte("old"), time.Hour))

	w := h.do(http.MethodGet, "/")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch media"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "10.0.0.9")
	assertCORS(t, w)
	assert.Equal(t, []string{"public-media-v1"}, h.kv.keys(t))
	assert.Empty(t, h.kv.sets)
}

func TestBackendFailureOnRefreshKeepsExistingEntry(t *testing.T) {
	h := newHarness(t, "v2")
	h.source.err = errors.New("timeout")
	require.NoError(t, h.kv.MemoryKV.Set(context.Background(), "public-media-v2", []byte("current"), time.Hour))

	w := h.do(http.MethodGet, "/?refresh=true")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "current", h.kv.value(t, "public-media-v2"))
}

func TestCacheReadFailureFallsThrough(t *testing.T) {
	h := newHarness(t, "v3", item("a", time.Now(), false))
	h.kv.getErr = errors.New("redis: connection pool timeout")

	w := h.do(http.MethodGet, "/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get(HeaderCacheStatus))
	assert.Equal(t, 1, h.source.Calls())
}

func TestCacheWriteFailureStillResponds(t *testing.T) {
	h := newHarness(t, "v3", item("a", time.Now(), false))
	h.kv.setErr = errors.New("OOM command not allowed")

	w := h.do(http.MethodGet, "/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get(HeaderCacheStatus))
	assert.Len(t, decode(t, w).Media, 1)
	assert.Empty(t, h.kv.keys(t))
}

func TestMissRemovesOtherVersions(t *testing.T) {
	h := newHarness(t, "v5", item("a", time.Now(), false))
	ctx := context.Background()
	for _, k := range []string{"public-media-v3", "public-media-v4", "sessions-1"} {
		require.NoError(t, h.kv.MemoryKV.Set(ctx, k, []byte(k), time.Hour))
	}

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/").Code)

	assert.Equal(t, []string{"public-media-v5", "sessions-1"}, h.kv.keys(t))
}

func TestVersionChangeForcesMiss(t *testing.T) {
	h := newHarness(t, "", item("a", time.Now(), false))
	h.now = time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)

	first := h.do(http.MethodGet, "/")
	assert.Equal(t, "MISS", first.Header().Get(HeaderCacheStatus))
	assert.Equal(t, "2024-01-01", first.Header().Get(HeaderDeploymentVersion))
	assert.Equal(t, "HIT", h.do(http.MethodGet, "/").Header().Get(HeaderCacheStatus))

	// Two hours later the 24h entry is still alive, but the date fallback rolled over.
	h.now = h.now.Add(2 * time.Hour)
	second := h.do(http.MethodGet, "/")
	assert.Equal(t, "MISS", second.Header().Get(HeaderCacheStatus))
	assert.Equal(t, "2024-01-02", second.Header().Get(HeaderDeploymentVersion))
	assert.Equal(t, 2, h.source.Calls())

	assert.Equal(t, []string{"public-media-2024-01-02"}, h.kv.keys(t))
}

func TestConfiguredVersionWinsOverDate(t *testing.T) {
	h := newHarness(t, "release-42")
	w := h.do(http.MethodGet, "/")
	assert.Equal(t, "release-42", w.Header().Get(HeaderDeploymentVersion))
	assert.Equal(t, "public-media-release-42", h.media.CurrentKey())
	assert.Equal(t, `[]`, string(mustRaw(t, w.Body.Bytes(), "media")))
}

func mustRaw(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	return raw[field]
}

func TestConcurrentColdMisses(t *testing.T) {
	h := newHarness(t, "v1", item("a", time.Now(), false))
	// Default runner: cleanup in goroutines, as in production.
	h.media.runCleanup = func(fn func()) { go fn() }
	kv := utils.NewMemoryKV()
	h.media.kv = kv

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := h.do(http.MethodGet, "/")
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		keys, _ := kv.Keys(context.Background(), utils.CacheKeyPrefix)
		return len(keys) == 1 && keys[0] == "public-media-v1"
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, h.source.Calls(), 1)
}
