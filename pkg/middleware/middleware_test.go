package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"VocalForge/pkg/cache"
	"VocalForge/pkg/constants"
	"VocalForge/pkg/i18n"
	"VocalForge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingObserver struct {
	mu            sync.Mutex
	allow, denied int
}

func (o *countingObserver) OnAllow(route, key string) { o.mu.Lock(); o.allow++; o.mu.Unlock() }
func (o *countingObserver) OnDeny(route, key string)  { o.mu.Lock(); o.denied++; o.mu.Unlock() }

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterDeniesAfterLimit(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: "2-M", AddHeaders: true, SkipPaths: []string{"/health"}}, nil)
	require.NoError(t, err)
	obs := &countingObserver{}
	rl.WithObserver(obs)

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", nil).Code)
	w := do(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", nil).Code)
	}
	assert.Equal(t, 2, obs.allow)
	assert.Equal(t, 1, obs.denied)
}

func TestRateLimiterPerUser(t *testing.T) {
	rl, err := NewRateLimiter(RateLimiterConfig{
		Name: "compose", Rate: "1-M", Identifier: "user",
		UserID: func(c *gin.Context) string { return c.GetHeader("X-User") },
	}, nil)
	require.NoError(t, err)
	r := gin.New()
	r.POST("/c", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/c", map[string]string{"X-User": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/c", map[string]string{"X-User": "a"}).Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/c", map[string]string{"X-User": "b"}).Code)
}

func TestRateLimiterRejectsBadRate(t *testing.T) {
	_, err := NewRateLimiter(RateLimiterConfig{Rate: "lots"}, nil)
	assert.Error(t, err)
}

func TestIdempotency(t *testing.T) {
	store := cache.NewLocalCache(cache.DefaultLocalConfig())
	defer store.Close()

	status := http.StatusCreated
	r := gin.New()
	r.POST("/g", IdempotencyMiddleware(store, IdempotencyConfig{}), func(c *gin.Context) { c.Status(status) })

	key := map[string]string{"Idempotency-Key": "k1"}
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/g", key).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/g", key).Code)

	// 无幂等键不做去重
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/g", nil).Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/g", nil).Code)

	// 失败的请求可重试
	status = http.StatusPaymentRequired
	k2 := map[string]string{"Idempotency-Key": "k2"}
	assert.Equal(t, http.StatusPaymentRequired, do(r, http.MethodPost, "/g", k2).Code)
	status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/g", k2).Code)
}

type failingDelete struct {
	cache.Cache
}

func (failingDelete) Delete(ctx context.Context, key string) error {
	return errors.New("redis: connection refused")
}

func TestIdempotencyLogsReleaseFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })

	store := failingDelete{cache.NewLocalCache(cache.DefaultLocalConfig())}
	r := gin.New()
	r.POST("/g", IdempotencyMiddleware(store, IdempotencyConfig{}), func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/g", map[string]string{"Idempotency-Key": "k1"}).Code)

	entries := logs.FilterMessage("idempotency key release failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "redis: connection refused", entries[0].ContextMap()["error"])
}

func TestLanguageMiddleware(t *testing.T) {
	support, err := i18n.NewI18nSupport("en")
	require.NoError(t, err)

	r := gin.New()
	r.Use(LanguageMiddleware(support))
	r.GET("/l", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(constants.LangField)) })

	assert.Equal(t, "zh", do(r, http.MethodGet, "/l?lang=zh", nil).Body.String())
	assert.Equal(t, "zh", do(r, http.MethodGet, "/l", map[string]string{"Accept-Language": "zh-CN,zh;q=0.9"}).Body.String())
	assert.Equal(t, "en", do(r, http.MethodGet, "/l?lang=xx", nil).Body.String())
	assert.Equal(t, "en", do(r, http.MethodGet, "/l", nil).Body.String())
}

func TestAuditorRecordsWrites(t *testing.T) {
	var got []*AuditRecord
	a := NewAuditor(AuditConfig{
		UserID: func(c *gin.Context) string { return "u1" },
	}, AuditWriterFunc(func(rec *AuditRecord) error {
		got = append(got, rec)
		return nil
	}))
	defer a.Close()

	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/r/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	do(r, http.MethodGet, "/r", nil)
	do(r, http.MethodDelete, "/r/9", map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "/r/:id", got[0].Path)
	assert.Equal(t, http.StatusOK, got[0].Status)
	assert.Contains(t, got[0].Browser, "Chrome")
	assert.Empty(t, got[0].Location)
}
