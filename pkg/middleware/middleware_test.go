package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateLimiter_PerParam(t *testing.T) {
	mr, client := setupRedis(t)

	r := gin.New()
	r.POST("/subjects/:subject/turns",
		RateLimiter(client, RateLimiterConfig{MaxRequests: 2, Window: time.Minute}, ByParam("subject"), zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	do := func(subject string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subjects/"+subject+"/turns", nil))
		return w
	}

	assert.Equal(t, http.StatusOK, do("1").Code)
	w := do("1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")

	// 其他主体不受影响
	assert.Equal(t, http.StatusOK, do("2").Code)
	assert.Equal(t, time.Minute, mr.TTL("rate_limit:1"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do("1").Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	r := gin.New()
	r.GET("/x", RateLimiter(client, RateLimiterConfig{MaxRequests: 1}, nil, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	_, client := setupRedis(t)

	var calls atomic.Int32
	r := gin.New()
	r.POST("/import", Idempotency(client, IdempotencyConfig{}, zap.NewNop()), func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusOK, gin.H{"call": n})
	})

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/import", nil)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("k1")
	second := do("k1")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, int32(1), calls.Load())

	do("k2")
	do("")
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotency_DoesNotCacheFailures(t *testing.T) {
	_, client := setupRedis(t)

	var calls atomic.Int32
	r := gin.New()
	r.POST("/turns", Idempotency(client, IdempotencyConfig{}, zap.NewNop()), func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusServiceUnavailable)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/turns", nil)
		req.Header.Set(IdempotencyKeyHeader, "same")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_LockCoversRequest(t *testing.T) {
	mr, client := setupRedis(t)

	var lockTTL time.Duration
	r := gin.New()
	r.POST("/turns", Idempotency(client, IdempotencyConfig{LockTTL: 11 * time.Minute}, zap.NewNop()), func(c *gin.Context) {
		for _, k := range mr.Keys() {
			if strings.HasSuffix(k, ":lock") {
				lockTTL = mr.TTL(k)
			}
		}
		// 处理中的同键请求被拒绝
		req := httptest.NewRequest(http.MethodPost, "/turns", nil)
		req.Header.Set(IdempotencyKeyHeader, "slow")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)

		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/turns", nil)
	req.Header.Set(IdempotencyKeyHeader, "slow")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 11*time.Minute, lockTTL)
}
