package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyTTL            = 120 * time.Second
	DefaultIdempotencyLockTTL = 5 * time.Minute
)

// IdempotencyConfig 幂等配置
type IdempotencyConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	// LockTTL 处理中锁的存活时间，不应短于请求超时
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// Idempotency 带 Idempotency-Key 的请求只执行一次，成功响应在 TTL 内重放
func Idempotency(client *redis.Client, config IdempotencyConfig, logger *zap.Logger) gin.HandlerFunc {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "idempotency"
	}
	if config.TTL <= 0 {
		config.TTL = IdempotencyTTL
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultIdempotencyLockTTL
	}

	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		hash := sha256.Sum256([]byte(c.Request.Method + ":" + c.Request.URL.Path + ":" + idempotencyKey))
		key := config.KeyPrefix + ":" + hex.EncodeToString(hash[:])
		lockKey := key + ":lock"
		ctx := c.Request.Context()

		cached, err := client.Get(ctx, key).Bytes()
		if err == nil {
			c.Header("X-Idempotency-Replayed", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}
		if err != redis.Nil {
			logger.Warn("idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		}

		locked, err := client.SetNX(ctx, lockKey, "1", config.LockTTL).Result()
		if err != nil {
			logger.Warn("idempotency lock failed", zap.Error(err))
			c.Next()
			return
		}
		if !locked {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    http.StatusConflict,
				"message": "request is being processed",
			})
			return
		}

		writer := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		// 请求已结束，不再受其 context 取消影响
		bg := context.WithoutCancel(ctx)
		if status := writer.Status(); status >= 200 && status < 300 {
			if err := client.Set(bg, key, writer.body, config.TTL).Err(); err != nil {
				logger.Warn("idempotency store failed", zap.Error(err))
			}
		}
		client.Del(bg, lockKey)
	}
}

type bodyCapture struct {
	gin.ResponseWriter
	body []byte
}

func (w *bodyCapture) Write(data []byte) (int, error) {
	w.body = append(w.body, data...)
	return w.ResponseWriter.Write(data)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
