package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyFunc 从请求中取限流维度，返回空串时不限流
type KeyFunc func(c *gin.Context) string

// RateLimiterConfig 固定窗口限流配置
type RateLimiterConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// ByClientIP 按客户端 IP 限流
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByParam 按路径参数限流
func ByParam(name string) KeyFunc {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}

// RateLimiter 基于 Redis INCR 的固定窗口限流中间件。Redis 出错时放行。
func RateLimiter(client *redis.Client, config RateLimiterConfig, keyFunc KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if keyFunc == nil {
		keyFunc = ByClientIP
	}
	limit := strconv.Itoa(config.MaxRequests)

	return func(c *gin.Context) {
		dim := keyFunc(c)
		if dim == "" {
			c.Next()
			return
		}
		key := config.KeyPrefix + ":" + dim
		ctx := c.Request.Context()

		n, err := client.Incr(ctx, key).Result()
		if err == nil && n == 1 {
			// 窗口从第一次请求开始
			err = client.Expire(ctx, key, config.Window).Err()
		}
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		count := int(n)
		reset := strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10)
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Reset", reset)

		if count > config.MaxRequests {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(config.MaxRequests-count))
		c.Next()
	}
}
