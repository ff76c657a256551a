package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"neurocopilot/cmd/conversation-service/internal/service"
	"neurocopilot/pkg/health"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	readinessTimeout = 5 * time.Second
	slowDependency   = time.Second
)

// NewHealthChecker 注册数据库、Redis 和账号池检查
func NewHealthChecker(db *gorm.DB, rdb *redis.Client, svc *service.CopilotService) *health.HealthChecker {
	return health.NewHealthChecker(
		health.NewFuncChecker("database", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}, slowDependency),
		health.NewFuncChecker("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, slowDependency),
		health.NewFuncChecker("accounts", func(ctx context.Context) error {
			err := svc.CheckAccounts(ctx)
			if errors.Is(err, service.ErrAllAccountsLimited) {
				return &health.DegradedError{Reason: err.Error()}
			}
			return err
		}, 0),
	)
}

// LivenessProbe 存活检查
func LivenessProbe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    health.StatusHealthy,
			"timestamp": time.Now().Unix(),
		})
	}
}

// ReadinessProbe 就绪检查，不健康时返回 503，降级仍返回 200
func ReadinessProbe(checker *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		report := checker.Check(ctx)
		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
