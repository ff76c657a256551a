package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	Source   string `mapstructure:"source"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	LogLevel string `mapstructure:"log_level"` // silent | error | warn | info

	// 连接池配置
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // 最大空闲连接数，默认10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // 最大打开连接数，默认100
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期，默认1小时
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // 连接最大空闲时间，默认15分钟

	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"` // 健康检查超时，默认5秒
}

// DSN 返回连接串，Source 优先
func (c *Config) DSN() string {
	if c.Source != "" {
		return c.Source
	}
	if c.Driver == "sqlite" {
		return "file::memory:?cache=shared"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// Dialector 根据驱动选择 gorm 方言
func (c *Config) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case "postgres", "":
		return postgres.Open(c.DSN()), nil
	case "sqlite":
		return sqlite.Open(c.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

func (c *Config) gormLogLevel() gormLogger.LogLevel {
	switch c.LogLevel {
	case "silent":
		return gormLogger.Silent
	case "error":
		return gormLogger.Error
	case "info":
		return gormLogger.Info
	default:
		return gormLogger.Warn
	}
}

// NewDB 创建数据库连接
func NewDB(c *Config, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := c.Dialector()
	if err != nil {
		return nil, err
	}

	// 不记录密码
	logger.Info("connecting to database",
		zap.String("driver", c.Driver),
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.String("database", c.Database),
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(c.gormLogLevel()),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		logger.Error("failed to connect database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxIdleConns := c.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 10
	}
	maxOpenConns := c.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 100
	}
	connMaxLifetime := c.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = time.Hour
	}
	connMaxIdleTime := c.ConnMaxIdleTime
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 15 * time.Minute
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	healthCheckTimeout := c.HealthCheckTimeout
	if healthCheckTimeout == 0 {
		healthCheckTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	logger.Info("database connected",
		zap.Int("max_idle", maxIdleConns),
		zap.Int("max_open", maxOpenConns),
		zap.Duration("max_lifetime", connMaxLifetime),
	)
	return db, nil
}
