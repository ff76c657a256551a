package data

import (
	"fmt"

	"neurocopilot/pkg/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewDB 创建数据库连接并迁移表结构
func NewDB(config *database.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.NewDB(config, logger.Named("database"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	if err := AutoMigrate(db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, cleanup, nil
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MessageDO{},
		&SettingsDO{},
		&MemoryItemDO{},
		&SummaryDO{},
		&LastSourcesDO{},
	)
}
