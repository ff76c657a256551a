package data

import (
	"context"
	"errors"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsDO 设置数据对象
type SettingsDO struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Insights  string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (SettingsDO) TableName() string {
	return "user_settings"
}

// SettingsRepository 设置仓储实现
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建设置仓储
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// UpsertSettings 按 user_id 插入或覆盖
func (r *SettingsRepository) UpsertSettings(ctx context.Context, subject int64, insights string) error {
	do := &SettingsDO{
		UserID:    subject,
		Insights:  insights,
		UpdatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"insights", "updated_at"}),
	}).Create(do).Error
	return domain.NewStorageError("settings.upsert", err)
}

// GetSettings 获取设置，不存在时返回空设置
func (r *SettingsRepository) GetSettings(ctx context.Context, subject int64) (*domain.Settings, error) {
	var do SettingsDO
	err := r.db.WithContext(ctx).Where("user_id = ?", subject).First(&do).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.Settings{Subject: subject}, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("settings.get", err)
	}
	return &domain.Settings{
		Subject:   do.UserID,
		Insights:  do.Insights,
		UpdatedAt: do.UpdatedAt,
	}, nil
}
