package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LastSourcesDO 最近引用来源
type LastSourcesDO struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Sources   string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (LastSourcesDO) TableName() string {
	return "last_sources"
}

// SourcesRepository 引用来源仓储
type SourcesRepository struct {
	db *gorm.DB
}

// NewSourcesRepository 创建引用来源仓储
func NewSourcesRepository(db *gorm.DB) *SourcesRepository {
	return &SourcesRepository{db: db}
}

// SaveLastSources 覆盖保存
func (r *SourcesRepository) SaveLastSources(ctx context.Context, subject int64, citations []domain.Citation) error {
	payload, err := json.Marshal(citations)
	if err != nil {
		return domain.NewStorageError("sources.save", err)
	}
	do := &LastSourcesDO{
		UserID:    subject,
		Sources:   string(payload),
		UpdatedAt: time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sources", "updated_at"}),
	}).Create(do).Error
	return domain.NewStorageError("sources.save", err)
}

// GetLastSources 读取，损坏的 JSON 视为空
func (r *SourcesRepository) GetLastSources(ctx context.Context, subject int64) ([]domain.Citation, error) {
	var do LastSourcesDO
	err := r.db.WithContext(ctx).Where("user_id = ?", subject).First(&do).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("sources.get", err)
	}

	var citations []domain.Citation
	if err := json.Unmarshal([]byte(do.Sources), &citations); err != nil {
		return nil, nil
	}
	return citations, nil
}
