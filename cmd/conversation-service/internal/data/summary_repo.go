package data

import (
	"context"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
)

// SummaryDO 压缩摘要数据对象
type SummaryDO struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	UserID             int64  `gorm:"index;not null"`
	Summary            string `gorm:"type:text"`
	MessagesCompressed int
	CreatedAt          time.Time
}

// TableName 指定表名
func (SummaryDO) TableName() string {
	return "chat_summaries"
}

// SummaryRepository 摘要仓储实现
type SummaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository 创建摘要仓储
func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// AppendSummaryRecord 追加摘要记录
func (r *SummaryRepository) AppendSummaryRecord(ctx context.Context, record *domain.SummaryRecord) error {
	do := &SummaryDO{
		UserID:             record.Subject,
		Summary:            record.Summary,
		MessagesCompressed: record.MessagesCompressed,
		CreatedAt:          record.CreatedAt,
	}
	return domain.NewStorageError("summaries.append", r.db.WithContext(ctx).Create(do).Error)
}

// ListSummaries 按创建时间升序
func (r *SummaryRepository) ListSummaries(ctx context.Context, subject int64) ([]*domain.SummaryRecord, error) {
	var dos []SummaryDO
	err := r.db.WithContext(ctx).
		Where("user_id = ?", subject).
		Order("created_at ASC").Order("id ASC").
		Find(&dos).Error
	if err != nil {
		return nil, domain.NewStorageError("summaries.list", err)
	}

	records := make([]*domain.SummaryRecord, len(dos))
	for i, do := range dos {
		records[i] = &domain.SummaryRecord{
			Subject:            do.UserID,
			Summary:            do.Summary,
			MessagesCompressed: do.MessagesCompressed,
			CreatedAt:          do.CreatedAt,
		}
	}
	return records, nil
}

// ClearSummaries 清空摘要
func (r *SummaryRepository) ClearSummaries(ctx context.Context, subject int64) error {
	err := r.db.WithContext(ctx).Where("user_id = ?", subject).Delete(&SummaryDO{}).Error
	return domain.NewStorageError("summaries.clear", err)
}
