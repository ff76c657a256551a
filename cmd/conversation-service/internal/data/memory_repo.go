package data

import (
	"context"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
)

// MemoryItemDO 长期记忆数据对象
type MemoryItemDO struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"index:idx_long_term_memory_user_type,priority:1;not null"`
	Type      string `gorm:"index:idx_long_term_memory_user_type,priority:2;size:16;not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// TableName 指定表名
func (MemoryItemDO) TableName() string {
	return "long_term_memory"
}

// MemoryRepository 长期记忆仓储实现
type MemoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository 创建记忆仓储
func NewMemoryRepository(db *gorm.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// AddMemoryItem 先查重再插入。并发写入者之间存在竞争窗口，可能产生重复条目
func (r *MemoryRepository) AddMemoryItem(ctx context.Context, subject int64, kind domain.MemoryKind, text string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&MemoryItemDO{}).
		Where("user_id = ? AND type = ? AND content = ?", subject, string(kind), text).
		Count(&count).Error
	if err != nil {
		return false, domain.NewStorageError("memory.lookup", err)
	}
	if count > 0 {
		return false, nil
	}

	do := &MemoryItemDO{
		UserID:  subject,
		Type:    string(kind),
		Content: text,
	}
	if err := r.db.WithContext(ctx).Create(do).Error; err != nil {
		return false, domain.NewStorageError("memory.add", err)
	}
	return true, nil
}

// ListMemoryItems 按类型分组
func (r *MemoryRepository) ListMemoryItems(ctx context.Context, subject int64) (*domain.Memory, error) {
	var dos []MemoryItemDO
	err := r.db.WithContext(ctx).
		Where("user_id = ?", subject).
		Order("created_at ASC").Order("id ASC").
		Find(&dos).Error
	if err != nil {
		return nil, domain.NewStorageError("memory.list", err)
	}

	memory := &domain.Memory{}
	for _, do := range dos {
		memory.Add(domain.MemoryKind(do.Type), do.Content)
	}
	return memory, nil
}

// ClearMemoryItems 清空记忆
func (r *MemoryRepository) ClearMemoryItems(ctx context.Context, subject int64) error {
	err := r.db.WithContext(ctx).Where("user_id = ?", subject).Delete(&MemoryItemDO{}).Error
	return domain.NewStorageError("memory.clear", err)
}
