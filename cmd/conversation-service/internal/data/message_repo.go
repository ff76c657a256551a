package data

import (
	"context"
	"slices"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
)

// DefaultMaxHistoryMessages 默认读取的最大消息数
const DefaultMaxHistoryMessages = 10000

// MessageDO 消息数据对象
type MessageDO struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"index:idx_chat_history_user_ts,priority:1;not null"`
	Role      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index:idx_chat_history_user_ts,priority:2;not null"`
	CreatedAt time.Time
}

// TableName 指定表名
func (MessageDO) TableName() string {
	return "chat_history"
}

// MessageRepository 消息仓储实现
type MessageRepository struct {
	db         *gorm.DB
	maxHistory int
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(db *gorm.DB, maxHistory int) *MessageRepository {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryMessages
	}
	return &MessageRepository{
		db:         db,
		maxHistory: maxHistory,
	}
}

// AppendMessage 追加消息
func (r *MessageRepository) AppendMessage(ctx context.Context, subject int64, message *domain.Message) error {
	if !message.Role.Valid() {
		return domain.ErrInvalidMessageRole
	}
	do := r.toDataObject(subject, message)
	if err := r.db.WithContext(ctx).Create(do).Error; err != nil {
		return domain.NewStorageError("messages.append", err)
	}
	message.ID = int64(do.ID)
	return nil
}

// ListMessages 取最新的 maxHistory 条，按时间升序返回
func (r *MessageRepository) ListMessages(ctx context.Context, subject int64) ([]*domain.Message, error) {
	var dos []MessageDO
	err := r.db.WithContext(ctx).
		Where("user_id = ?", subject).
		Order("timestamp DESC").Order("id DESC").
		Limit(r.maxHistory).
		Find(&dos).Error
	if err != nil {
		return nil, domain.NewStorageError("messages.list", err)
	}

	slices.Reverse(dos)
	messages := make([]*domain.Message, len(dos))
	for i := range dos {
		messages[i] = r.toDomain(&dos[i])
	}
	return messages, nil
}

// DeleteMessagesThrough 按 (timestamp, id) 删除到 last 为止的消息，同一时间戳内以行号区分
func (r *MessageRepository) DeleteMessagesThrough(ctx context.Context, subject int64, last *domain.Message) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", subject).
		Where("timestamp < ? OR (timestamp = ? AND id <= ?)", last.Timestamp, last.Timestamp, last.ID).
		Delete(&MessageDO{})
	if result.Error != nil {
		return 0, domain.NewStorageError("messages.delete_through", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearMessages 清空消息
func (r *MessageRepository) ClearMessages(ctx context.Context, subject int64) error {
	err := r.db.WithContext(ctx).Where("user_id = ?", subject).Delete(&MessageDO{}).Error
	return domain.NewStorageError("messages.clear", err)
}

// toDataObject 转换为数据对象
func (r *MessageRepository) toDataObject(subject int64, m *domain.Message) *MessageDO {
	return &MessageDO{
		UserID:    subject,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

// toDomain 转换为领域对象
func (r *MessageRepository) toDomain(do *MessageDO) *domain.Message {
	return &domain.Message{
		ID:        int64(do.ID),
		Role:      domain.MessageRole(do.Role),
		Content:   do.Content,
		Timestamp: do.Timestamp,
	}
}
