package data

import (
	"neurocopilot/cmd/conversation-service/internal/domain"

	"gorm.io/gorm"
)

// Store 对话存储适配器，组合五个集合的仓储
type Store struct {
	*MessageRepository
	*SettingsRepository
	*MemoryRepository
	*SummaryRepository
	*SourcesRepository
}

var _ domain.ConversationStore = (*Store)(nil)

// StoreConfig 存储适配器配置
type StoreConfig struct {
	MaxHistoryMessages int `mapstructure:"max_history_messages"`
}

// NewStore 创建对话存储适配器
func NewStore(db *gorm.DB, c *StoreConfig) *Store {
	return &Store{
		MessageRepository:  NewMessageRepository(db, c.MaxHistoryMessages),
		SettingsRepository: NewSettingsRepository(db),
		MemoryRepository:   NewMemoryRepository(db),
		SummaryRepository:  NewSummaryRepository(db),
		SourcesRepository:  NewSourcesRepository(db),
	}
}
