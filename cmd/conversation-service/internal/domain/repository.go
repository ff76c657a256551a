package domain

import (
	"context"
	"time"
)

// MessageRepository 消息日志仓储
type MessageRepository interface {
	// AppendMessage 追加消息，时间戳由调用方保证递增
	AppendMessage(ctx context.Context, subject int64, message *Message) error

	// ListMessages 按时间升序列出消息，超过上限时丢弃最旧的
	ListMessages(ctx context.Context, subject int64) ([]*Message, error)

	// DeleteMessagesThrough 删除 (timestamp, id) 不晚于 last 的消息，重复删除是空操作
	DeleteMessagesThrough(ctx context.Context, subject int64, last *Message) (int64, error)

	// ClearMessages 清空消息
	ClearMessages(ctx context.Context, subject int64) error
}

// SettingsRepository 设置仓储
type SettingsRepository interface {
	UpsertSettings(ctx context.Context, subject int64, insights string) error
	GetSettings(ctx context.Context, subject int64) (*Settings, error)
}

// MemoryRepository 长期记忆仓储
type MemoryRepository interface {
	// AddMemoryItem 先查重再插入，已存在时返回 false
	AddMemoryItem(ctx context.Context, subject int64, kind MemoryKind, text string) (bool, error)

	// ListMemoryItems 按类型分组返回，组内按插入顺序
	ListMemoryItems(ctx context.Context, subject int64) (*Memory, error)

	ClearMemoryItems(ctx context.Context, subject int64) error
}

// SummaryRepository 压缩摘要仓储
type SummaryRepository interface {
	AppendSummaryRecord(ctx context.Context, record *SummaryRecord) error
	ListSummaries(ctx context.Context, subject int64) ([]*SummaryRecord, error)
	ClearSummaries(ctx context.Context, subject int64) error
}

// SourcesRepository 最近一次回答的引用来源
type SourcesRepository interface {
	SaveLastSources(ctx context.Context, subject int64, citations []Citation) error
	GetLastSources(ctx context.Context, subject int64) ([]Citation, error)
}

// ConversationStore 对话存储适配器
type ConversationStore interface {
	MessageRepository
	SettingsRepository
	MemoryRepository
	SummaryRepository
	SourcesRepository
}

// AccountStateStore 账号池共享状态
type AccountStateStore interface {
	// LoadAccounts 读取账号列表
	LoadAccounts(ctx context.Context) ([]*Account, error)

	// SaveAccounts 覆盖账号列表
	SaveAccounts(ctx context.Context, accounts []*Account) error

	// SelectAccount 原子地从游标开始选出 now 时刻可用的账号并推进游标，
	// 全部限流时返回最早恢复的账号，游标不动
	SelectAccount(ctx context.Context, now time.Time) (*AccountSelection, error)

	// RateLimitedUntil 返回各账号的不可用截止时间，未设置的不在结果中
	RateLimitedUntil(ctx context.Context, identities []string) (map[string]time.Time, error)

	// MarkRateLimited 设置不可用截止时间，键随截止时间过期
	MarkRateLimited(ctx context.Context, identity string, until time.Time, ttl time.Duration) error
}

// AccountSelection 一次选择的结果，池为空时 Account 为 nil
type AccountSelection struct {
	Account  *Account
	Index    int
	Degraded bool // 全部限流，返回的是最早恢复的账号
}
