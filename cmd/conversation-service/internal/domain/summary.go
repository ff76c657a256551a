package domain

import "time"

// SummaryRecord 压缩事件审计记录，只追加不修改
type SummaryRecord struct {
	Subject            int64
	Summary            string
	MessagesCompressed int
	CreatedAt          time.Time
}

// CompressionResult 一次压缩检查的结果
type CompressionResult struct {
	Compressed     bool `json:"compressed"` // 是否执行了压缩
	TokensBefore   int  `json:"tokens_before"`
	TokensAfter    int  `json:"tokens_after"`
	TokensFreed    int  `json:"tokens_freed"`
	FactsExtracted int  `json:"facts_extracted"` // 新写入的记忆条目数
	UsedFallback   bool `json:"used_fallback"`   // 摘要模型不可用，使用了机械摘要
	MessagesBefore int  `json:"messages_before"`
	MessagesAfter  int  `json:"messages_after"`
}

// ContextStats 上下文占用统计
type ContextStats struct {
	Tokens         int `json:"tokens"`
	Percent        int `json:"percent"`
	HistoryTokens  int `json:"history_tokens"`
	SystemTokens   int `json:"system_tokens"`
	InsightsTokens int `json:"insights_tokens"`
	MessageCount   int `json:"message_count"`
	SummaryCount   int `json:"summary_count"`
}

// Settings 主体设置，每个主体一行
type Settings struct {
	Subject   int64
	Insights  string
	UpdatedAt time.Time
}

// MemoryDump 导出/导入的记忆快照
type MemoryDump struct {
	History  []*Message `json:"history,omitempty"`
	Insights string     `json:"insights,omitempty"`
	Memory   *Memory    `json:"memory,omitempty"`
}
