package domain

import "time"

// 事件类型
const (
	EventTurnCompleted       = "turn.completed"
	EventContextCompressed   = "context.compressed"
	EventCompressionFallback = "context.compression_fallback"
)

// TurnEvent 一轮对话完成
type TurnEvent struct {
	EventType  string    `json:"event_type"`
	Subject    int64     `json:"subject"`
	Identity   string    `json:"account"`
	Citations  int       `json:"citations"`
	Compressed bool      `json:"compressed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CompressionEvent 上下文压缩完成
type CompressionEvent struct {
	EventType          string    `json:"event_type"`
	Subject            int64     `json:"subject"`
	MessagesCompressed int       `json:"messages_compressed"`
	TokensBefore       int       `json:"tokens_before"`
	TokensAfter        int       `json:"tokens_after"`
	FactsExtracted     int       `json:"facts_extracted"`
	OccurredAt         time.Time `json:"occurred_at"`
}
