package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal 对话轮次总数
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_turns_total",
		Help: "Total number of conversational turns",
	}, []string{"outcome"})

	// TurnDuration 对话轮次耗时
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copilot_turn_duration_seconds",
		Help:    "Conversational turn duration in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	// ModelAttemptsTotal 模型请求尝试次数
	ModelAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_model_attempts_total",
		Help: "Total number of upstream generation attempts",
	}, []string{"outcome"})

	// ModelRequestDuration 单次模型请求耗时
	ModelRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copilot_model_request_duration_seconds",
		Help:    "Upstream generation request duration in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	})

	// AccountSelectionsTotal 账号选择结果
	AccountSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_account_selections_total",
		Help: "Account pool selections by result",
	}, []string{"result"})

	// AccountRateLimitMarks 账号被标记为限流的次数
	AccountRateLimitMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copilot_account_rate_limit_marks_total",
		Help: "Total number of accounts marked unavailable",
	})

	// CompressionsTotal 压缩检查结果
	CompressionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_compressions_total",
		Help: "Context compression checks by outcome",
	}, []string{"outcome"})

	// CompressionTokensFreed 每次压缩释放的 token 数
	CompressionTokensFreed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copilot_compression_tokens_freed",
		Help:    "Estimated tokens freed per compression",
		Buckets: prometheus.ExponentialBuckets(10000, 2, 8),
	})

	// MemoryItemsStored 新写入的长期记忆条目
	MemoryItemsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_memory_items_stored_total",
		Help: "Structured memory items newly stored",
	}, []string{"source", "kind"})
)

// 标签取值
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeCredential  = "credential"
	OutcomeTransient   = "transient"
	OutcomeError       = "error"

	SelectionAvailable = "available"
	SelectionDegraded  = "degraded"
	SelectionEmpty     = "empty"

	CompressionSkipped  = "skipped"
	CompressionTooFew   = "too_few_messages"
	CompressionDone     = "compressed"
	CompressionFallback = "fallback"
	CompressionFailed   = "failed"

	SourceCompression = "compression"
	SourceInline      = "inline"
	SourceManual      = "manual"
	SourceImport      = "import"
)
