package biz

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/cmd/conversation-service/internal/metrics"
	"neurocopilot/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// compressNumerator/compressDenominator 每次压缩最旧的 70% 消息
	compressNumerator   = 7
	compressDenominator = 10

	fallbackMessages = 5
	fallbackRunes    = 200

	transcriptPlaceholder = "{{TRANSCRIPT}}"
)

//go:embed prompts/summarize.txt
var summarizePrompt string

// CompressionConfig 上下文预算配置
type CompressionConfig struct {
	MaxContextTokens   int     `mapstructure:"max_context_tokens"`
	CompressThreshold  int     `mapstructure:"compress_threshold"`
	SummaryTemperature float64 `mapstructure:"summary_temperature"`
	SummaryMaxTokens   int     `mapstructure:"summary_max_tokens"`
}

// SetDefaults 填充默认值
func (c *CompressionConfig) SetDefaults() {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 900000
	}
	if c.CompressThreshold == 0 {
		c.CompressThreshold = 800000
	}
	if c.SummaryTemperature == 0 {
		c.SummaryTemperature = 0.3
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = 8192
	}
}

// Validate 阈值必须严格小于上限
func (c *CompressionConfig) Validate() error {
	if c.CompressThreshold <= 0 || c.MaxContextTokens <= 0 {
		return fmt.Errorf("compression: thresholds must be positive")
	}
	if c.CompressThreshold >= c.MaxContextTokens {
		return fmt.Errorf("compression: compress_threshold (%d) must be below max_context_tokens (%d)",
			c.CompressThreshold, c.MaxContextTokens)
	}
	return nil
}

// EventPublisher 领域事件发布
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Compressor 超过阈值时把最旧的一段消息压缩成摘要并提取长期记忆
type Compressor struct {
	store   domain.ConversationStore
	rotator *Rotator
	events  EventPublisher
	config  *CompressionConfig
	now     func() time.Time
	logger  *zap.Logger
}

// NewCompressor 创建压缩引擎，events 可以为 nil
func NewCompressor(store domain.ConversationStore, rotator *Rotator, events EventPublisher, config *CompressionConfig, logger *zap.Logger) *Compressor {
	config.SetDefaults()
	return &Compressor{
		store:   store,
		rotator: rotator,
		events:  events,
		config:  config,
		now:     time.Now,
		logger:  logger.With(zap.String("module", "compressor")),
	}
}

// CompressCount 需要压缩的消息数 floor(0.7n)
func CompressCount(n int) int {
	return n * compressNumerator / compressDenominator
}

// MaybeCompress 检查预算，超过阈值时压缩。
// 一旦开始压缩就不再响应调用方的取消；摘要模型失败时使用机械摘要，只有存储错误会返回。
func (c *Compressor) MaybeCompress(ctx context.Context, subject int64) (*domain.CompressionResult, error) {
	history, err := c.store.ListMessages(ctx, subject)
	if err != nil {
		metrics.CompressionsTotal.WithLabelValues(metrics.CompressionFailed).Inc()
		return nil, err
	}

	before := domain.EstimateMessages(history)
	result := &domain.CompressionResult{
		TokensBefore:   before,
		TokensAfter:    before,
		MessagesBefore: len(history),
		MessagesAfter:  len(history),
	}
	if before < c.config.CompressThreshold {
		metrics.CompressionsTotal.WithLabelValues(metrics.CompressionSkipped).Inc()
		return result, nil
	}

	count := CompressCount(len(history))
	if count == 0 {
		metrics.CompressionsTotal.WithLabelValues(metrics.CompressionTooFew).Inc()
		c.logger.Info("context over threshold but too few messages to compress",
			zap.Int64("subject", subject),
			zap.Int("messages", len(history)),
			zap.Int("tokens", before),
		)
		return result, nil
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartSpan(ctx, "compressor", "Compressor.MaybeCompress")
	defer span.End()
	observability.SetAttributes(span,
		observability.AttrSubject.Int64(subject),
		observability.AttrMessages.Int(len(history)),
		attribute.Int("compress_count", count),
		attribute.Int("tokens_before", before),
	)

	c.logger.Info("compressing context",
		zap.Int64("subject", subject),
		zap.Int("tokens", before),
		zap.Int("compress_count", count),
	)

	compressed, retained := history[:count], history[count:]
	summary, items, fallback := c.summarize(ctx, compressed)

	stored, err := c.commit(ctx, subject, compressed, retained, summary, items)
	if err != nil {
		observability.RecordError(span, err)
		metrics.CompressionsTotal.WithLabelValues(metrics.CompressionFailed).Inc()
		c.logger.Error("compression commit failed", zap.Int64("subject", subject), zap.Error(err))
		return nil, fmt.Errorf("commit compression: %w", err)
	}

	after := domain.EstimateTokens(domain.JoinContents(retained) + summary)
	result.Compressed = true
	result.TokensAfter = after
	result.TokensFreed = before - after
	result.FactsExtracted = stored
	result.UsedFallback = fallback
	result.MessagesAfter = len(retained) + 1

	outcome := metrics.CompressionDone
	if fallback {
		outcome = metrics.CompressionFallback
		observability.AddEvent(span, "mechanical_summary", attribute.Int("messages", count))
	}
	metrics.CompressionsTotal.WithLabelValues(outcome).Inc()
	metrics.CompressionTokensFreed.Observe(float64(result.TokensFreed))

	c.logger.Info("compression done",
		zap.Int64("subject", subject),
		zap.Int("tokens_freed", result.TokensFreed),
		zap.Int("facts_extracted", stored),
		zap.Bool("fallback", fallback),
	)
	c.publish(ctx, subject, count, result)
	return result, nil
}

// summarize 调用摘要模型，任何错误都退化为机械摘要
func (c *Compressor) summarize(ctx context.Context, compressed []*domain.Message) (string, []domain.MemoryItem, bool) {
	prompt := strings.Replace(summarizePrompt, transcriptPlaceholder, renderTranscript(compressed), 1)
	request := []*domain.Message{domain.NewMessage(domain.RoleUser, prompt, c.now().UnixMilli())}

	gen, _, err := c.rotator.Generate(ctx, request, "", domain.GenerateOptions{
		DisableTools:    true,
		Temperature:     c.config.SummaryTemperature,
		MaxOutputTokens: c.config.SummaryMaxTokens,
		RequestTag:      "compress",
	})
	if err != nil {
		c.logger.Warn("summarizer unavailable, using mechanical summary", zap.Error(err))
		return mechanicalSummary(compressed), nil, true
	}

	summary, items := ParseSummaryResponse(gen.Text)
	return summary, items, false
}

// commit 依次写入摘要记录、记忆条目，再删除旧消息并插入合成消息
func (c *Compressor) commit(ctx context.Context, subject int64, compressed, retained []*domain.Message, summary string, items []domain.MemoryItem) (int, error) {
	record := &domain.SummaryRecord{
		Subject:            subject,
		Summary:            summary,
		MessagesCompressed: len(compressed),
		CreatedAt:          c.now(),
	}
	if err := c.store.AppendSummaryRecord(ctx, record); err != nil {
		return 0, err
	}

	stored := 0
	for _, item := range items {
		added, err := c.store.AddMemoryItem(ctx, subject, item.Kind, item.Text)
		if err != nil {
			return stored, err
		}
		if added {
			stored++
			metrics.MemoryItemsStored.WithLabelValues(metrics.SourceCompression, string(item.Kind)).Inc()
		}
	}

	// 按 (timestamp, id) 精确删除被压缩的行
	if _, err := c.store.DeleteMessagesThrough(ctx, subject, compressed[len(compressed)-1]); err != nil {
		return stored, err
	}

	marker := fmt.Sprintf("[Compressed context of previous %d messages]\n\n%s", len(compressed), summary)
	if err := c.store.AppendMessage(ctx, subject, domain.NewMessage(domain.RoleModel, marker, retained[0].Timestamp-1)); err != nil {
		return stored, err
	}
	return stored, nil
}

func (c *Compressor) publish(ctx context.Context, subject int64, count int, result *domain.CompressionResult) {
	if c.events == nil {
		return
	}
	eventType := domain.EventContextCompressed
	if result.UsedFallback {
		eventType = domain.EventCompressionFallback
	}
	event := &domain.CompressionEvent{
		EventType:          eventType,
		Subject:            subject,
		MessagesCompressed: count,
		TokensBefore:       result.TokensBefore,
		TokensAfter:        result.TokensAfter,
		FactsExtracted:     result.FactsExtracted,
		OccurredAt:         c.now(),
	}
	if err := c.events.Publish(ctx, fmt.Sprint(subject), event); err != nil {
		c.logger.Warn("failed to publish compression event", zap.Error(err))
	}
}

// renderTranscript User:/Assistant: 对话稿，消息之间空一行
func renderTranscript(messages []*domain.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		speaker := "User"
		if m.Role == domain.RoleModel {
			speaker = "Assistant"
		}
		lines[i] = speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n\n")
}

// mechanicalSummary 取前几条消息的截断片段
func mechanicalSummary(compressed []*domain.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Compressed context - %d messages]", len(compressed))
	for i, m := range compressed {
		if i == fallbackMessages {
			break
		}
		prefix := "U"
		if m.Role == domain.RoleModel {
			prefix = "N"
		}
		sb.WriteString("\n")
		sb.WriteString(prefix)
		sb.WriteString(": ")
		sb.WriteString(truncateRunes(m.Content, fallbackRunes))
	}
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
