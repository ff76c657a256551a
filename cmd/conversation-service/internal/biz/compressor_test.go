package biz

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"neurocopilot/cmd/conversation-service/internal/data"
	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

const testSubject int64 = 42

const summaryResponse = `=== SUMMARY ===
Discussed marathon training and a move to Berlin.

=== LONG-TERM MEMORY ===
FACT: Lives in Berlin
PREF: Prefers short answers
GOAL: Run a marathon in spring
FACT: ok
random trailing line`

func summarizer(text string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(context.Context, *domain.Account, []*domain.Message, string, domain.GenerateOptions) (*domain.Generation, error) {
			return &domain.Generation{Text: text}, nil
		},
	}
}

func newTestCompressor(t *testing.T, store domain.ConversationStore, gen Generator, config *CompressionConfig) *Compressor {
	_, rotator := setupTestRotator(t, gen, "a", "b")
	return NewCompressor(store, rotator, nil, config, zap.NewNop())
}

func bigHistory(n, tokensEach int) []string {
	contents := make([]string, n)
	for i := range contents {
		contents[i] = tokensOf(tokensEach, string(rune('a'+i%26)))
	}
	return contents
}

func TestCompressor_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	gen := summarizer(summaryResponse)
	c := newTestCompressor(t, store, gen, &CompressionConfig{})

	seedHistory(t, store, testSubject, "hello", "hi there")

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.False(t, result.Compressed)
	assert.Zero(t, result.TokensFreed)
	assert.Empty(t, gen.Calls())

	history, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCompressor_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	gen := summarizer(summaryResponse)
	c := newTestCompressor(t, store, gen, &CompressionConfig{})

	contents := bigHistory(20, 50000)
	seedHistory(t, store, testSubject, contents...)
	original, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, result.Compressed)
	assert.False(t, result.UsedFallback)
	assert.Equal(t, 3, result.FactsExtracted)
	assert.Equal(t, 20, result.MessagesBefore)
	assert.Equal(t, 7, result.MessagesAfter)
	assert.GreaterOrEqual(t, result.TokensBefore, 1000000)
	assert.Equal(t, result.TokensBefore-result.TokensAfter, result.TokensFreed)
	assert.Greater(t, result.TokensFreed, 650000)

	history, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)
	require.Len(t, history, 7)

	synthetic := history[0]
	assert.Equal(t, domain.RoleModel, synthetic.Role)
	assert.Equal(t, original[14].Timestamp-1, synthetic.Timestamp)
	assert.Equal(t, "[Compressed context of previous 14 messages]\n\nDiscussed marathon training and a move to Berlin.", synthetic.Content)
	for i, m := range history[1:] {
		assert.Equal(t, original[14+i].Timestamp, m.Timestamp)
		assert.Equal(t, original[14+i].Content, m.Content)
	}

	summaries, err := store.ListSummaries(ctx, testSubject)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 14, summaries[0].MessagesCompressed)

	mem, err := store.ListMemoryItems(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lives in Berlin"}, mem.Facts)
	assert.Equal(t, []string{"Prefers short answers"}, mem.Preferences)
	assert.Equal(t, []string{"Run a marathon in spring"}, mem.Goals)

	// 相同历史再压缩一次，记忆不重复
	require.NoError(t, store.ClearMessages(ctx, testSubject))
	seedHistory(t, store, testSubject, contents...)

	again, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, again.Compressed)
	assert.Zero(t, again.FactsExtracted)

	mem, err = store.ListMemoryItems(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, 3, mem.Len())

	summaries, err = store.ListSummaries(ctx, testSubject)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	calls := gen.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "compress", calls[0].Opts.RequestTag)
	assert.True(t, calls[0].Opts.DisableTools)
	assert.Contains(t, calls[0].Messages[0].Content, "User: "+contents[0][:10])
	assert.Contains(t, calls[0].Messages[0].Content, "Assistant: "+contents[1][:10])
	assert.NotContains(t, calls[0].Messages[0].Content, contents[14][:10])
}

func TestCompressor_FallbackWhenSummarizerUnavailable(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	gen := &MockGenerator{
		GenerateFunc: func(context.Context, *domain.Account, []*domain.Message, string, domain.GenerateOptions) (*domain.Generation, error) {
			return nil, &domain.TransientUpstreamError{Status: 503, Err: errors.New("unavailable")}
		},
	}
	c := newTestCompressor(t, store, gen, &CompressionConfig{})

	seedHistory(t, store, testSubject, bigHistory(20, 50000)...)

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, result.Compressed)
	assert.True(t, result.UsedFallback)
	assert.Zero(t, result.FactsExtracted)

	history, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)
	require.Len(t, history, 7)

	content := history[0].Content
	assert.True(t, strings.HasPrefix(content, "[Compressed context of previous 14 messages]\n\n[Compressed context - 14 messages]\nU: "))
	lines := strings.Split(content, "\n")
	// 标记行、空行、机械摘要标题和 5 条片段
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[4], "N: "))
	assert.Equal(t, 3+200, len([]rune(lines[3])))

	mem, err := store.ListMemoryItems(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, mem.IsEmpty())
}

func TestCompressor_TooFewMessages(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	gen := summarizer(summaryResponse)
	c := newTestCompressor(t, store, gen, &CompressionConfig{CompressThreshold: 100, MaxContextTokens: 200})

	seedHistory(t, store, testSubject, tokensOf(500, "x"))

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.False(t, result.Compressed)
	assert.Empty(t, gen.Calls())
}

func TestCompressor_IgnoresCallerCancellation(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &MockGenerator{
		GenerateFunc: func(genCtx context.Context, _ *domain.Account, _ []*domain.Message, _ string, _ domain.GenerateOptions) (*domain.Generation, error) {
			cancel()
			if genCtx.Err() != nil {
				return nil, genCtx.Err()
			}
			return &domain.Generation{Text: summaryResponse}, nil
		},
	}
	c := newTestCompressor(t, store, gen, &CompressionConfig{CompressThreshold: 100, MaxContextTokens: 200})
	seedHistory(t, store, testSubject, bigHistory(10, 20)...)

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, result.Compressed)
	assert.False(t, result.UsedFallback)

	history, err := store.ListMessages(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestCompressor_TiedTimestamps(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	c := newTestCompressor(t, store, summarizer(summaryResponse), &CompressionConfig{})

	// 导入的历史可能整体共用一个时间戳
	for i := 0; i < 20; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleModel
		}
		msg := domain.NewMessage(role, tokensOf(50_000, string(rune('a'+i))), 5000)
		require.NoError(t, store.AppendMessage(ctx, testSubject, msg))
	}

	result, err := c.MaybeCompress(ctx, testSubject)
	require.NoError(t, err)
	assert.True(t, result.Compressed)
	assert.Equal(t, 7, result.MessagesAfter)

	history, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)
	require.Len(t, history, 7)
	assert.True(t, strings.HasPrefix(history[0].Content, "[Compressed context of previous 14 messages]"))
	assert.Equal(t, int64(4999), history[0].Timestamp)
	for i, m := range history[1:] {
		assert.Equal(t, string(rune('a'+14+i)), m.Content[:1])
		assert.Equal(t, int64(5000), m.Timestamp)
	}
}

// failingDeleteStore 删除步骤失败的存储
type failingDeleteStore struct {
	*data.Store
}

func (s *failingDeleteStore) DeleteMessagesThrough(context.Context, int64, *domain.Message) (int64, error) {
	return 0, domain.NewStorageError("messages.delete_through", errors.New("connection reset"))
}

func TestCompressor_StorageErrorAbortsCommit(t *testing.T) {
	ctx := context.Background()
	store := &failingDeleteStore{Store: setupTestStore(t)}
	c := newTestCompressor(t, store, summarizer(summaryResponse), &CompressionConfig{CompressThreshold: 100, MaxContextTokens: 200})
	seedHistory(t, store, testSubject, bigHistory(10, 20)...)

	_, err := c.MaybeCompress(ctx, testSubject)
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))

	// 摘要和记忆先于删除写入，原消息保持不变且没有合成消息
	summaries, err := store.ListSummaries(ctx, testSubject)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	mem, err := store.ListMemoryItems(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, 3, mem.Len())

	history, err := store.ListMessages(ctx, testSubject)
	require.NoError(t, err)
	assert.Len(t, history, 10)
}

func TestCompressionConfig_Validate(t *testing.T) {
	c := &CompressionConfig{}
	c.SetDefaults()
	assert.NoError(t, c.Validate())

	c = &CompressionConfig{CompressThreshold: 900, MaxContextTokens: 900}
	assert.Error(t, c.Validate())
}

func TestCompressCount_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 100000).Draw(rt, "n")
		count := CompressCount(n)
		if count != int(math.Floor(float64(n)*7/10)) {
			rt.Fatalf("CompressCount(%d) = %d", n, count)
		}
		if n >= 2 && (count < 1 || count >= n) {
			rt.Fatalf("CompressCount(%d) = %d leaves nothing retained or compresses nothing", n, count)
		}
	})
}

func TestMechanicalSummary(t *testing.T) {
	messages := []*domain.Message{
		domain.NewMessage(domain.RoleUser, "привет", 1),
		domain.NewMessage(domain.RoleModel, strings.Repeat("ж", 300), 2),
	}
	summary := mechanicalSummary(messages)
	lines := strings.Split(summary, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[Compressed context - 2 messages]", lines[0])
	assert.Equal(t, "U: привет", lines[1])
	assert.Equal(t, "N: "+strings.Repeat("ж", 200), lines[2])
}
