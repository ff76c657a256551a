package biz

import (
	"context"
	"strings"
	"sync"
	"testing"

	"neurocopilot/cmd/conversation-service/internal/data"
	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockGenerator 模拟模型客户端
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error)

	mu    sync.Mutex
	calls []generateCall
}

type generateCall struct {
	Identity     string
	Messages     []*domain.Message
	SystemPrompt string
	Opts         domain.GenerateOptions
}

func (m *MockGenerator) Generate(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, generateCall{Identity: account.Identity, Messages: messages, SystemPrompt: systemPrompt, Opts: opts})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, account, messages, systemPrompt, opts)
	}
	return &domain.Generation{Text: "ok"}, nil
}

func (m *MockGenerator) Calls() []generateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generateCall(nil), m.calls...)
}

func (m *MockGenerator) Identities() []string {
	var ids []string
	for _, c := range m.Calls() {
		ids = append(ids, c.Identity)
	}
	return ids
}

func setupTestStore(t *testing.T) *data.Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, data.AutoMigrate(db))
	return data.NewStore(db, &data.StoreConfig{})
}

func setupTestRotator(t *testing.T, gen Generator, identities ...string) (*AccountPool, *Rotator) {
	_, pool := setupTestPool(t, identities...)
	return pool, NewRotator(pool, gen, &RotationConfig{}, zap.NewNop())
}

// tokensOf 生成估算值恰好为 n 个 token 的文本
func tokensOf(n int, ch string) string {
	return strings.Repeat(ch, int(float64(n)*domain.CharsPerToken))
}

func seedHistory(t *testing.T, store domain.ConversationStore, subject int64, contents ...string) {
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleModel
		}
		require.NoError(t, store.AppendMessage(context.Background(), subject, domain.NewMessage(role, c, int64(1000+i*10))))
	}
}
