package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/pkg/cache"

	"github.com/redis/go-redis/v9"
)

const (
	accountsKey     = "accounts"
	cursorKey       = "current_account_index"
	rateLimitPrefix = "rate_limit:"
)

// AccountState 基于 Redis 的账号池共享状态
type AccountState struct {
	client *redis.Client
	keys   cache.Keyspace
}

var _ domain.AccountStateStore = (*AccountState)(nil)

// NewAccountState 创建账号池状态存储
func NewAccountState(client *redis.Client, c *cache.RedisConfig) *AccountState {
	return &AccountState{
		client: client,
		keys:   cache.Keyspace(c.KeyPrefix),
	}
}

// LoadAccounts 读取账号列表，不存在时返回空列表
func (s *AccountState) LoadAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, domain.NewStorageError("accounts.load", err)
	}
	return accounts, nil
}

// SaveAccounts 覆盖账号列表并重置游标
func (s *AccountState) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return domain.NewStorageError("accounts.save", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.Key(accountsKey), data, 0)
		pipe.Set(ctx, s.keys.Key(cursorKey), 0, 0)
		return nil
	})
	return domain.NewStorageError("accounts.save", err)
}

// selectScript 从游标开始环形扫描，选中第一个未限流或已过期的账号并推进游标。
// 全部限流时返回截止时间最早的账号，游标不动。
// 返回 {index, degraded, account_json}，池为空时 index 为 -1。
var selectScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return {-1, 0, ''}
end
local accounts = cjson.decode(raw)
local n = #accounts
if n == 0 then
	return {-1, 0, ''}
end

local now = tonumber(ARGV[1])
local cursor = tonumber(redis.call('GET', KEYS[2]) or '0') or 0
local limits = {}
for i = 1, n do
	limits[i] = tonumber(redis.call('GET', ARGV[2] .. accounts[i].email) or '')
end

local start = cursor % n
for i = 0, n - 1 do
	local index = (start + i) % n
	local limit = limits[index + 1]
	if not limit or limit <= now then
		redis.call('SET', KEYS[2], (index + 1) % n)
		return {index, 0, cjson.encode(accounts[index + 1])}
	end
end

local soonest = 1
for i = 2, n do
	if limits[i] < limits[soonest] then
		soonest = i
	end
end
return {soonest - 1, 1, cjson.encode(accounts[soonest])}
`)

// SelectAccount 单次脚本调用内完成读取、选择和游标推进
func (s *AccountState) SelectAccount(ctx context.Context, now time.Time) (*domain.AccountSelection, error) {
	keys := []string{s.keys.Key(accountsKey), s.keys.Key(cursorKey)}
	reply, err := selectScript.Run(ctx, s.client, keys, now.UnixMilli(), s.rateLimitKey("")).Slice()
	if err != nil {
		return nil, domain.NewStorageError("accounts.select", err)
	}
	if len(reply) != 3 {
		return nil, domain.NewStorageError("accounts.select", fmt.Errorf("unexpected reply length %d", len(reply)))
	}

	index, _ := reply[0].(int64)
	if index < 0 {
		return &domain.AccountSelection{Index: -1}, nil
	}
	degraded, _ := reply[1].(int64)
	raw, _ := reply[2].(string)

	var account domain.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return nil, domain.NewStorageError("accounts.select", fmt.Errorf("decode account: %w", err))
	}
	return &domain.AccountSelection{
		Account:  &account,
		Index:    int(index),
		Degraded: degraded == 1,
	}, nil
}

// RateLimitedUntil 批量读取不可用截止时间
func (s *AccountState) RateLimitedUntil(ctx context.Context, ids []string) (map[string]time.Time, error) {
	until, err := s.rateLimitedUntil(ctx, ids)
	if err != nil {
		return nil, domain.NewStorageError("accounts.rate_limits", err)
	}
	return until, nil
}

// MarkRateLimited 写入截止时间（毫秒），最后写入者生效
func (s *AccountState) MarkRateLimited(ctx context.Context, identity string, until time.Time, ttl time.Duration) error {
	err := s.client.Set(ctx, s.rateLimitKey(identity), until.UnixMilli(), ttl).Err()
	return domain.NewStorageError("accounts.mark_rate_limited", err)
}

func (s *AccountState) rateLimitKey(identity string) string {
	return s.keys.Key(rateLimitPrefix + identity)
}

func (s *AccountState) loadAccounts(ctx context.Context) ([]*domain.Account, error) {
	data, err := s.client.Get(ctx, s.keys.Key(accountsKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []*domain.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}

	var accounts []*domain.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountState) rateLimitedUntil(ctx context.Context, ids []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.rateLimitKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		result[ids[i]] = time.UnixMilli(ms)
	}
	return result, nil
}
