package biz

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"neurocopilot/cmd/conversation-service/internal/data"
	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func setupTestPool(t *testing.T, identities ...string) (*miniredis.Miniredis, *AccountPool) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	state := data.NewAccountState(client, &cache.RedisConfig{})
	pool := NewAccountPool(state, &AccountPoolConfig{}, zap.NewNop())

	if len(identities) > 0 {
		accounts := make([]*domain.Account, len(identities))
		for i, id := range identities {
			accounts[i] = &domain.Account{Identity: id, Credential: "rt-" + id}
		}
		require.NoError(t, pool.Init(context.Background(), accounts))
	}
	return mr, pool
}

func TestAccountPool_RoundRobin(t *testing.T) {
	ctx := context.Background()
	_, pool := setupTestPool(t, "a", "b", "c")

	var got []string
	for i := 0; i < 4; i++ {
		acc, err := pool.NextAccount(ctx)
		require.NoError(t, err)
		got = append(got, acc.Identity)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestAccountPool_SkipsRateLimited(t *testing.T) {
	ctx := context.Background()
	_, pool := setupTestPool(t, "a", "b", "c")

	require.NoError(t, pool.MarkUnavailable(ctx, "b", time.Minute))

	var got []string
	for i := 0; i < 4; i++ {
		acc, err := pool.NextAccount(ctx)
		require.NoError(t, err)
		got = append(got, acc.Identity)
	}
	assert.Equal(t, []string{"a", "c", "a", "c"}, got)
}

func TestAccountPool_AllLimitedReturnsSoonest(t *testing.T) {
	ctx := context.Background()
	_, pool := setupTestPool(t, "a", "b", "c")

	require.NoError(t, pool.MarkUnavailable(ctx, "a", 3*time.Minute))
	require.NoError(t, pool.MarkUnavailable(ctx, "b", time.Minute))
	require.NoError(t, pool.MarkUnavailable(ctx, "c", 2*time.Minute))

	for i := 0; i < 2; i++ {
		acc, err := pool.NextAccount(ctx)
		require.NoError(t, err)
		assert.Equal(t, "b", acc.Identity)
	}
}

func TestAccountPool_ExpiredLimitIsAvailable(t *testing.T) {
	ctx := context.Background()
	_, pool := setupTestPool(t, "a", "b")

	require.NoError(t, pool.MarkUnavailable(ctx, "a", time.Minute))
	// 时钟前移，键仍在但截止时间已过
	pool.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	acc, err := pool.NextAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", acc.Identity)
}

func TestAccountPool_DefaultCooldownAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, pool := setupTestPool(t, "a")

	require.NoError(t, pool.MarkUnavailable(ctx, "a", 0))
	assert.Equal(t, 60*time.Second, mr.TTL("rate_limit:a"))

	require.NoError(t, pool.MarkUnavailable(ctx, "a", 1500*time.Millisecond))
	assert.Equal(t, 2*time.Second, mr.TTL("rate_limit:a"))
}

func TestAccountPool_Empty(t *testing.T) {
	_, pool := setupTestPool(t)

	acc, err := pool.NextAccount(context.Background())
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestAccountPool_InitValidation(t *testing.T) {
	_, pool := setupTestPool(t)
	ctx := context.Background()

	err := pool.Init(ctx, []*domain.Account{{Identity: "a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	err = pool.Init(ctx, []*domain.Account{
		{Identity: "a", Credential: "x"},
		{Identity: " a ", Credential: "y"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestAccountPool_Status(t *testing.T) {
	ctx := context.Background()
	_, pool := setupTestPool(t, "a", "b")
	require.NoError(t, pool.MarkUnavailable(ctx, "b", time.Minute))

	status, err := pool.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Available)
	assert.True(t, status[0].UnavailableUntil.IsZero())
	assert.False(t, status[1].Available)
	assert.False(t, status[1].UnavailableUntil.IsZero())
}

func TestAccountPool_ConcurrentSelection(t *testing.T) {
	for _, workers := range []int{8, 30} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			ctx := context.Background()
			_, pool := setupTestPool(t, "a", "b", "c")

			const perWorker = 6
			var (
				mu     sync.Mutex
				counts = map[string]int{}
				errs   []error
				wg     sync.WaitGroup
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						acc, err := pool.NextAccount(ctx)
						mu.Lock()
						if err != nil {
							errs = append(errs, err)
						} else {
							counts[acc.Identity]++
						}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			require.Empty(t, errs)
			// 每次选择都推进游标，总数可被 3 整除时严格均分
			total := workers * perWorker
			for _, id := range []string{"a", "b", "c"} {
				assert.Equal(t, total/3, counts[id], id)
			}
		})
	}
}

func TestAccountPool_SelectionProperties(t *testing.T) {
	mr, pool := setupTestPool(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	pool.now = func() time.Time { return now }

	rapid.Check(t, func(rt *rapid.T) {
		mr.FlushAll()
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		cursor := rapid.IntRange(0, 20).Draw(rt, "cursor")

		accounts := make([]*domain.Account, n)
		until := make(map[string]time.Time)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("acc-%d", i)
			accounts[i] = &domain.Account{Identity: id, Credential: "rt"}
		}
		if err := pool.Init(ctx, accounts); err != nil {
			rt.Fatalf("init: %v", err)
		}
		for _, a := range accounts {
			// -1 未限流，0 已过期，>0 仍在限流中
			offset := rapid.IntRange(-1, 5).Draw(rt, "offset-"+a.Identity)
			if offset >= 0 {
				u := now.Add(time.Duration(offset) * time.Minute)
				until[a.Identity] = u
				_ = mr.Set("rate_limit:"+a.Identity, strconv.FormatInt(u.UnixMilli(), 10))
			}
		}
		_ = mr.Set("current_account_index", strconv.Itoa(cursor))

		anyAvailable := false
		for _, a := range accounts {
			u, limited := until[a.Identity]
			if !limited || !u.After(now) {
				anyAvailable = true
			}
		}

		acc, err := pool.NextAccount(ctx)
		if err != nil {
			rt.Fatalf("next account: %v", err)
		}
		index := slices.IndexFunc(accounts, func(a *domain.Account) bool { return a.Identity == acc.Identity })
		next, _ := mr.Get("current_account_index")

		if anyAvailable {
			u, limited := until[acc.Identity]
			if limited && u.After(now) {
				rt.Fatalf("picked rate-limited account %d", index)
			}
			// 游标与选中账号之间的账号都在限流中
			for i := cursor % n; i != index; i = (i + 1) % n {
				if u, limited := until[accounts[i].Identity]; !limited || !u.After(now) {
					rt.Fatalf("skipped available account %d", i)
				}
			}
			if next != strconv.Itoa((index+1)%n) {
				rt.Fatalf("cursor %s not advanced past picked account %d", next, index)
			}
			return
		}

		if next != strconv.Itoa(cursor) {
			rt.Fatalf("cursor moved to %s while all accounts are limited", next)
		}
		for _, a := range accounts {
			if until[a.Identity].Before(until[acc.Identity]) {
				rt.Fatalf("account %s is available sooner than the picked one", a.Identity)
			}
		}
	})
}
