package resilience

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrMaxRetriesExceeded 超过最大重试次数
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxAttempts 总尝试次数（含首次）
	MaxAttempts int
	// InitialDelay 初始延迟
	InitialDelay time.Duration
	// MaxDelay 最大延迟，0 表示不限制
	MaxDelay time.Duration
	// BackoffMultiplier 退避乘数（指数退避）
	BackoffMultiplier float64
	// RetryableErrors 可重试的错误判断函数，nil 表示全部可重试
	RetryableErrors func(error) bool
	// Backoff 按错误决定等待时间，nil 时使用指数退避；attempt 从 0 开始，为刚失败的那次
	Backoff func(attempt int, err error) time.Duration
	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep 等待函数，测试中可替换
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry 执行带重试的函数，最后一次失败后不再等待
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if policy.RetryableErrors != nil && !policy.RetryableErrors(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.delayFor(attempt, err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}

func (p *RetryPolicy) delayFor(attempt int, err error) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt, err)
	}
	return p.calculateDelay(attempt)
}

// calculateDelay 计算延迟时间（指数退避）
func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	multiplier := p.BackoffMultiplier
	if multiplier == 0 {
		multiplier = 2.0
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// ExponentialDelay 返回 base * 2^attempt
func ExponentialDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

// SleepContext 可被 context 取消的等待
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
