package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult 检查结果
type CheckResult struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Checker 健康检查器
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Report 一次整体检查的结果
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// HealthChecker 并发执行所有已注册的检查
type HealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthChecker 创建健康检查管理器
func NewHealthChecker(checkers ...Checker) *HealthChecker {
	h := &HealthChecker{checkers: make(map[string]Checker)}
	for _, c := range checkers {
		h.Register(c)
	}
	return h
}

// Register 注册检查器，同名覆盖
func (h *HealthChecker) Register(checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[checker.Name()] = checker
}

// Check 执行所有检查并汇总：任一不健康即不健康，否则任一降级即降级
func (h *HealthChecker) Check(ctx context.Context) *Report {
	h.mu.RLock()
	checkers := make([]Checker, 0, len(h.checkers))
	for _, c := range h.checkers {
		checkers = append(checkers, c)
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checkers))
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := c.Check(ctx)
			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}
	wg.Wait()

	report := &Report{Status: StatusHealthy, Checks: results}
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// FuncChecker 用函数实现的检查器。检查失败为不健康，超过阈值为降级。
type FuncChecker struct {
	name      string
	checkFn   func(context.Context) error
	threshold time.Duration
}

// NewFuncChecker 创建检查器，threshold 为 0 时不检查耗时
func NewFuncChecker(name string, checkFn func(context.Context) error, threshold time.Duration) *FuncChecker {
	return &FuncChecker{name: name, checkFn: checkFn, threshold: threshold}
}

// Name 检查器名称
func (f *FuncChecker) Name() string {
	return f.name
}

// Check 执行检查
func (f *FuncChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := f.checkFn(ctx)
	duration := time.Since(start)

	result := CheckResult{Status: StatusHealthy, Timestamp: time.Now(), Duration: duration}
	var degraded *DegradedError
	switch {
	case errors.As(err, &degraded):
		result.Status = StatusDegraded
		result.Error = err.Error()
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	case f.threshold > 0 && duration > f.threshold:
		result.Status = StatusDegraded
		result.Error = fmt.Sprintf("response time exceeds threshold: %v > %v", duration, f.threshold)
	}
	return result
}

// DegradedError 返回此错误的检查记为降级而非不健康
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string { return e.Reason }
