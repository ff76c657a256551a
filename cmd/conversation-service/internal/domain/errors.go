package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAccounts 账号池为空
	ErrNoAccounts = errors.New("account pool is empty")

	// ErrInvalidMessageRole 无效的消息角色
	ErrInvalidMessageRole = errors.New("invalid message role")

	// ErrNullMessage 快照中的消息为 null
	ErrNullMessage = errors.New("history entry is null")

	// ErrInvalidMemoryKind 无效的记忆类型
	ErrInvalidMemoryKind = errors.New("invalid memory kind")

	// ErrEmptyMemoryText 记忆内容为空
	ErrEmptyMemoryText = errors.New("memory text is empty")

	// ErrEmptyMessage 消息内容为空
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidAccount 账号缺少标识或凭证，或标识重复
	ErrInvalidAccount = errors.New("invalid account")

	// ErrPayloadTooLarge 附件或输入过大
	ErrPayloadTooLarge = errors.New("payload too large")
)

// StorageError 存储后端操作失败，不自动重试
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError 包装存储错误，nil 透传
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// CredentialError 凭证换取访问令牌失败，对当前账号是致命的
type CredentialError struct {
	Identity string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential exchange for %s failed: %v", e.Identity, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// RateLimited 配额耗尽，内部重试已用完
type RateLimited struct {
	Identity string
	Attempts int
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited on %s after %d attempts", e.Identity, e.Attempts)
}

// TransientUpstreamError 网络或 5xx 等上游临时错误
type TransientUpstreamError struct {
	Status int // HTTP 状态码，网络错误时为 0
	Err    error
}

func (e *TransientUpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream unavailable: %v", e.Err)
	}
	return fmt.Sprintf("upstream error (%d): %v", e.Status, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// IsStorageError 判断是否为存储错误
func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsCredentialError 判断是否为凭证错误
func IsCredentialError(err error) bool {
	var target *CredentialError
	return errors.As(err, &target)
}

// IsRateLimited 判断是否为限流错误
func IsRateLimited(err error) bool {
	var target *RateLimited
	return errors.As(err, &target)
}

// IsTransient 判断是否为上游临时错误
func IsTransient(err error) bool {
	var target *TransientUpstreamError
	return errors.As(err, &target)
}
