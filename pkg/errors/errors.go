// Package errors 对外错误：kratos 错误码 + 原因 + 消息，HTTP 层据此渲染统一响应。
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/go-kratos/kratos/v2/errors"
)

// 错误原因
const (
	ReasonBadRequest          = "BAD_REQUEST"
	ReasonValidationFailed    = "VALIDATION_FAILED"
	ReasonNotFound            = "NOT_FOUND"
	ReasonPayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ReasonTooManyRequests     = "TOO_MANY_REQUESTS"
	ReasonRateLimited         = "RATE_LIMITED"
	ReasonCredentialFailed    = "CREDENTIAL_FAILED"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ReasonNoAccounts          = "NO_ACCOUNTS"
	ReasonStorageFailure      = "STORAGE_FAILURE"
	ReasonInternal            = "INTERNAL_SERVER_ERROR"
)

// 通用错误
var (
	ErrBadRequest      = errors.BadRequest(ReasonBadRequest, "Bad request")
	ErrNotFound        = errors.NotFound(ReasonNotFound, "Resource not found")
	ErrTooManyRequests = errors.New(http.StatusTooManyRequests, ReasonTooManyRequests, "Too many requests")
	ErrInternal        = errors.InternalServer(ReasonInternal, "Internal server error")
)

// NewBadRequest 参数错误
func NewBadRequest(reason, message string) *errors.Error {
	return errors.BadRequest(reason, message)
}

// NewValidationFailed 校验失败
func NewValidationFailed(message string) *errors.Error {
	return errors.BadRequest(ReasonValidationFailed, message)
}

// NewPayloadTooLarge 请求体过大
func NewPayloadTooLarge(message string) *errors.Error {
	return errors.New(http.StatusRequestEntityTooLarge, ReasonPayloadTooLarge, message)
}

// NewRateLimited 上游配额耗尽
func NewRateLimited(message string) *errors.Error {
	return errors.New(http.StatusTooManyRequests, ReasonRateLimited, message)
}

// NewCredentialFailed 上游凭证不可用
func NewCredentialFailed(message string) *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonCredentialFailed, message)
}

// NewUpstreamUnavailable 上游临时故障
func NewUpstreamUnavailable(message string) *errors.Error {
	return errors.ServiceUnavailable(ReasonUpstreamUnavailable, message)
}

// NewUpstreamTimeout 上游超时
func NewUpstreamTimeout(message string) *errors.Error {
	return errors.New(http.StatusGatewayTimeout, ReasonUpstreamTimeout, message)
}

// NewNoAccounts 没有可用账号
func NewNoAccounts(message string) *errors.Error {
	return errors.ServiceUnavailable(ReasonNoAccounts, message)
}

// NewStorageFailure 存储失败
func NewStorageFailure(message string) *errors.Error {
	return errors.InternalServer(ReasonStorageFailure, message)
}

// NewInternal 未分类的内部错误
func NewInternal(message string) *errors.Error {
	return errors.InternalServer(ReasonInternal, message)
}

// FromError 提取 kratos 错误，其他错误视为内部错误
func FromError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	var se *errors.Error
	if stderrors.As(err, &se) {
		return se
	}
	return errors.InternalServer(ReasonInternal, err.Error()).WithCause(err)
}

// Code HTTP 状态码
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return int(FromError(err).Code)
}

// Reason 错误原因
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Reason
}
