package biz

import (
	"context"
	"errors"

	"neurocopilot/cmd/conversation-service/internal/domain"
)

// ErrorCategory 面向用户的错误分类
type ErrorCategory string

const (
	CategoryRateLimit    ErrorCategory = "RATE_LIMIT"
	CategoryTokenExpired ErrorCategory = "TOKEN_EXPIRED"
	CategoryNetwork      ErrorCategory = "NETWORK"
	CategoryTimeout      ErrorCategory = "TIMEOUT"
	CategoryFileTooLarge ErrorCategory = "FILE_TOO_LARGE"
	CategoryUnknown      ErrorCategory = "UNKNOWN"
)

const diagnosticRunes = 200

var categoryMessages = map[ErrorCategory]string{
	CategoryRateLimit:    "⏳ All assistant accounts are busy right now. Please try again in a minute.",
	CategoryTokenExpired: "🔑 The assistant lost access to the model. Please try again later.",
	CategoryNetwork:      "🌐 Could not reach the model because of a network problem. Please try again.",
	CategoryTimeout:      "⌛ The request took too long. Try a shorter message or try again later.",
	CategoryFileTooLarge: "📎 The file is too large to process.",
}

// Categorize 错误分类
func Categorize(err error) ErrorCategory {
	var transient *domain.TransientUpstreamError
	switch {
	case err == nil:
		return ""
	case domain.IsRateLimited(err):
		return CategoryRateLimit
	case domain.IsCredentialError(err):
		return CategoryTokenExpired
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.As(err, &transient) && transient.Status == 0:
		return CategoryNetwork
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return CategoryFileTooLarge
	default:
		return CategoryUnknown
	}
}

// UserMessage 非技术性的错误提示；未识别的错误附带截断后的诊断信息
func UserMessage(err error) string {
	category := Categorize(err)
	if category == "" {
		return ""
	}
	if msg, ok := categoryMessages[category]; ok {
		return msg
	}
	return "❌ Something went wrong: " + truncateRunes(err.Error(), diagnosticRunes)
}
