package server

import (
	"context"
	"errors"
	"net/http"

	"neurocopilot/cmd/conversation-service/internal/biz"
	"neurocopilot/cmd/conversation-service/internal/domain"
	apierrors "neurocopilot/pkg/errors"

	"github.com/gin-gonic/gin"
	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Response 统一响应格式
type Response struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// NoContent 无内容响应
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 错误响应
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	se := toAPIError(err)
	c.JSON(int(se.Code), Response{
		Code:    int(se.Code),
		Reason:  se.Reason,
		Message: se.Message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, apierrors.NewBadRequest(apierrors.ReasonBadRequest, message))
}

// toAPIError 领域错误映射为对外错误。上游错误的消息用面向用户的提示。
func toAPIError(err error) *kerrors.Error {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrInvalidMemoryKind),
		errors.Is(err, domain.ErrEmptyMemoryText),
		errors.Is(err, domain.ErrInvalidMessageRole),
		errors.Is(err, domain.ErrNullMessage),
		errors.Is(err, domain.ErrInvalidAccount):
		return apierrors.NewValidationFailed(err.Error())
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return apierrors.NewPayloadTooLarge(biz.UserMessage(err))
	case errors.Is(err, domain.ErrNoAccounts):
		return apierrors.NewNoAccounts(err.Error())
	case domain.IsRateLimited(err):
		return apierrors.NewRateLimited(biz.UserMessage(err))
	case domain.IsCredentialError(err):
		return apierrors.NewCredentialFailed(biz.UserMessage(err))
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.NewUpstreamTimeout(biz.UserMessage(err))
	case domain.IsTransient(err):
		return apierrors.NewUpstreamUnavailable(biz.UserMessage(err))
	case domain.IsStorageError(err):
		return apierrors.NewStorageFailure("storage unavailable")
	}

	se := apierrors.FromError(err)
	if se.Reason == apierrors.ReasonInternal {
		// 未分类错误只暴露截断后的诊断信息
		return apierrors.NewInternal(biz.UserMessage(err))
	}
	return se
}
