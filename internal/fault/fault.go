// Package fault 定义流水线的错误分类：瞬时错误、限流、致命配置错误与单条目永久错误。
//
// 分类依托 kratos errors 的状态码表达，便于在 HTTP/gRPC 出口直接映射。
package fault

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kratos/kratos/v2/errors"
)

// 常用错误原因
const (
	ReasonTimeout        = "TIMEOUT"
	ReasonUpstream       = "UPSTREAM_UNAVAILABLE"
	ReasonRateLimited    = "RATE_LIMITED"
	ReasonUnauthorized   = "UNAUTHORIZED"
	ReasonMissingConfig  = "MISSING_CONFIG"
	ReasonBadRequest     = "BAD_REQUEST"
	ReasonMalformed      = "MALFORMED_RESPONSE"
	ReasonStorageFailure = "STORAGE_FAILURE"
)

// Transient 瞬时错误（超时、5xx），可重试
func Transient(reason, format string, args ...any) *errors.Error {
	return errors.Newf(http.StatusServiceUnavailable, reason, format, args...)
}

// RateLimited 限流错误，可退避重试
func RateLimited(reason, format string, args ...any) *errors.Error {
	return errors.Newf(http.StatusTooManyRequests, reason, format, args...)
}

// Fatal 凭证缺失或鉴权失败，不可重试，终止整次运行
func Fatal(reason, format string, args ...any) *errors.Error {
	return errors.Newf(http.StatusUnauthorized, reason, format, args...)
}

// Permanent 单条目永久失败，跳过并计数
func Permanent(reason, format string, args ...any) *errors.Error {
	return errors.Newf(http.StatusUnprocessableEntity, reason, format, args...)
}

// FromStatus 按上游 HTTP 状态码归类错误
func FromStatus(status int, service string, body string) error {
	if len(body) > 256 {
		body = body[:256]
	}
	msg := fmt.Sprintf("%s returned status %d: %s", service, status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Fatal(ReasonUnauthorized, "%s", msg)
	case status == http.StatusTooManyRequests:
		return RateLimited(ReasonRateLimited, "%s", msg)
	case status >= 500:
		return Transient(ReasonUpstream, "%s", msg)
	default:
		return Permanent(ReasonBadRequest, "%s", msg)
	}
}

func code(err error) (int, bool) {
	var se *errors.Error
	if errors.As(err, &se) {
		return int(se.Code), true
	}
	return 0, false
}

// IsFatal 是否为致命错误
func IsFatal(err error) bool {
	c, ok := code(err)
	return ok && (c == http.StatusUnauthorized || c == http.StatusForbidden)
}

// IsPermanent 是否为单条目永久错误
func IsPermanent(err error) bool {
	c, ok := code(err)
	return ok && c >= 400 && c < 500 && c != http.StatusTooManyRequests &&
		c != http.StatusUnauthorized && c != http.StatusForbidden
}

// IsRetryable 是否值得重试。未归类的错误与单次调用超时视为可重试，上下文取消不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if c, ok := code(err); ok {
		return c == http.StatusTooManyRequests || c >= 500
	}
	return true
}
