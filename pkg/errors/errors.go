// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 训练任务错误 (4xxx)
	CodeMalformedContent ErrorCode = "4001"
	CodeQASplitFailed    ErrorCode = "4002"
	CodeEmbeddingFailed  ErrorCode = "4003"
	CodeVectorInsert     ErrorCode = "4004"

	// 计费/配额错误 (5xxx)
	CodeInsufficientQuota ErrorCode = "5001"
	CodeAccountBanned     ErrorCode = "5002"
	CodeBillingFailed     ErrorCode = "5003"

	// 模型提供商错误 (6xxx)
	CodeProviderAuth  ErrorCode = "6001"
	CodeRateLimited   ErrorCode = "6002"
	CodeProviderError ErrorCode = "6003"

	// 存储错误 (7xxx)
	CodeDatabaseError ErrorCode = "7001"
	CodeVectorDBError ErrorCode = "7002"
	CodeCacheError    ErrorCode = "7003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeMalformedContent:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeProviderAuth:
		return http.StatusUnauthorized
	case CodeForbidden, CodeAccountBanned, CodeInsufficientQuota:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrInsufficientQuota = New(CodeInsufficientQuota, "insufficient account balance")
	ErrAccountBanned     = New(CodeAccountBanned, "account banned")
	ErrMalformedContent  = New(CodeMalformedContent, "malformed training content")
	ErrProviderAuth      = New(CodeProviderAuth, "provider rejected credentials")
	ErrRateLimited       = New(CodeRateLimited, "provider rate limited")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// hasCode 判断错误链中是否存在指定错误码
func hasCode(err error, codes ...ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	for _, c := range codes {
		if appErr.Code == c {
			return true
		}
	}
	return false
}

// IsInsufficientQuota 余额不足
func IsInsufficientQuota(err error) bool {
	return hasCode(err, CodeInsufficientQuota)
}

// IsRateLimited 提供商限流
func IsRateLimited(err error) bool {
	return hasCode(err, CodeRateLimited, CodeTooManyRequests)
}

// IsProviderAuth 提供商凭证无效
func IsProviderAuth(err error) bool {
	return hasCode(err, CodeProviderAuth)
}

// IsFatalContent 内容不可用，重试无意义
func IsFatalContent(err error) bool {
	return hasCode(err, CodeMalformedContent, CodeAccountBanned)
}
