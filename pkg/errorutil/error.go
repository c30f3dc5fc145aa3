package errorutil

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindConfiguration Kind = "configuration" // 缺少 API Key / 承运商
	KindValidation    Kind = "validation"    // 地址不完整
	KindTransport     Kind = "transport"     // 网络、DNS、超时
	KindProvider      Kind = "provider"      // 服务商 4xx/5xx 结构化错误
	KindMalformed     Kind = "malformed"     // 非 JSON 响应
	KindEmptyResult   Kind = "empty_result"  // 过滤后无可用费率
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error 错误结构（包含可重试标记）
type Error struct {
	Kind       Kind   `json:"kind"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	DevDetails string `json:"dev_details,omitempty"`
	Err        error  `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration 配置错误，不重试，直接走兜底费率
func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Code: 400, Message: message}
}

// Validation 输入校验错误
func Validation(message string, details string) *Error {
	return &Error{Kind: KindValidation, Code: 400, Message: message, DevDetails: details}
}

// Transport 网络层错误（可重试）
func Transport(message string, err error) *Error {
	return &Error{Kind: KindTransport, Code: 503, Message: message, Retryable: true, Err: err}
}

// Provider 服务商返回的结构化错误
func Provider(status int, message string, details string) *Error {
	return &Error{
		Kind:       KindProvider,
		Code:       status,
		Message:    message,
		Retryable:  status >= 500,
		DevDetails: details,
	}
}

// Malformed 无法解析的响应
func Malformed(message string, err error) *Error {
	return &Error{Kind: KindMalformed, Code: 502, Message: message, Err: err}
}

// EmptyResult 服务商成功返回但没有匹配的费率
func EmptyResult(message string) *Error {
	return &Error{Kind: KindEmptyResult, Code: 200, Message: message}
}

// NotFound 记录不存在
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: 404, Message: message}
}

// Wrap 包装错误（未分类错误视为不可重试的内部错误）
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Kind:       KindInternal,
		Code:       500,
		Message:    err.Error(),
		DevDetails: fmt.Sprintf("%+v", err),
		Err:        err,
	}
}

// KindOf 返回错误分类，nil 返回空串
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Wrap(err).Kind
}

// IsKind 判断错误分类
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
