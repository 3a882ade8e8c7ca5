// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 输入与状态错误
	ErrorTypeValidation         ErrorType = "validation_error"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeCredentialRequired ErrorType = "credential_required"

	// 生成边界错误
	ErrorTypeAuthorization     ErrorType = "authorization"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeTransport         ErrorType = "transport"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewCredentialRequiredError 凭证无效或缺失，需要重新输入
func NewCredentialRequiredError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeCredentialRequired, message, originalError)
}

// NewAuthorizationError 生成服务拒绝了凭证
func NewAuthorizationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAuthorization, message, originalError)
}

// NewMalformedResponseError 生成结果无法解析或缺少字段
func NewMalformedResponseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedResponse, message, originalError)
}

// NewTransportError 网络或服务端错误
func NewTransportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransport, message, originalError)
}

// TypeOf 返回错误类型，非 AppError 返回空字符串
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// CodeOf 返回错误代码，非 AppError 返回 UNKNOWN_ERROR
func CodeOf(err error) string {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Code
	}
	return "UNKNOWN_ERROR"
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// IsCredentialRequiredError 检查是否需要重新输入凭证
func IsCredentialRequiredError(err error) bool {
	return TypeOf(err) == ErrorTypeCredentialRequired
}

// IsAuthorizationError 检查是否为授权失败
func IsAuthorizationError(err error) bool {
	return TypeOf(err) == ErrorTypeAuthorization
}

// IsMalformedResponseError 检查是否为生成结果格式错误
func IsMalformedResponseError(err error) bool {
	return TypeOf(err) == ErrorTypeMalformedResponse
}

// IsTransportError 检查是否为传输错误
func IsTransportError(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeCredentialRequired:
		return "CREDENTIAL_REQUIRED"
	case ErrorTypeAuthorization:
		return "AUTHORIZATION_FAILED"
	case ErrorTypeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case ErrorTypeTransport:
		return "TRANSPORT_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
