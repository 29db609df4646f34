// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeCapability ErrorType = "capability_error"
	ErrorTypeQuota      ErrorType = "quota_error"
	ErrorTypeGeneration ErrorType = "generation_error"
	ErrorTypeCapture    ErrorType = "capture_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeImmutable  ErrorType = "immutable"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeError      ErrorType = "processing_error"
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

// NewValidationError 创建验证错误（缺少必要输入，不会触达生成服务）
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewCapabilityError 创建能力错误（操作需要登录）
func NewCapabilityError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeCapability, message, originalError)
}

// NewQuotaError 创建配额错误（储存达到上限，登录后自动重试可恢复）
func NewQuotaError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeQuota, message, originalError)
}

// NewGenerationError 创建生成错误（服务调用失败、结构化数据畸形或内容被拒）
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// NewCaptureError 创建采集错误（媒体权限或硬件故障）
func NewCaptureError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeCapture, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewImmutableError 创建不可变错误（内置模板不可编辑/删除）
func NewImmutableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImmutable, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// typeOf 提取错误类型，非 AppError 返回空串
func typeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return typeOf(err) == ErrorTypeValidation
}

// IsCapabilityError 检查是否为能力错误
func IsCapabilityError(err error) bool {
	return typeOf(err) == ErrorTypeCapability
}

// IsQuotaError 检查是否为配额错误
func IsQuotaError(err error) bool {
	return typeOf(err) == ErrorTypeQuota
}

// IsGenerationError 检查是否为生成错误
func IsGenerationError(err error) bool {
	return typeOf(err) == ErrorTypeGeneration
}

// IsCaptureError 检查是否为采集错误
func IsCaptureError(err error) bool {
	return typeOf(err) == ErrorTypeCapture
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return typeOf(err) == ErrorTypeNotFound
}

// IsImmutableError 检查是否为不可变错误
func IsImmutableError(err error) bool {
	return typeOf(err) == ErrorTypeImmutable
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeCapability:
		return "CAPABILITY_ERROR"
	case ErrorTypeQuota:
		return "QUOTA_ERROR"
	case ErrorTypeGeneration:
		return "GENERATION_ERROR"
	case ErrorTypeCapture:
		return "CAPTURE_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeImmutable:
		return "IMMUTABLE"
	case ErrorTypeConflict:
		return "CONFLICT"
	default:
		return "PROCESSING_ERROR"
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
