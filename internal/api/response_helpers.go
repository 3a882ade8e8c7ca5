// internal/api/response_helpers.go
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code            string `json:"code"`
	Type            string `json:"type,omitempty"`
	Message         string `json:"message"`
	Details         string `json:"details,omitempty"`
	ReentryRequired bool   `json:"reentry_required,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	if len(message) == 0 {
		message = []string{"资源创建成功"}
	}
	rh.write(c, http.StatusCreated, data, message)
}

// Accepted 已受理，结果将通过 WebSocket 推送
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusAccepted, data, message)
}

// sanitizeErrorMessage 去掉可能泄露凭证的错误信息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "key=", "apikey", "secret", "token"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}
	rh.abort(c, statusCode, apiError)
}

func (rh *ResponseHelper) abort(c *gin.Context, statusCode int, apiError *APIError) {
	c.AbortWithStatusJSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, ErrorSeriesNotFound, message, details...)
}

// StatusForError 应用错误类型对应的HTTP状态码
func StatusForError(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeCredentialRequired, errors.ErrorTypeAuthorization:
		return http.StatusUnauthorized
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeMalformedResponse, errors.ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError 将服务层错误写成API错误响应
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	status := StatusForError(err)
	errType := errors.TypeOf(err)

	apiError := &APIError{
		Code:    errors.CodeOf(err),
		Type:    string(errType),
		Message: sanitizeErrorMessage(err.Error()),
	}
	if status == http.StatusInternalServerError {
		apiError.Code = ErrorInternalError
	}
	if errType == errors.ErrorTypeCredentialRequired || errType == errors.ErrorTypeAuthorization {
		apiError.ReentryRequired = true
		apiError.Details = "reentry_required"
	}

	fields := map[string]interface{}{
		"path":       c.FullPath(),
		"status":     status,
		"error_type": errType,
		"request_id": rh.getRequestID(c),
	}
	if status >= http.StatusInternalServerError {
		utils.GetLogger().Error(err.Error(), fields)
	} else {
		utils.GetLogger().Debug(err.Error(), fields)
	}

	rh.abort(c, status, apiError)
}

// DownloadResponse 下载响应（强制下载）
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", len(content)))
	c.String(http.StatusOK, content)
}

// ExportResponse 以下载方式返回导出内容
func (rh *ResponseHelper) ExportResponse(c *gin.Context, result *models.ExportResult, filename string) {
	contentType := "application/json; charset=utf-8"
	switch result.Format {
	case models.ExportYAML:
		contentType = "application/yaml; charset=utf-8"
	case models.ExportMarkdown:
		contentType = "text/markdown; charset=utf-8"
	}
	rh.DownloadResponse(c, result.Content, filename, contentType)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
