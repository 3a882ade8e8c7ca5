// internal/api/error_codes.go
package api

// API层自己产生的错误代码；领域错误的代码来自 errors 包
const (
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	ErrorSeriesNotFound = "SERIES_NOT_FOUND"
	ErrorVersionInvalid = "VERSION_INVALID"
)
