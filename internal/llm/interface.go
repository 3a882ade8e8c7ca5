// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// 请求参数标准化
type CompletionRequest struct {
	Prompt           string  `json:"prompt"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	Temperature      float32 `json:"temperature,omitempty"`
	Model            string  `json:"model,omitempty"`
	ResponseMIMEType string  `json:"response_mime_type,omitempty"` // 结构化输出时为 application/json
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// ImageRequest 图像生成请求
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"` // 如 16:9、1:1
}

// ImageResponse 图像生成结果；Data 为 nil 表示响应中没有内嵌图像
type ImageResponse struct {
	Data      []byte `json:"-"`
	MIMEType  string `json:"mime_type,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

// Provider 定义所有生成服务提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 图像生成
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// ProviderFactory 提供者工厂函数
type ProviderFactory func() Provider

var (
	providers   = make(map[string]ProviderFactory)
	providersMu sync.RWMutex
)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailureKind 生成边界上的失败分类
type FailureKind string

const (
	FailureAuthorization FailureKind = "authorization"
	FailureTransport     FailureKind = "transport"
)

// ProviderError 提供者返回的失败，已在边界处分类
type ProviderError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// 服务端用来表示凭证或项目不可用的文本标记
var authorizationMarkers = []string{
	"entity was not found",
	"permission denied",
	"api key not valid",
}

// ClassifyError 根据状态码与错误文本构造 ProviderError
func ClassifyError(statusCode int, message string) *ProviderError {
	kind := FailureTransport
	switch statusCode {
	case 401, 403, 404:
		kind = FailureAuthorization
	default:
		lower := strings.ToLower(message)
		for _, marker := range authorizationMarkers {
			if strings.Contains(lower, marker) {
				kind = FailureAuthorization
				break
			}
		}
	}
	return &ProviderError{Kind: kind, StatusCode: statusCode, Message: message}
}

// IsAuthorizationFailure 错误链中是否包含授权失败
func IsAuthorizationFailure(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Kind == FailureAuthorization
}
