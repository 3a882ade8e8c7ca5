// internal/services/generation_service.go
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/auth"
	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/llm"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
)

const defaultPlateMIME = "image/jpeg"

// Plate 一次图像生成的结果
type Plate struct {
	MIMEType string
	Data     []byte
}

// DataURI 返回可直接内嵌的 data URI
func (p *Plate) DataURI() string {
	if p == nil || len(p.Data) == 0 {
		return ""
	}
	mime := p.MIMEType
	if mime == "" {
		mime = defaultPlateMIME
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(p.Data))
}

// GenerationClient 对生成服务的两种单次请求
type GenerationClient interface {
	// RequestStructured 请求结构化结果并解析到 out
	RequestStructured(ctx context.Context, prompt string, out interface{}) error
	// RequestImage 请求图像；响应中没有图像时返回 nil, nil
	RequestImage(ctx context.Context, prompt, aspectRatio string) (*Plate, error)
}

// ProviderFactory 根据凭证构造提供者
type ProviderFactory func(apiKey string) (llm.Provider, error)

// RegistryFactory 通过 llm 注册表构造提供者
func RegistryFactory(providerName string, base map[string]string) ProviderFactory {
	return func(apiKey string) (llm.Provider, error) {
		cfg := make(map[string]string, len(base)+1)
		for k, v := range base {
			cfg[k] = v
		}
		cfg["api_key"] = apiKey
		return llm.GetProvider(providerName, cfg)
	}
}

// StaticProvider 始终返回同一个提供者
func StaticProvider(provider llm.Provider) ProviderFactory {
	return func(string) (llm.Provider, error) {
		return provider, nil
	}
}

// GenerationService 生成客户端：单次调用，不重试，不缓存。
// 提供者的授权失败会使凭证门失效。
type GenerationService struct {
	gate       *auth.Gate
	factory    ProviderFactory
	textModel  string
	imageModel string
	logger     *utils.Logger

	providerMutex sync.Mutex
	provider      llm.Provider
	providerKey   string
}

// NewGenerationService 创建生成客户端
func NewGenerationService(gate *auth.Gate, factory ProviderFactory, textModel, imageModel string) *GenerationService {
	return &GenerationService{
		gate:       gate,
		factory:    factory,
		textModel:  textModel,
		imageModel: imageModel,
		logger:     utils.GetLogger(),
	}
}

// UpdateCredential 重新输入凭证；下一次请求会用新凭证重建提供者
func (s *GenerationService) UpdateCredential(apiKey string) error {
	if err := s.gate.Supply(apiKey); err != nil {
		return err
	}

	s.providerMutex.Lock()
	s.provider = nil
	s.providerKey = ""
	s.providerMutex.Unlock()

	s.logger.Info("credential re-entered", map[string]interface{}{
		"fingerprint": auth.Fingerprint(apiKey),
	})
	return nil
}

// Gate 返回凭证门
func (s *GenerationService) Gate() *auth.Gate {
	return s.gate
}

// currentProvider 返回与当前凭证匹配的提供者
func (s *GenerationService) currentProvider() (llm.Provider, error) {
	key := s.gate.Key()
	if key == "" {
		return nil, errors.NewCredentialRequiredError("未提供凭证", nil)
	}
	if !s.gate.Validate() {
		return nil, errors.NewCredentialRequiredError("凭证已失效，需要重新输入", nil)
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	if s.provider != nil && s.providerKey == key {
		return s.provider, nil
	}

	provider, err := s.factory(key)
	if err != nil {
		return nil, errors.NewTransportError("初始化生成服务失败", err)
	}
	s.provider = provider
	s.providerKey = key
	return provider, nil
}

// RequestStructured 请求 JSON 结果；解析失败返回 malformed_response
func (s *GenerationService) RequestStructured(ctx context.Context, prompt string, out interface{}) error {
	provider, err := s.currentProvider()
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:           prompt,
		Model:            s.textModel,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return s.classify("structured", err)
	}

	text := cleanJSONString(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		s.logger.Warn("structured response could not be parsed", map[string]interface{}{
			"error":  err.Error(),
			"length": len(resp.Text),
		})
		return errors.NewMalformedResponseError("生成结果不是合法的JSON", err)
	}

	s.logger.Debug("structured request completed", map[string]interface{}{
		"model":       resp.ModelName,
		"tokens":      resp.TokensUsed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// RequestImage 请求一张图像；没有内嵌数据时返回 nil, nil
func (s *GenerationService) RequestImage(ctx context.Context, prompt, aspectRatio string) (*Plate, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := provider.GenerateImage(ctx, llm.ImageRequest{
		Prompt:      prompt,
		Model:       s.imageModel,
		AspectRatio: aspectRatio,
	})
	if err != nil {
		return nil, s.classify("image", err)
	}

	s.logger.Debug("image request completed", map[string]interface{}{
		"model":       resp.ModelName,
		"bytes":       len(resp.Data),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.Data == nil {
		return nil, nil
	}
	return &Plate{MIMEType: resp.MIMEType, Data: resp.Data}, nil
}

// classify 将提供者错误映射到应用错误；授权失败使凭证门失效
func (s *GenerationService) classify(kind string, err error) error {
	if llm.IsAuthorizationFailure(err) {
		s.gate.Invalidate(err.Error())
		s.logger.Warn("generation rejected the credential", map[string]interface{}{
			"request": kind,
			"error":   err.Error(),
		})
		return errors.NewAuthorizationError("凭证被拒绝，需要重新输入", err)
	}

	s.logger.Error("generation request failed", map[string]interface{}{
		"request": kind,
		"error":   err.Error(),
	})
	return errors.NewTransportError("生成请求失败", err)
}
