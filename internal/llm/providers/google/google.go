// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Corphon/ShowrunnerStudio/internal/llm"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel  = "gemini-3-pro-preview"
	defaultImageModel = "gemini-2.5-flash-image"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				defaultTextModel,
				defaultImageModel,
				"gemini-2.5-pro",
				"gemini-2.5-flash",
			},
			baseURL: defaultBaseURL,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	imageModel   string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{}

	p.defaultModel = defaultTextModel
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	p.imageModel = defaultImageModel
	if model := config["image_model"]; model != "" {
		p.imageModel = model
	}
	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = baseURL
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// Gemini REST 请求结构
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	Temperature        *float32     `json:"temperature,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string       `json:"responseMimeType,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: &generationConfig{
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: req.ResponseMIMEType,
		},
	}
	if req.Temperature > 0 {
		temperature := req.Temperature
		body.GenerationConfig.Temperature = &temperature
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	response, err := p.generate(ctx, model, body)
	if err != nil {
		return nil, err
	}
	if len(response.Candidates) == 0 {
		return nil, errors.New("google gemini未返回任何结果")
	}

	// 提取文本内容
	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// GenerateImage 生成图像，返回第一个内嵌图像；没有内嵌数据时 Data 为 nil
func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = p.imageModel
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if req.AspectRatio != "" {
		body.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: req.AspectRatio}
	}

	response, err := p.generate(ctx, model, body)
	if err != nil {
		return nil, err
	}

	// 只读取第一个候选，最多一张图像
	result := &llm.ImageResponse{ModelName: model}
	if len(response.Candidates) == 0 {
		return result, nil
	}
	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("解码图像数据失败: %w", err)
		}
		result.Data = data
		result.MIMEType = part.InlineData.MimeType
		return result, nil
	}

	return result, nil
}

// generate 发送 generateContent 请求，非200响应转换为已分类的 ProviderError
func (p *Provider) generate(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	// 凭证放在请求头中，传输错误的信息里不会出现
	apiURL := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.ProviderError{Kind: llm.FailureTransport, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		message := string(respBody)

		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errorResp) == nil && errorResp.Error.Message != "" {
			message = errorResp.Error.Message
			if errorResp.Error.Status != "" {
				message = errorResp.Error.Status + ": " + message
			}
		}
		return nil, llm.ClassifyError(httpResp.StatusCode, message)
	}

	var response generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, &llm.ProviderError{Kind: llm.FailureTransport, StatusCode: httpResp.StatusCode, Message: "解析响应失败: " + err.Error()}
	}
	return &response, nil
}
