package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubProvider struct {
	config map[string]string
}

func (s *stubProvider) Initialize(config map[string]string) error {
	if config["api_key"] == "" {
		return errors.New("missing key")
	}
	s.config = config
	return nil
}
func (s *stubProvider) GetName() string              { return "stub" }
func (s *stubProvider) GetSupportedModels() []string { return []string{"stub-1"} }
func (s *stubProvider) CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: req.Prompt}, nil
}
func (s *stubProvider) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	return &ImageResponse{}, nil
}

func TestRegistry(t *testing.T) {
	Register("stub-registry", func() Provider { return &stubProvider{} })

	p, err := GetProvider("stub-registry", map[string]string{"api_key": "k"})
	if err != nil {
		t.Fatalf("GetProvider 失败: %v", err)
	}
	if p.GetName() != "stub" {
		t.Errorf("提供者名称错误: %s", p.GetName())
	}

	if _, err := GetProvider("stub-registry", map[string]string{}); err == nil {
		t.Error("初始化失败时应返回错误")
	}
	if _, err := GetProvider("missing", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("未知提供者应返回 ErrUnknownProvider, 实际 %v", err)
	}

	found := false
	for _, name := range ListProviders() {
		if name == "stub-registry" {
			found = true
		}
	}
	if !found {
		t.Error("ListProviders 应包含已注册的提供者")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    FailureKind
	}{
		{401, "unauthenticated", FailureAuthorization},
		{403, "forbidden", FailureAuthorization},
		{404, "model missing", FailureAuthorization},
		{400, "Requested entity was not found.", FailureAuthorization},
		{400, "PERMISSION DENIED for project", FailureAuthorization},
		{400, "API key not valid. Please pass a valid API key.", FailureAuthorization},
		{500, "internal error", FailureTransport},
		{503, "overloaded", FailureTransport},
		{0, "connection reset", FailureTransport},
	}

	for _, tt := range tests {
		got := ClassifyError(tt.status, tt.message)
		if got.Kind != tt.want {
			t.Errorf("ClassifyError(%d, %q) = %s, 期望 %s", tt.status, tt.message, got.Kind, tt.want)
		}
	}

	wrapped := fmt.Errorf("draft: %w", ClassifyError(401, "nope"))
	if !IsAuthorizationFailure(wrapped) {
		t.Error("包装后的授权失败应可识别")
	}
	if IsAuthorizationFailure(errors.New("plain")) {
		t.Error("普通错误不应视为授权失败")
	}
}
