package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	tempDir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("TEXT_MODEL", "")
	t.Setenv("IMAGE_MODEL", "")
	t.Setenv("SHOOT_CONCURRENCY", "")
	return tempDir
}

// TestLoadDefaults 测试默认配置
func TestLoadDefaults(t *testing.T) {
	setupEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Port == "" {
		t.Error("端口应有默认值")
	}
	if cfg.TextModel != "gemini-3-pro-preview" || cfg.ImageModel != "gemini-2.5-flash-image" {
		t.Errorf("默认模型不符: %s / %s", cfg.TextModel, cfg.ImageModel)
	}
	if cfg.ShootConcurrency != 3 {
		t.Errorf("默认并发应为3, 实际 %d", cfg.ShootConcurrency)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("数据目录应被创建: %v", err)
	}
}

// TestLoadAPIKeyFallback 测试凭证回退到 API_KEY
func TestLoadAPIKeyFallback(t *testing.T) {
	setupEnv(t)
	t.Setenv("API_KEY", "fallback-key")

	cfg, _ := Load()
	if cfg.APIKey != "fallback-key" {
		t.Errorf("应回退到 API_KEY, 实际 %q", cfg.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "primary-key")
	cfg, _ = Load()
	if cfg.APIKey != "primary-key" {
		t.Errorf("GEMINI_API_KEY 应优先, 实际 %q", cfg.APIKey)
	}
}

// TestInvalidIntFallsBack 测试非法整数使用默认值
func TestInvalidIntFallsBack(t *testing.T) {
	setupEnv(t)
	t.Setenv("SHOOT_CONCURRENCY", "-2")

	cfg, _ := Load()
	if cfg.ShootConcurrency != 3 {
		t.Errorf("非法值应回退为默认值, 实际 %d", cfg.ShootConcurrency)
	}
}

// TestInitConfigDoesNotPersistKey 测试凭证不会写入配置文件
func TestInitConfigDoesNotPersistKey(t *testing.T) {
	tempDir := setupEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret-key-123")

	if err := InitConfig(tempDir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tempDir, "config.json"))
	if err != nil {
		t.Fatalf("读取配置文件失败: %v", err)
	}
	if strings.Contains(string(data), "secret-key-123") {
		t.Fatal("配置文件不应包含凭证")
	}

	cfg := GetCurrentConfig()
	if cfg.APIKey != "secret-key-123" {
		t.Error("内存配置应包含凭证")
	}
	if cfg.ProviderConfig()["api_key"] != "secret-key-123" {
		t.Error("提供者配置应携带凭证")
	}
}

// TestInitConfigMergesSavedSettings 测试合并已保存的生成设置
func TestInitConfigMergesSavedSettings(t *testing.T) {
	tempDir := setupEnv(t)

	saved := AppConfig{
		LLMProvider: "google",
		TextModel:   "gemini-2.5-pro",
		LLMConfig:   map[string]string{"base_url": "http://localhost:9999", "api_key": "stale"},
	}
	data, _ := json.Marshal(saved)
	if err := os.WriteFile(filepath.Join(tempDir, "config.json"), data, 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	if err := InitConfig(tempDir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.TextModel != "gemini-2.5-pro" {
		t.Errorf("应使用文件中的文本模型, 实际 %s", cfg.TextModel)
	}
	if cfg.LLMConfig["base_url"] != "http://localhost:9999" {
		t.Error("应合并文件中的 base_url")
	}
	if cfg.LLMConfig["api_key"] == "stale" {
		t.Error("不应从文件读取凭证")
	}

	// 返回的是副本
	cfg.LLMConfig["base_url"] = "mutated"
	if GetCurrentConfig().LLMConfig["base_url"] != "http://localhost:9999" {
		t.Error("GetCurrentConfig 应返回副本")
	}

	if err := UpdateAPIKey("new-key"); err != nil {
		t.Fatalf("更新凭证失败: %v", err)
	}
	if GetCurrentConfig().APIKey != "new-key" {
		t.Error("凭证应已更新")
	}
}
