// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	APIKey    string `json:"-"` // 凭证只来自环境或重新输入，不落盘
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 生成相关配置
	LLMProvider string            `json:"llm_provider"`
	TextModel   string            `json:"text_model"`
	ImageModel  string            `json:"image_model"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 工作室参数
	ShootConcurrency int `json:"shoot_concurrency"`
	HistoryLimit     int `json:"history_limit"`
}

// Config 存储从环境变量读取的基础配置
type Config struct {
	Port             string
	APIKey           string
	LLMProvider      string
	TextModel        string
	ImageModel       string
	DataDir          string
	LogDir           string
	DebugMode        bool
	ShootConcurrency int
	HistoryLimit     int
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		APIKey:           getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		LLMProvider:      getEnv("LLM_PROVIDER", "google"),
		TextModel:        getEnv("TEXT_MODEL", "gemini-3-pro-preview"),
		ImageModel:       getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		DebugMode:        getEnvBool("DEBUG_MODE", true),
		ShootConcurrency: getEnvInt("SHOOT_CONCURRENCY", 3),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 32),
	}

	if config.APIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 GEMINI_API_KEY，需要通过 /api/credential 重新输入后才能生成")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取正整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("警告: %s=%q 不是正整数，使用默认值 %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// fromBase 由基础配置构造完整配置
func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:        base.Port,
		APIKey:      base.APIKey,
		DataDir:     base.DataDir,
		LogDir:      base.LogDir,
		DebugMode:   base.DebugMode,
		LLMProvider: base.LLMProvider,
		TextModel:   base.TextModel,
		ImageModel:  base.ImageModel,
		LLMConfig: map[string]string{
			"default_model": base.TextModel,
			"image_model":   base.ImageModel,
		},
		ShootConcurrency: base.ShootConcurrency,
		HistoryLimit:     base.HistoryLimit,
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	// 尝试从文件加载已保存的生成设置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 保留文件中的生成设置，基础配置与凭证以环境为准
				if savedConfig.LLMProvider != "" {
					currentConfig.LLMProvider = savedConfig.LLMProvider
				}
				if savedConfig.TextModel != "" {
					currentConfig.TextModel = savedConfig.TextModel
				}
				if savedConfig.ImageModel != "" {
					currentConfig.ImageModel = savedConfig.ImageModel
				}
				for k, v := range savedConfig.LLMConfig {
					if k == "api_key" {
						continue
					}
					currentConfig.LLMConfig[k] = v
				}
			}
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，直接从环境构造
		baseConfig, _ := Load()
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// ProviderConfig 返回传给生成服务提供者的配置
func (c *AppConfig) ProviderConfig() map[string]string {
	out := make(map[string]string, len(c.LLMConfig)+3)
	for k, v := range c.LLMConfig {
		out[k] = v
	}
	out["api_key"] = c.APIKey
	if c.TextModel != "" {
		out["default_model"] = c.TextModel
	}
	if c.ImageModel != "" {
		out["image_model"] = c.ImageModel
	}
	return out
}

// UpdateAPIKey 更新内存中的凭证（重新输入）
func UpdateAPIKey(apiKey string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	currentConfig.APIKey = apiKey
	return nil
}

// UpdateLLMConfig 更新生成服务配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = make(map[string]string, len(config))
	for k, v := range config {
		if k == "api_key" {
			continue
		}
		currentConfig.LLMConfig[k] = v
	}

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
