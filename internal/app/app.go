// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/api"
	"github.com/Corphon/ShowrunnerStudio/internal/auth"
	"github.com/Corphon/ShowrunnerStudio/internal/config"
	"github.com/Corphon/ShowrunnerStudio/internal/di"
	_ "github.com/Corphon/ShowrunnerStudio/internal/llm/providers/google"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
	"github.com/Corphon/ShowrunnerStudio/internal/storage"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
)

// httpServer 便于测试替换的服务器接口
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   httpServer
	stopChan chan os.Signal
}

var (
	instance      *App
	instanceMutex sync.Mutex
)

const shutdownTimeout = 30 * time.Second

// GetApp 获取应用实例（单例）
func GetApp() *App {
	instanceMutex.Lock()
	defer instanceMutex.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 加载配置、初始化日志与服务并准备HTTP服务器
func Initialize(dataDir string) error {
	app := GetApp()

	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if app.config.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter(di.GetContainer())
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	utils.GetLogger().Info("应用初始化完成", map[string]interface{}{
		"port":     app.config.Port,
		"provider": app.config.LLMProvider,
		"services": di.GetContainer().GetNames(),
	})
	return nil
}

// initLogger 在日志目录中按日期创建日志文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("showrunner_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices() error {
	app := GetApp()
	if app.config == nil {
		app.config = config.GetCurrentConfig()
	}
	cfg := app.config
	container := di.GetContainer()

	container.Register(di.ServiceConfig, cfg)

	// 1. 凭证门
	gate := auth.NewGate(cfg.APIKey)
	container.Register(di.ServiceGate, gate)

	// 2. 生成客户端
	generation := services.NewGenerationService(
		gate,
		services.RegistryFactory(cfg.LLMProvider, cfg.ProviderConfig()),
		cfg.TextModel,
		cfg.ImageModel,
	)
	container.Register(di.ServiceGeneration, generation)

	// 3. 生产状态机
	studio := services.NewStudioService(generation, gate, services.StudioOptions{
		ShootConcurrency: cfg.ShootConcurrency,
		HistoryLimit:     cfg.HistoryLimit,
	})
	container.Register(di.ServiceStudio, studio)

	// 4. 存储与导出
	fileStorage, err := storage.NewFileStorage(filepath.Join(cfg.DataDir, "exports"))
	if err != nil {
		return fmt.Errorf("创建文件存储失败: %w", err)
	}
	container.Register(di.ServiceStorage, fileStorage)
	container.Register(di.ServiceExport, services.NewExportService(studio, fileStorage))

	// 5. 推送中心
	hub := api.NewHub()
	container.Register(di.ServiceHub, hub)

	studio.Subscribe(hub.PublishSnapshot)
	gate.OnChange(hub.PublishGate)
	gate.OnChange(func(status auth.GateStatus) {
		if !status.HasCredential {
			return
		}
		if err := config.UpdateAPIKey(gate.Key()); err != nil {
			utils.GetLogger().Warn("同步凭证到配置失败", map[string]interface{}{"err": err.Error()})
		}
	})

	return nil
}

// Run 启动HTTP服务器并阻塞到收到停止信号
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("应用未初始化")
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	serverErr := make(chan error, 1)
	go func() {
		utils.GetLogger().Info("服务器启动", map[string]interface{}{"port": app.config.Port})
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-app.stopChan:
		utils.GetLogger().Info("正在关闭服务器", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := app.server.Shutdown(ctx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	utils.GetLogger().Info("服务器已关闭", nil)
	return nil
}

// cleanup 释放推送中心与日志文件
func (a *App) cleanup() {
	container := di.GetContainer()
	if hub, err := di.Resolve[*api.Hub](container, di.ServiceHub); err == nil {
		hub.Stop()
	}
	if a.config != nil {
		if err := config.SaveConfig(); err != nil {
			utils.GetLogger().Warn("保存配置失败", map[string]interface{}{"err": err.Error()})
		}
	}
	utils.GetLogger().Close()
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 是否处于调试模式
func IsDebugMode() bool {
	instanceMutex.Lock()
	defer instanceMutex.Unlock()
	return instance != nil && instance.config != nil && instance.config.DebugMode
}
