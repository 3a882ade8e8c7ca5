// cmd/showrunner/studio.go
package main

import (
	"fmt"

	"github.com/Corphon/ShowrunnerStudio/internal/app"
	"github.com/Corphon/ShowrunnerStudio/internal/config"
	"github.com/Corphon/ShowrunnerStudio/internal/di"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
)

// loadStudio 初始化配置与服务，返回不带HTTP层的工作室服务
func loadStudio(dataDir string) (*services.StudioService, error) {
	if err := config.InitConfig(dataDir); err != nil {
		return nil, fmt.Errorf("初始化配置失败: %w", err)
	}
	if err := app.InitServices(); err != nil {
		return nil, err
	}
	return di.Resolve[*services.StudioService](app.GetDIContainer(), di.ServiceStudio)
}
