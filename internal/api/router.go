// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/ShowrunnerStudio/internal/config"
	"github.com/Corphon/ShowrunnerStudio/internal/di"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 从容器中取出服务并配置HTTP路由
func SetupRouter(container *di.Container) (*gin.Engine, error) {
	studio, err := di.Resolve[*services.StudioService](container, di.ServiceStudio)
	if err != nil {
		return nil, fmt.Errorf("工作室服务未正确初始化: %w", err)
	}
	export, err := di.Resolve[*services.ExportService](container, di.ServiceExport)
	if err != nil {
		return nil, fmt.Errorf("导出服务未正确初始化: %w", err)
	}
	generation, err := di.Resolve[*services.GenerationService](container, di.ServiceGeneration)
	if err != nil {
		return nil, fmt.Errorf("生成服务未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*Hub](container, di.ServiceHub)
	if err != nil {
		return nil, fmt.Errorf("推送中心未正确初始化: %w", err)
	}

	if cfg, err := di.Resolve[*config.AppConfig](container, di.ServiceConfig); err == nil && !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := NewHandler(studio, export, generation, hub)
	limiter := NewRateLimiter()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(requestLogger())
	r.Use(corsMiddleware())

	r.GET("/ws/series", handler.SeriesWebSocket)

	api := r.Group("/api")
	api.Use(DefaultRateLimit(limiter))
	{
		api.GET("/health", handler.Health)
		api.GET("/catalog", handler.GetCatalog)
		api.GET("/metrics", handler.GetMetrics)

		credentialGroup := api.Group("/credential")
		{
			credentialGroup.GET("", handler.GetCredential)
			credentialGroup.PUT("", handler.UpdateCredential)
		}

		seriesGroup := api.Group("/series")
		{
			seriesGroup.GET("", handler.GetSeries)
			seriesGroup.POST("", GenerationRateLimit(limiter), handler.CreateSeries)
			seriesGroup.DELETE("", handler.ResetSeries)
			seriesGroup.GET("/versions/:version", handler.GetSeriesVersion)

			exportGroup := seriesGroup.Group("/export")
			{
				exportGroup.GET("", handler.ExportSeries)
				exportGroup.POST("", handler.SaveExport)
				exportGroup.GET("/files", handler.ListExports)
			}

			// 生成类操作
			generate := seriesGroup.Group("", GenerationRateLimit(limiter))
			{
				generate.POST("/issues/:issue_id/script", handler.DraftIssueScript)
				generate.POST("/issues/:issue_id/beats/:beat_id/shoot", handler.ShootBeat)
				generate.POST("/issues/:issue_id/beats/:beat_id/frames/:frame_id/shoot", handler.ShootFrame)
				generate.POST("/cast/:cast_id/portrait", handler.RenderPortrait)
			}
			seriesGroup.POST("/issues/:issue_id/publish", handler.PublishIssue)
		}
	}

	return r, nil
}
