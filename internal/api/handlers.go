// internal/api/handlers.go
package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	Studio     *services.StudioService
	Export     *services.ExportService
	Generation *services.GenerationService
	Hub        *Hub
	Response   *ResponseHelper
	startedAt  time.Time
}

// NewHandler 创建API处理器
func NewHandler(studio *services.StudioService, export *services.ExportService, generation *services.GenerationService, hub *Hub) *Handler {
	return &Handler{
		Studio:     studio,
		Export:     export,
		Generation: generation,
		Hub:        hub,
		Response:   NewResponseHelper(),
		startedAt:  time.Now(),
	}
}

// SeriesView 系列查询结果
type SeriesView struct {
	View     string               `json:"view"`
	Series   *models.Series       `json:"series"`
	Versions []uint64             `json:"versions"`
	InFlight []services.Operation `json:"in_flight"`
}

// CredentialRequest 重新输入凭证
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

// ------------------------------------------------
// 状态与配置

// Health 存活检查与凭证状态
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":         "ok",
		"view":           h.Studio.View(),
		"credential":     h.Studio.Gate().Status(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// GetCredential 凭证门状态，不包含凭证本身
func (h *Handler) GetCredential(c *gin.Context) {
	h.Response.Success(c, h.Studio.Gate().Status())
}

// UpdateCredential 重新输入凭证
func (h *Handler) UpdateCredential(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.Generation.UpdateCredential(strings.TrimSpace(req.APIKey)); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Studio.Gate().Status(), "凭证已更新")
}

// GetCatalog 风格、弧线、节奏与语言选项
func (h *Handler) GetCatalog(c *gin.Context) {
	h.Response.Success(c, models.GetCatalog())
}

// GetMetrics 工作室指标与推送中心状态
func (h *Handler) GetMetrics(c *gin.Context) {
	metrics := h.Studio.Metrics().GetMetrics()
	metrics["in_flight"] = h.Studio.InFlight()
	metrics["websocket"] = h.Hub.Status()
	metrics["http"] = utils.GetMetricsCollector().GetMetrics()
	h.Response.Success(c, metrics)
}

// ------------------------------------------------
// 系列

// GetSeries 当前快照
func (h *Handler) GetSeries(c *gin.Context) {
	snap := h.Studio.Snapshot()
	if snap == nil {
		h.Response.NotFound(c, "系列尚未初始化")
		return
	}
	h.Response.Success(c, &SeriesView{
		View:     h.Studio.View(),
		Series:   snap,
		Versions: h.Studio.Versions(),
		InFlight: h.Studio.InFlight(),
	})
}

// GetSeriesVersion 历史快照
func (h *Handler) GetSeriesVersion(c *gin.Context) {
	version, err := strconv.ParseUint(c.Param("version"), 10, 64)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorVersionInvalid, "版本号必须是正整数")
		return
	}
	snap, err := h.Studio.SnapshotAt(version)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// CreateSeries 初始化系列
func (h *Handler) CreateSeries(c *gin.Context) {
	var req services.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	snap, err := h.Studio.InitializeSeries(c.Request.Context(), req)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, snap, "系列已创建")
}

// ResetSeries 丢弃当前系列
func (h *Handler) ResetSeries(c *gin.Context) {
	h.Studio.Reset()
	h.Response.Success(c, gin.H{"view": h.Studio.View()}, "系列已重置")
}

// DraftIssueScript 为一期编写剧本
func (h *Handler) DraftIssueScript(c *gin.Context) {
	snap, err := h.Studio.DraftIssueScript(c.Request.Context(), c.Param("issue_id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// PublishIssue 发布已拍摄完成的期
func (h *Handler) PublishIssue(c *gin.Context) {
	snap, err := h.Studio.PublishIssue(c.Request.Context(), c.Param("issue_id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// ShootBeat 拍摄一个节拍的全部画格
func (h *Handler) ShootBeat(c *gin.Context) {
	snap, err := h.Studio.ShootBeat(c.Request.Context(), c.Param("issue_id"), c.Param("beat_id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// ShootFrame 拍摄一个画格；async=true 时立即返回加载中的快照
func (h *Handler) ShootFrame(c *gin.Context) {
	issueID, beatID, frameID := c.Param("issue_id"), c.Param("beat_id"), c.Param("frame_id")

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		snap, err := h.Studio.ShootFrameAsync(c.Request.Context(), issueID, beatID, frameID)
		if err != nil {
			h.Response.FromError(c, err)
			return
		}
		h.Response.Accepted(c, snap, "渲染已开始")
		return
	}

	snap, err := h.Studio.ShootFrame(c.Request.Context(), issueID, beatID, frameID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// RenderPortrait 生成角色立绘
func (h *Handler) RenderPortrait(c *gin.Context) {
	snap, err := h.Studio.RenderPortrait(c.Request.Context(), c.Param("cast_id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, snap)
}

// ------------------------------------------------
// 导出

// ExportSeries 以下载方式返回导出内容
func (h *Handler) ExportSeries(c *gin.Context) {
	result, err := h.Export.Export(c.DefaultQuery("format", models.ExportJSON))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	filename := services.Slugify(result.Title) + "." + models.ExportExtension(result.Format)
	h.Response.ExportResponse(c, result, filename)
}

// SaveExport 保存导出文件
func (h *Handler) SaveExport(c *gin.Context) {
	result, err := h.Export.SaveExport(c.DefaultQuery("format", models.ExportJSON))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	// 响应中不重复返回内容
	result.Content = ""
	result.FilePath = filepath.Base(result.FilePath)
	h.Response.Created(c, result, "导出已保存")
}

// ListExports 已保存的导出文件
func (h *Handler) ListExports(c *gin.Context) {
	files, err := h.Export.ListExports()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, files)
}

// ------------------------------------------------
// WebSocket

// SeriesWebSocket 推送快照与凭证事件
func (h *Handler) SeriesWebSocket(c *gin.Context) {
	h.Hub.Serve(c, gin.H{
		"view":       h.Studio.View(),
		"series":     NewSnapshotEvent(h.Studio.Snapshot()),
		"credential": h.Studio.Gate().Status(),
	})
}
