// internal/mcp/server.go
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
)

// Studio MCP 工具使用的工作室操作
type Studio interface {
	InitializeSeries(ctx context.Context, req services.InitRequest) (*models.Series, error)
	DraftIssueScript(ctx context.Context, issueID string) (*models.Series, error)
	ShootFrame(ctx context.Context, issueID, beatID, frameID string) (*models.Series, error)
	ShootBeat(ctx context.Context, issueID, beatID string) (*models.Series, error)
	Snapshot() *models.Series
	View() string
	InFlight() []services.Operation
	Reset()
}

// Server 通过 MCP 暴露工作室操作
type Server struct {
	studio Studio
	mcp    *sdk.Server
}

// NewServer 创建 MCP 服务器并注册工具
func NewServer(studio Studio, version string) *Server {
	s := &Server{
		studio: studio,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "showrunner-studio",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run 在给定传输上运行，直到 ctx 结束或连接关闭
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
