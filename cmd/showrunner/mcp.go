// cmd/showrunner/mcp.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/Corphon/ShowrunnerStudio/internal/mcp"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
)

func mcpCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the studio as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			utils.GetLogger().SetOutput(os.Stderr)

			studio, err := loadStudio(*dataDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := mcp.NewServer(studio, version)
			return server.Run(ctx, &sdk.StdioTransport{})
		},
	}
}
