// cmd/showrunner/serve.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/Corphon/ShowrunnerStudio/internal/app"
)

func serveCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket push server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Initialize(*dataDir); err != nil {
				return err
			}
			return app.Run()
		},
	}
}
