// cmd/showrunner/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:           "showrunner",
		Short:         "Showrunner Studio: draft and shoot serialized comics with a generation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("data-dir") {
				os.Setenv("DATA_DIR", dataDir)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", envOr("DATA_DIR", "data"), "Directory for config.json and exports")

	root.AddCommand(serveCmd(&dataDir))
	root.AddCommand(mcpCmd(&dataDir))
	root.AddCommand(draftCmd(&dataDir))
	root.AddCommand(catalogCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
