// cmd/showrunner/catalog.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/ShowrunnerStudio/internal/models"
)

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List cut packs, arcs, paces and languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			catalog := models.GetCatalog()

			rows := make([][]string, 0, len(catalog.CutPacks))
			for _, pack := range catalog.CutPacks {
				rows = append(rows, []string{pack.Name, pack.Direction})
			}
			fmt.Fprintln(out, renderTable("Cut packs", []string{"Name", "Direction"}, rows, nil, colorize))

			langs := make([]string, 0, len(catalog.Languages))
			for _, lang := range catalog.Languages {
				langs = append(langs, fmt.Sprintf("%s (%s)", lang.Name, lang.Code))
			}
			fmt.Fprintf(out, "Arcs:      %s\n", strings.Join(catalog.Arcs, ", "))
			fmt.Fprintf(out, "Paces:     %s\n", strings.Join(catalog.Paces, ", "))
			fmt.Fprintf(out, "Languages: %s\n", strings.Join(langs, ", "))
			return nil
		},
	}
}
