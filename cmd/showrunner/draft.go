// cmd/showrunner/draft.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Corphon/ShowrunnerStudio/internal/app"
	"github.com/Corphon/ShowrunnerStudio/internal/di"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
)

type draftOptions struct {
	title    string
	mode     string
	premise  string
	cutPack  string
	arc      string
	pace     string
	language string
	issue    int
	shoot    bool
	format   string
	save     string
}

func draftCmd(dataDir *string) *cobra.Command {
	opts := draftOptions{}
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Initialize a series, script one issue and optionally shoot it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.title) == "" {
				return fmt.Errorf("--title is required")
			}
			if opts.format == "md" {
				opts.format = models.ExportMarkdown
			}
			switch opts.format {
			case "table", models.ExportJSON, models.ExportYAML, models.ExportMarkdown:
			default:
				return fmt.Errorf("unknown --format %q", opts.format)
			}
			return runDraft(cmd, *dataDir, opts)
		},
	}
	cmd.Flags().StringVar(&opts.title, "title", "", "Series title")
	cmd.Flags().StringVar(&opts.mode, "mode", string(models.OriginScratch), "Origin mode: scratch, premise or refs")
	cmd.Flags().StringVar(&opts.premise, "premise", "", "Premise text or reference notes")
	cmd.Flags().StringVar(&opts.cutPack, "cut-pack", "", "Art style preset")
	cmd.Flags().StringVar(&opts.arc, "arc", "", "Story arc")
	cmd.Flags().StringVar(&opts.pace, "pace", "", "Pacing")
	cmd.Flags().StringVar(&opts.language, "language", "", "BCP 47 language tag")
	cmd.Flags().IntVar(&opts.issue, "issue", 1, "Issue number to script (0 skips scripting)")
	cmd.Flags().BoolVar(&opts.shoot, "shoot", false, "Render every frame of the scripted issue")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table, json, yaml or md")
	cmd.Flags().StringVar(&opts.save, "save", "", "Also save an export in this format (json, yaml or md)")
	return cmd
}

func runDraft(cmd *cobra.Command, dataDir string, opts draftOptions) error {
	utils.GetLogger().SetOutput(os.Stderr)

	studio, err := loadStudio(dataDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := studio.InitializeSeries(ctx, services.InitRequest{
		Title:    opts.title,
		Mode:     models.OriginMode(opts.mode),
		Premise:  opts.premise,
		CutPack:  opts.cutPack,
		Arc:      opts.arc,
		Pace:     opts.pace,
		Language: opts.language,
	})
	if err != nil {
		return fmt.Errorf("initialize series: %w", err)
	}

	if opts.issue > 0 {
		if opts.issue > len(snap.Story.Issues) {
			return fmt.Errorf("--issue %d out of range (series has %d issues)", opts.issue, len(snap.Story.Issues))
		}
		issueID := snap.Story.Issues[opts.issue-1].ID
		if snap, err = studio.DraftIssueScript(ctx, issueID); err != nil {
			return fmt.Errorf("draft issue %d: %w", opts.issue, err)
		}

		if opts.shoot {
			issue, _, _ := snap.FindIssue(issueID)
			for _, beat := range issue.Beats {
				if snap, err = studio.ShootBeat(ctx, issueID, beat.ID); err != nil {
					return fmt.Errorf("shoot beat %s: %w", beat.ID, err)
				}
			}
		}
	}

	out := cmd.OutOrStdout()
	if opts.format == "table" {
		fmt.Fprint(out, renderSeries(snap, shouldColorize(out)))
	} else {
		rendered, err := services.RenderSeries(snap, opts.format)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}

	if opts.save != "" {
		return saveExport(cmd.ErrOrStderr(), opts.save)
	}
	return nil
}

func saveExport(out io.Writer, format string) error {
	export, err := di.Resolve[*services.ExportService](app.GetDIContainer(), di.ServiceExport)
	if err != nil {
		return err
	}
	result, err := export.SaveExport(format)
	if err != nil {
		return fmt.Errorf("save export: %w", err)
	}
	fmt.Fprintf(out, "Saved %s\n", result.FilePath)
	return nil
}

// renderSeries 以表格形式输出角色、期与已写脚本的画格
func renderSeries(snap *models.Series, colorize bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  (%s, %s, %s)\n", snap.Title, snap.Style.CutPack, snap.Story.Arc, models.GetCatalog().LanguageLabel(snap.Language))

	castRows := make([][]string, 0, len(snap.Cast))
	for _, member := range snap.Cast {
		castRows = append(castRows, []string{member.Name, string(member.Role), member.Archetype, strings.Join(member.Traits, ", ")})
	}
	b.WriteString(renderTable("Cast", []string{"Name", "Role", "Archetype", "Traits"}, castRows, nil, colorize))
	b.WriteString("\n")

	issueRows := make([][]string, 0, len(snap.Story.Issues))
	for i, issue := range snap.Story.Issues {
		frames, shot := 0, 0
		for _, beat := range issue.Beats {
			for _, frame := range beat.Frames {
				frames++
				if frame.HasPlate() {
					shot++
				}
			}
		}
		issueRows = append(issueRows, []string{
			strconv.Itoa(i + 1),
			issue.Title,
			string(issue.Status),
			strconv.Itoa(len(issue.Beats)),
			fmt.Sprintf("%d/%d", shot, frames),
		})
	}
	b.WriteString(renderTable("Issues", []string{"#", "Title", "Status", "Beats", "Shot"}, issueRows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight}, colorize))
	b.WriteString("\n")

	for _, issue := range snap.Story.Issues {
		if len(issue.Beats) == 0 {
			continue
		}
		rows := [][]string{}
		for bi, beat := range issue.Beats {
			for fi, frame := range beat.Frames {
				plate := "-"
				switch {
				case frame.HasPlate():
					plate = "yes"
				case frame.RenderError != "":
					plate = frame.RenderError
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d.%d", bi+1, fi+1),
					frame.Camera,
					frame.BeatDescription,
					frameLine(frame),
					plate,
				})
			}
		}
		b.WriteString(renderTable(issue.Title, []string{"Frame", "Camera", "Description", "Text", "Plate"}, rows, nil, colorize))
		b.WriteString("\n")
	}
	return b.String()
}

func frameLine(frame models.Frame) string {
	switch {
	case frame.Dialogue != "" && frame.Caption != "":
		return frame.Caption + " / " + frame.Dialogue
	case frame.Dialogue != "":
		return frame.Dialogue
	default:
		return frame.Caption
	}
}
