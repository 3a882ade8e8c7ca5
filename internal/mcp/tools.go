// internal/mcp/tools.go
package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/services"
)

type InitSeriesInput struct {
	Title    string `json:"title" jsonschema:"series title"`
	Mode     string `json:"mode,omitempty" jsonschema:"scratch, premise, or refs"`
	Premise  string `json:"premise,omitempty" jsonschema:"premise or reference notes"`
	CutPack  string `json:"cut_pack,omitempty" jsonschema:"art style preset"`
	Arc      string `json:"arc,omitempty" jsonschema:"story arc"`
	Pace     string `json:"pace,omitempty" jsonschema:"pacing"`
	Language string `json:"language,omitempty" jsonschema:"BCP 47 language tag"`
}

type DraftIssueScriptInput struct {
	IssueID string `json:"issue_id" jsonschema:"issue to script"`
}

type ShootFrameInput struct {
	IssueID string `json:"issue_id" jsonschema:"issue containing the frame"`
	BeatID  string `json:"beat_id" jsonschema:"beat containing the frame"`
	FrameID string `json:"frame_id" jsonschema:"frame to render"`
}

type ShootBeatInput struct {
	IssueID string `json:"issue_id" jsonschema:"issue containing the beat"`
	BeatID  string `json:"beat_id" jsonschema:"beat whose frames are rendered"`
}

type GetSeriesInput struct{}

type ResetSeriesInput struct{}

type FrameOutput struct {
	ID              string `json:"id"`
	Camera          string `json:"camera"`
	Caption         string `json:"caption,omitempty"`
	Dialogue        string `json:"dialogue,omitempty"`
	BeatDescription string `json:"beat_description"`
	HasPlate        bool   `json:"has_plate"`
	IsLoading       bool   `json:"is_loading"`
	RenderError     string `json:"render_error,omitempty"`
}

type BeatOutput struct {
	ID      string        `json:"id"`
	Summary string        `json:"summary"`
	Stakes  string        `json:"stakes"`
	Energy  string        `json:"energy"`
	Frames  []FrameOutput `json:"frames"`
}

type IssueOutput struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
	Status  string       `json:"status"`
	Beats   []BeatOutput `json:"beats"`
}

type CastOutput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Archetype   string   `json:"archetype"`
	Appearance  string   `json:"appearance"`
	Traits      []string `json:"traits"`
	HasPortrait bool     `json:"has_portrait"`
}

// SeriesOutput 快照摘要；图像只标记是否存在，不返回数据
type SeriesOutput struct {
	View     string        `json:"view"`
	Title    string        `json:"title,omitempty"`
	Version  uint64        `json:"version,omitempty"`
	CutPack  string        `json:"cut_pack,omitempty"`
	Arc      string        `json:"arc,omitempty"`
	Cast     []CastOutput  `json:"cast"`
	Issues   []IssueOutput `json:"issues"`
	InFlight []string      `json:"in_flight"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "init_series",
		Description: "Create a new series with a three-member cast and a three-issue outline",
	}, s.handleInitSeries)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "draft_issue_script",
		Description: "Write three beats of two to three frames for an issue",
	}, s.handleDraftIssueScript)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "shoot_frame",
		Description: "Render the image for one frame",
	}, s.handleShootFrame)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "shoot_beat",
		Description: "Render every frame of a beat",
	}, s.handleShootBeat)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_series",
		Description: "Return the current series snapshot",
	}, s.handleGetSeries)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "reset_series",
		Description: "Discard the current series",
	}, s.handleResetSeries)
}

func (s *Server) handleInitSeries(ctx context.Context, req *sdk.CallToolRequest, input InitSeriesInput) (*sdk.CallToolResult, SeriesOutput, error) {
	if input.Title == "" {
		return nil, SeriesOutput{}, fmt.Errorf("title is required")
	}
	snap, err := s.studio.InitializeSeries(ctx, services.InitRequest{
		Title:    input.Title,
		Mode:     models.OriginMode(input.Mode),
		Premise:  input.Premise,
		CutPack:  input.CutPack,
		Arc:      input.Arc,
		Pace:     input.Pace,
		Language: input.Language,
	})
	if err != nil {
		return nil, SeriesOutput{}, err
	}
	return nil, s.output(snap), nil
}

func (s *Server) handleDraftIssueScript(ctx context.Context, req *sdk.CallToolRequest, input DraftIssueScriptInput) (*sdk.CallToolResult, SeriesOutput, error) {
	if input.IssueID == "" {
		return nil, SeriesOutput{}, fmt.Errorf("issue_id is required")
	}
	snap, err := s.studio.DraftIssueScript(ctx, input.IssueID)
	if err != nil {
		return nil, SeriesOutput{}, err
	}
	return nil, s.output(snap), nil
}

func (s *Server) handleShootFrame(ctx context.Context, req *sdk.CallToolRequest, input ShootFrameInput) (*sdk.CallToolResult, SeriesOutput, error) {
	if input.IssueID == "" || input.BeatID == "" || input.FrameID == "" {
		return nil, SeriesOutput{}, fmt.Errorf("issue_id, beat_id and frame_id are required")
	}
	snap, err := s.studio.ShootFrame(ctx, input.IssueID, input.BeatID, input.FrameID)
	if err != nil {
		return nil, SeriesOutput{}, err
	}
	return nil, s.output(snap), nil
}

func (s *Server) handleShootBeat(ctx context.Context, req *sdk.CallToolRequest, input ShootBeatInput) (*sdk.CallToolResult, SeriesOutput, error) {
	if input.IssueID == "" || input.BeatID == "" {
		return nil, SeriesOutput{}, fmt.Errorf("issue_id and beat_id are required")
	}
	snap, err := s.studio.ShootBeat(ctx, input.IssueID, input.BeatID)
	if err != nil {
		return nil, SeriesOutput{}, err
	}
	return nil, s.output(snap), nil
}

func (s *Server) handleGetSeries(ctx context.Context, req *sdk.CallToolRequest, input GetSeriesInput) (*sdk.CallToolResult, SeriesOutput, error) {
	return nil, s.output(s.studio.Snapshot()), nil
}

func (s *Server) handleResetSeries(ctx context.Context, req *sdk.CallToolRequest, input ResetSeriesInput) (*sdk.CallToolResult, SeriesOutput, error) {
	s.studio.Reset()
	return nil, s.output(nil), nil
}

func (s *Server) output(snap *models.Series) SeriesOutput {
	out := seriesOutputFromModel(snap)
	out.View = s.studio.View()
	for _, op := range s.studio.InFlight() {
		out.InFlight = append(out.InFlight, op.Key)
	}
	return out
}

func seriesOutputFromModel(snap *models.Series) SeriesOutput {
	out := SeriesOutput{
		Cast:     []CastOutput{},
		Issues:   []IssueOutput{},
		InFlight: []string{},
	}
	if snap == nil {
		return out
	}

	out.Title = snap.Title
	out.Version = snap.Version
	out.CutPack = snap.Style.CutPack
	out.Arc = snap.Story.Arc

	for _, member := range snap.Cast {
		traits := append([]string{}, member.Traits...)
		out.Cast = append(out.Cast, CastOutput{
			ID:          member.ID,
			Name:        member.Name,
			Role:        string(member.Role),
			Archetype:   member.Archetype,
			Appearance:  member.Appearance,
			Traits:      traits,
			HasPortrait: member.Portrait != "",
		})
	}

	for _, issue := range snap.Story.Issues {
		issueOut := IssueOutput{
			ID:      issue.ID,
			Title:   issue.Title,
			Summary: issue.Summary,
			Status:  string(issue.Status),
			Beats:   make([]BeatOutput, 0, len(issue.Beats)),
		}
		for _, beat := range issue.Beats {
			beatOut := BeatOutput{
				ID:      beat.ID,
				Summary: beat.Summary,
				Stakes:  string(beat.Stakes),
				Energy:  string(beat.Energy),
				Frames:  make([]FrameOutput, 0, len(beat.Frames)),
			}
			for _, frame := range beat.Frames {
				beatOut.Frames = append(beatOut.Frames, FrameOutput{
					ID:              frame.ID,
					Camera:          frame.Camera,
					Caption:         frame.Caption,
					Dialogue:        frame.Dialogue,
					BeatDescription: frame.BeatDescription,
					HasPlate:        frame.HasPlate(),
					IsLoading:       frame.IsLoading,
					RenderError:     frame.RenderError,
				})
			}
			issueOut.Beats = append(issueOut.Beats, beatOut)
		}
		out.Issues = append(out.Issues, issueOut)
	}
	return out
}
