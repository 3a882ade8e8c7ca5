// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

const exportDir = "exports"

// ExportService 将当前快照渲染为可分享的文件。导出文件只是输出，不会被读回。
type ExportService struct {
	Studio  *StudioService
	Storage *storage.FileStorage
}

// NewExportService 创建导出服务
func NewExportService(studio *StudioService, fs *storage.FileStorage) *ExportService {
	return &ExportService{
		Studio:  studio,
		Storage: fs,
	}
}

// Export 渲染当前快照
func (s *ExportService) Export(format string) (*models.ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = models.ExportJSON
	}
	if format == "md" {
		format = models.ExportMarkdown
	}
	if !contains(models.ExportFormats, format) {
		return nil, errors.NewValidationError(
			fmt.Sprintf("不支持的导出格式: %s，支持的格式: %v", format, models.ExportFormats), nil)
	}

	snap := s.Studio.Snapshot()
	if snap == nil {
		return nil, errNoSeries()
	}

	content, err := RenderSeries(snap, format)
	if err != nil {
		return nil, err
	}

	return &models.ExportResult{
		Title:       snap.Title,
		Format:      format,
		Version:     snap.Version,
		Content:     content,
		GeneratedAt: time.Now(),
		Stats:       models.ComputeStats(snap),
	}, nil
}

// SaveExport 渲染并保存到 exports/<slug>-v<version>.<ext>
func (s *ExportService) SaveExport(format string) (*models.ExportResult, error) {
	result, err := s.Export(format)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s-v%d.%s", Slugify(result.Title), result.Version, models.ExportExtension(result.Format))
	info, err := s.Storage.SaveTextFile(exportDir, filename, []byte(result.Content))
	if err != nil {
		return nil, fmt.Errorf("保存导出文件失败: %w", err)
	}

	result.FilePath = info.Path
	result.FileSize = info.Size
	return result, nil
}

// ListExports 列出已保存的导出文件
func (s *ExportService) ListExports() ([]string, error) {
	return s.Storage.ListFiles(exportDir)
}

// RenderSeries 按格式渲染快照
func RenderSeries(snap *models.Series, format string) (string, error) {
	switch format {
	case models.ExportJSON:
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return "", fmt.Errorf("序列化JSON失败: %w", err)
		}
		return string(data), nil
	case models.ExportYAML:
		data, err := yaml.Marshal(snap)
		if err != nil {
			return "", fmt.Errorf("序列化YAML失败: %w", err)
		}
		return string(data), nil
	case models.ExportMarkdown:
		return renderMarkdown(snap), nil
	default:
		return "", errors.NewValidationError("不支持的导出格式: "+format, nil)
	}
}

// renderMarkdown 剧本式文档：角色表，然后逐期、逐节拍、逐画格。图像只引用不内嵌。
func renderMarkdown(snap *models.Series) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", snap.Title)
	fmt.Fprintf(&b, "- Cut Pack: %s\n- Mood: %s\n- Arc: %s\n- Pace: %s\n- Language: %s\n- Version: %d\n\n",
		snap.Style.CutPack, snap.Style.Mood, snap.Story.Arc, snap.Story.Pace,
		models.GetCatalog().LanguageLabel(snap.Language), snap.Version)

	b.WriteString("## Cast\n\n")
	cast := table.NewWriter()
	cast.AppendHeader(table.Row{"Name", "Role", "Archetype", "Appearance", "Traits"})
	for _, member := range snap.Cast {
		cast.AppendRow(table.Row{member.Name, member.Role, member.Archetype, member.Appearance, strings.Join(member.Traits, ", ")})
	}
	b.WriteString(cast.RenderMarkdown())
	b.WriteString("\n\n")

	for i, issue := range snap.Story.Issues {
		fmt.Fprintf(&b, "## Issue %d: %s (%s)\n\n", i+1, issue.Title, issue.Status)
		if issue.Summary != "" {
			fmt.Fprintf(&b, "> %s\n\n", issue.Summary)
		}

		for j, beat := range issue.Beats {
			fmt.Fprintf(&b, "### Beat %d: %s\n\n", j+1, beat.Summary)
			fmt.Fprintf(&b, "_Stakes: %s, Energy: %s_\n\n", beat.Stakes, beat.Energy)

			for k, frame := range beat.Frames {
				fmt.Fprintf(&b, "%d. **[%s]** %s\n", k+1, frame.Camera, frame.BeatDescription)
				if frame.Caption != "" {
					fmt.Fprintf(&b, "   - Caption: %s\n", frame.Caption)
				}
				if frame.Dialogue != "" {
					fmt.Fprintf(&b, "   - Dialogue: \"%s\"\n", frame.Dialogue)
				}
				if frame.HasPlate() {
					fmt.Fprintf(&b, "   - Plate: frame %s (rendered)\n", frame.ID)
				}
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 生成文件名安全的标题
func Slugify(title string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "series"
	}
	return slug
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
