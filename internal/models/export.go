// internal/models/export.go
package models

import (
	"time"
)

// 导出格式
const (
	ExportJSON     = "json"
	ExportYAML     = "yaml"
	ExportMarkdown = "markdown"
)

// ExportFormats 支持的导出格式
var ExportFormats = []string{ExportJSON, ExportYAML, ExportMarkdown}

// ExportExtension 返回格式对应的文件扩展名
func ExportExtension(format string) string {
	switch format {
	case ExportYAML:
		return "yaml"
	case ExportMarkdown:
		return "md"
	default:
		return "json"
	}
}

// ExportResult 导出结果
type ExportResult struct {
	Title       string       `json:"title"`
	Format      string       `json:"format"`
	Version     uint64       `json:"version"`
	Content     string       `json:"content"`
	GeneratedAt time.Time    `json:"generated_at"`
	FilePath    string       `json:"file_path,omitempty"`
	FileSize    int64        `json:"file_size,omitempty"`
	Stats       *SeriesStats `json:"stats"`
}

// SeriesStats 系列统计
type SeriesStats struct {
	CastCount     int                 `json:"cast_count"`
	IssueCount    int                 `json:"issue_count"`
	BeatCount     int                 `json:"beat_count"`
	FrameCount    int                 `json:"frame_count"`
	PlatesShot    int                 `json:"plates_shot"`
	StatusSummary map[IssueStatus]int `json:"status_summary"`
}

// ComputeStats 统计系列的规模与进度
func ComputeStats(s *Series) *SeriesStats {
	stats := &SeriesStats{
		CastCount:     len(s.Cast),
		IssueCount:    len(s.Story.Issues),
		StatusSummary: make(map[IssueStatus]int),
	}
	for _, issue := range s.Story.Issues {
		stats.StatusSummary[issue.Status]++
		stats.BeatCount += len(issue.Beats)
		for _, beat := range issue.Beats {
			stats.FrameCount += len(beat.Frames)
			for _, frame := range beat.Frames {
				if frame.HasPlate() {
					stats.PlatesShot++
				}
			}
		}
	}
	return stats
}
