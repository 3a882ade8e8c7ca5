// internal/services/prompts.go
package services

import (
	"fmt"
	"strings"

	"github.com/Corphon/ShowrunnerStudio/internal/models"
)

const (
	FrameAspectRatio    = "16:9"
	PortraitAspectRatio = "1:1"
	cleanSlateConcept   = "A clean slate"
)

// BuildInitPrompt 初始化系列的提示：三名主要角色与三期大纲
func BuildInitPrompt(title string, mode models.OriginMode, premise, languageLabel string) string {
	concept := strings.TrimSpace(premise)
	if mode == models.OriginScratch || concept == "" {
		concept = cleanSlateConcept
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Act as a master Showrunner. Based on the title %q and concept %q, draft:\n", title, concept)
	if mode == models.OriginReference {
		b.WriteString("Work from the creator's own cast sketches and style sheets described in the concept; keep their names and looks.\n")
	}
	b.WriteString("1. A Cast Roster of 3 primary characters with distinct archetypes and appearances.\n")
	b.WriteString("2. A 3-Issue story arc outline.\n")
	if languageLabel != "" {
		fmt.Fprintf(&b, "Write names, summaries and traits in %s.\n", languageLabel)
	}
	b.WriteString(`Output JSON: { "cast": [{ "name": "...", "role": "Protagonist", "archetype": "...", "appearance": "...", "traits": ["A", "B"] }], "outline": [{ "title": "...", "summary": "..." }] }`)
	return b.String()
}

// BuildScriptPrompt 为一期生成节拍与画格的提示
func BuildScriptPrompt(series *models.Series, issue models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Punch Up Dialogue and Beats for Issue: %s. Summary: %s.\n", issue.Title, issue.Summary)
	fmt.Fprintf(&b, "Cut Pack: %s. Arc: %s. Pace: %s.\n", series.Style.CutPack, series.Story.Arc, series.Story.Pace)
	b.WriteString("Break this into 3 high-energy Beats, each with 2-3 Frames.\n")
	b.WriteString("For each Frame provide: caption, punchy dialogue, and a vivid visual beatDescription in English.\n")
	b.WriteString(`Output JSON: { "beats": [{ "summary": "...", "stakes": "Local", "energy": "Tense", "frames": [{ "caption": "...", "dialogue": "...", "beatDescription": "...", "camera": "Wide" }] }] }`)
	return b.String()
}

// StyleContext 美术指导描述
func StyleContext(style models.StyleBible) string {
	direction := ""
	if pack, ok := models.GetCatalog().FindCutPack(style.CutPack); ok && pack.Direction != "" {
		direction = " " + pack.Direction + "."
	}
	return fmt.Sprintf("Art Direction: %s graphic novel.%s Mood: Cinematic. High fidelity ink and digital paint.", style.CutPack, direction)
}

// CastContext 全部角色的外观摘要，按阵容顺序
func CastContext(cast []models.CastMember) string {
	parts := make([]string, 0, len(cast))
	for _, member := range cast {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", member.Name, member.Role, member.Appearance))
	}
	return strings.Join(parts, ". ")
}

// BuildRenderPrompt 画格渲染提示，始终包含完整阵容作为设定参考
func BuildRenderPrompt(series *models.Series, frame models.Frame) string {
	prompt := fmt.Sprintf("FRAME SHOOT. %s. Cast Reference: %s. ACTION: %s. Camera: %s. Dialogue: %s.",
		StyleContext(series.Style),
		CastContext(series.Cast),
		frame.BeatDescription,
		frame.Camera,
		frame.Dialogue,
	)
	if frame.Emphasis != "" {
		prompt += fmt.Sprintf(" Emphasis: %s.", frame.Emphasis)
	}
	if frame.Motion != "" {
		prompt += fmt.Sprintf(" Motion: %s.", frame.Motion)
	}
	return prompt
}

// BuildPortraitPrompt 角色立绘提示
func BuildPortraitPrompt(series *models.Series, member models.CastMember) string {
	return fmt.Sprintf("%s. Character portrait. %s (%s): %s. Archetype: %s.",
		StyleContext(series.Style),
		member.Name,
		member.Role,
		member.Appearance,
		member.Archetype,
	)
}
