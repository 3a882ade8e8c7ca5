// internal/models/series.go
package models

import (
	"time"
)

// Role 角色定位
type Role string

const (
	RoleProtagonist Role = "Protagonist"
	RoleAlly        Role = "Ally"
	RoleRival       Role = "Rival"
	RoleAntagonist  Role = "Antagonist"
	RoleSupporting  Role = "Supporting"
)

// NormalizeRole 将AI返回的角色定位规范化，未知值归为 Supporting
func NormalizeRole(raw string) Role {
	switch Role(raw) {
	case RoleProtagonist, RoleAlly, RoleRival, RoleAntagonist, RoleSupporting:
		return Role(raw)
	default:
		return RoleSupporting
	}
}

// Stakes 节拍的利害范围
type Stakes string

const (
	StakesPersonal Stakes = "Personal"
	StakesLocal    Stakes = "Local"
	StakesWorld    Stakes = "World"
)

// Energy 节拍的能量等级
type Energy string

const (
	EnergyCalm      Energy = "Calm"
	EnergyTense     Energy = "Tense"
	EnergyExplosive Energy = "Explosive"
)

// Emphasis 画格强调对象
type Emphasis string

const (
	EmphasisFace        Emphasis = "Face"
	EmphasisHands       Emphasis = "Hands"
	EmphasisEnvironment Emphasis = "Environment"
	EmphasisImpact      Emphasis = "Impact"
)

// Motion 画格动态
type Motion string

const (
	MotionStill   Motion = "Still"
	MotionKinetic Motion = "Kinetic"
)

// OriginMode 系列的起点模式
type OriginMode string

const (
	OriginScratch   OriginMode = "scratch"
	OriginPremise   OriginMode = "premise"
	OriginReference OriginMode = "refs"
)

// Valid 检查起点模式是否合法
func (m OriginMode) Valid() bool {
	switch m {
	case OriginScratch, OriginPremise, OriginReference:
		return true
	}
	return false
}

// 视图状态
const (
	ViewOnboarding = "onboarding"
	ViewDashboard  = "dashboard"
)

// 默认风格与故事参数
const (
	DefaultCutPack   = "Manhua Modern"
	DefaultMood      = "Balanced"
	DefaultCanonLock = "Strict"
	DefaultArc       = "Hero's Journey"
	DefaultPace      = "Balanced"
	DefaultLanguage  = "en-US"
	DefaultTitle     = "New Series"
)

// CastMember 表示演员阵容中的一名角色
type CastMember struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Role            Role     `json:"role" yaml:"role"`
	Archetype       string   `json:"archetype" yaml:"archetype"`
	Appearance      string   `json:"appearance" yaml:"appearance"`
	Portrait        string   `json:"portrait,omitempty" yaml:"-"`
	IsGenerating    bool     `json:"is_generating" yaml:"-"`
	RenderError     string   `json:"render_error,omitempty" yaml:"-"`
	CanonLocked     bool     `json:"canon_locked" yaml:"canon_locked"`
	OutfitCount     int      `json:"outfit_count" yaml:"outfit_count"`
	ExpressionCount int      `json:"expression_count" yaml:"expression_count"`
	Traits          []string `json:"traits" yaml:"traits"`
}

// StyleBible 美术指导参数
type StyleBible struct {
	CutPack   string `json:"cut_pack" yaml:"cut_pack"`
	Mood      string `json:"mood" yaml:"mood"`
	CanonLock string `json:"canon_lock" yaml:"canon_lock"` // Strict / Flexible
}

// Frame 最小可渲染单元：一格画面
type Frame struct {
	ID              string   `json:"id" yaml:"id"`
	Camera          string   `json:"camera" yaml:"camera"`
	Dialogue        string   `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`
	Caption         string   `json:"caption,omitempty" yaml:"caption,omitempty"`
	BeatDescription string   `json:"beat_description" yaml:"beat_description"`
	PlateURL        string   `json:"plate_url,omitempty" yaml:"-"`
	IsLoading       bool     `json:"is_loading" yaml:"-"`
	RenderError     string   `json:"render_error,omitempty" yaml:"-"`
	Emphasis        Emphasis `json:"emphasis,omitempty" yaml:"emphasis,omitempty"`
	Motion          Motion   `json:"motion,omitempty" yaml:"motion,omitempty"`
}

// HasPlate 是否已有渲染结果
func (f Frame) HasPlate() bool {
	return f.PlateURL != ""
}

// Beat 一组相关画格组成的叙事节拍
type Beat struct {
	ID      string  `json:"id" yaml:"id"`
	Summary string  `json:"summary" yaml:"summary"`
	Stakes  Stakes  `json:"stakes" yaml:"stakes"`
	Energy  Energy  `json:"energy" yaml:"energy"`
	Frames  []Frame `json:"frames" yaml:"frames"`
}

// Issue 一期连载
type Issue struct {
	ID      string      `json:"id" yaml:"id"`
	Title   string      `json:"title" yaml:"title"`
	Summary string      `json:"summary" yaml:"summary"`
	Beats   []Beat      `json:"beats" yaml:"beats"`
	Status  IssueStatus `json:"status" yaml:"status"`
}

// FullyShot 所有画格都已有渲染结果
func (i Issue) FullyShot() bool {
	if len(i.Beats) == 0 {
		return false
	}
	for _, beat := range i.Beats {
		if len(beat.Frames) == 0 {
			return false
		}
		for _, frame := range beat.Frames {
			if !frame.HasPlate() {
				return false
			}
		}
	}
	return true
}

// Story 故事结构
type Story struct {
	Arc    string  `json:"arc" yaml:"arc"`
	Pace   string  `json:"pace" yaml:"pace"`
	Issues []Issue `json:"issues" yaml:"issues"`
}

// Series 一部作品的根聚合。快照一旦发布即视为只读，所有修改都通过重建路径完成。
type Series struct {
	Title     string       `json:"title" yaml:"title"`
	Language  string       `json:"language" yaml:"language"`
	Cast      []CastMember `json:"cast" yaml:"cast"`
	Style     StyleBible   `json:"style" yaml:"style"`
	Story     Story        `json:"story" yaml:"story"`
	Version   uint64       `json:"version" yaml:"version"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
}

// FindIssue 按ID查找期
func (s *Series) FindIssue(issueID string) (Issue, int, bool) {
	for idx, issue := range s.Story.Issues {
		if issue.ID == issueID {
			return issue, idx, true
		}
	}
	return Issue{}, -1, false
}

// FindBeat 按ID查找节拍
func (s *Series) FindBeat(issueID, beatID string) (Beat, bool) {
	issue, _, ok := s.FindIssue(issueID)
	if !ok {
		return Beat{}, false
	}
	for _, beat := range issue.Beats {
		if beat.ID == beatID {
			return beat, true
		}
	}
	return Beat{}, false
}

// FindFrame 按ID查找画格
func (s *Series) FindFrame(issueID, beatID, frameID string) (Frame, bool) {
	beat, ok := s.FindBeat(issueID, beatID)
	if !ok {
		return Frame{}, false
	}
	for _, frame := range beat.Frames {
		if frame.ID == frameID {
			return frame, true
		}
	}
	return Frame{}, false
}

// FindCast 按ID查找角色
func (s *Series) FindCast(castID string) (CastMember, bool) {
	for _, member := range s.Cast {
		if member.ID == castID {
			return member, true
		}
	}
	return CastMember{}, false
}

// AllIDs 返回聚合内所有实体ID（按遍历顺序）
func (s *Series) AllIDs() []string {
	ids := make([]string, 0, len(s.Cast)+len(s.Story.Issues)*10)
	for _, member := range s.Cast {
		ids = append(ids, member.ID)
	}
	for _, issue := range s.Story.Issues {
		ids = append(ids, issue.ID)
		for _, beat := range issue.Beats {
			ids = append(ids, beat.ID)
			for _, frame := range beat.Frames {
				ids = append(ids, frame.ID)
			}
		}
	}
	return ids
}

// NewSeries 以默认风格创建一个空聚合
func NewSeries(title string) *Series {
	if title == "" {
		title = DefaultTitle
	}
	return &Series{
		Title:    title,
		Language: DefaultLanguage,
		Cast:     []CastMember{},
		Style: StyleBible{
			CutPack:   DefaultCutPack,
			Mood:      DefaultMood,
			CanonLock: DefaultCanonLock,
		},
		Story: Story{
			Arc:    DefaultArc,
			Pace:   DefaultPace,
			Issues: []Issue{},
		},
	}
}
