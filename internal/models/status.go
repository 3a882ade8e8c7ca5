// internal/models/status.go
package models

// IssueStatus 期的生命周期状态，只能前进
type IssueStatus string

const (
	StatusBlueprint IssueStatus = "Blueprint"
	StatusScripted  IssueStatus = "Scripted"
	StatusBoarded   IssueStatus = "Boarded"
	StatusShot      IssueStatus = "Shot"
	StatusPublished IssueStatus = "Published"
)

// StatusLadder 状态的先后顺序
var StatusLadder = []IssueStatus{
	StatusBlueprint,
	StatusScripted,
	StatusBoarded,
	StatusShot,
	StatusPublished,
}

// Rank 返回状态在阶梯中的位置，未知状态返回 -1
func (s IssueStatus) Rank() int {
	for idx, status := range StatusLadder {
		if status == s {
			return idx
		}
	}
	return -1
}

// CanAdvanceTo 目标状态是否严格在当前状态之后
func (s IssueStatus) CanAdvanceTo(target IssueStatus) bool {
	return target.Rank() > s.Rank()
}

// Advance 返回推进后的状态；目标不在当前之后时保持原状态
func (s IssueStatus) Advance(target IssueStatus) IssueStatus {
	if s.CanAdvanceTo(target) {
		return target
	}
	return s
}
