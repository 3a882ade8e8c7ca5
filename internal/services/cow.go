// internal/services/cow.go
package services

import (
	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
)

// 以下函数从不修改传入的快照：每次替换都会重建从叶子到根的整条路径，
// 未触及的分支与旧快照共享。

// replaceIssue 用 fn 的结果替换指定期
func replaceIssue(root *models.Series, issueID string, fn func(models.Issue) (models.Issue, error)) (*models.Series, error) {
	issue, idx, ok := root.FindIssue(issueID)
	if !ok {
		return nil, errors.NewNotFoundError("期不存在: "+issueID, nil)
	}

	updated, err := fn(issue)
	if err != nil {
		return nil, err
	}

	issues := make([]models.Issue, len(root.Story.Issues))
	copy(issues, root.Story.Issues)
	issues[idx] = updated

	next := *root
	next.Story.Issues = issues
	return &next, nil
}

// replaceBeat 用 fn 的结果替换指定节拍
func replaceBeat(root *models.Series, issueID, beatID string, fn func(models.Beat) (models.Beat, error)) (*models.Series, error) {
	return replaceIssue(root, issueID, func(issue models.Issue) (models.Issue, error) {
		idx := -1
		for i, beat := range issue.Beats {
			if beat.ID == beatID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return issue, errors.NewNotFoundError("节拍不存在: "+beatID, nil)
		}

		updated, err := fn(issue.Beats[idx])
		if err != nil {
			return issue, err
		}

		beats := make([]models.Beat, len(issue.Beats))
		copy(beats, issue.Beats)
		beats[idx] = updated
		issue.Beats = beats
		return issue, nil
	})
}

// replaceFrame 用 fn 的结果替换指定画格
func replaceFrame(root *models.Series, issueID, beatID, frameID string, fn func(models.Frame) models.Frame) (*models.Series, error) {
	return replaceBeat(root, issueID, beatID, func(beat models.Beat) (models.Beat, error) {
		idx := -1
		for i, frame := range beat.Frames {
			if frame.ID == frameID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return beat, errors.NewNotFoundError("画格不存在: "+frameID, nil)
		}

		frames := make([]models.Frame, len(beat.Frames))
		copy(frames, beat.Frames)
		frames[idx] = fn(beat.Frames[idx])
		beat.Frames = frames
		return beat, nil
	})
}

// replaceCast 用 fn 的结果替换指定角色
func replaceCast(root *models.Series, castID string, fn func(models.CastMember) models.CastMember) (*models.Series, error) {
	idx := -1
	for i, member := range root.Cast {
		if member.ID == castID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, errors.NewNotFoundError("角色不存在: "+castID, nil)
	}

	cast := make([]models.CastMember, len(root.Cast))
	copy(cast, root.Cast)
	cast[idx] = fn(root.Cast[idx])

	next := *root
	next.Cast = cast
	return &next, nil
}
