package services

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/llm"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
)

func firstFrame(t *testing.T, s *models.Series) (models.Issue, models.Beat, models.Frame) {
	t.Helper()
	issue := s.Story.Issues[0]
	if len(issue.Beats) == 0 || len(issue.Beats[0].Frames) == 0 {
		t.Fatal("第一期没有画格")
	}
	return issue, issue.Beats[0], issue.Beats[0].Frames[0]
}

func TestInitializeSeriesScenario(t *testing.T) {
	ts := initializedStudio(t, false)
	s := ts.studio.Snapshot()

	if s.Title != "808 Chambers" || s.Version != 1 {
		t.Errorf("标题或版本错误: %s v%d", s.Title, s.Version)
	}
	if len(s.Cast) != 3 {
		t.Fatalf("期望3名角色, 实际 %d", len(s.Cast))
	}
	for _, member := range s.Cast {
		if !member.CanonLocked || member.OutfitCount != 1 || member.ExpressionCount != 1 {
			t.Errorf("角色 %s 的初始设定错误: %+v", member.Name, member)
		}
	}
	if s.Cast[2].Role != models.RoleSupporting {
		t.Errorf("未知角色定位应归为 Supporting, 实际 %s", s.Cast[2].Role)
	}

	if len(s.Story.Issues) != 3 {
		t.Fatalf("期望3期, 实际 %d", len(s.Story.Issues))
	}
	for _, issue := range s.Story.Issues {
		if issue.Status != models.StatusBlueprint || len(issue.Beats) != 0 {
			t.Errorf("新期应为 Blueprint 且没有节拍: %+v", issue)
		}
	}

	if s.Style.CutPack != models.DefaultCutPack || s.Style.CanonLock != models.DefaultCanonLock || s.Story.Arc != models.DefaultArc {
		t.Errorf("默认风格错误: %+v %+v", s.Style, s.Story)
	}
	if ts.studio.View() != models.ViewDashboard {
		t.Error("初始化后应进入 dashboard 视图")
	}

	prompt := ts.provider.lastTextPrompt()
	if !strings.Contains(prompt, "rival gangs fight over a recording studio") || !strings.Contains(prompt, `"808 Chambers"`) {
		t.Errorf("初始化提示应包含标题与前提: %s", prompt)
	}
	if !strings.Contains(prompt, "English") {
		t.Errorf("初始化提示应包含写作语言: %s", prompt)
	}
}

func TestInitializeSeriesModes(t *testing.T) {
	for _, tt := range []struct {
		mode    models.OriginMode
		premise string
		want    string
	}{
		{models.OriginScratch, "ignored", "A clean slate"},
		{models.OriginPremise, "", "A clean slate"},
		{models.OriginReference, "Jian: lanky producer", "sketches and style sheets"},
	} {
		ts := newTestStudio(t)
		if _, err := ts.studio.InitializeSeries(context.Background(), InitRequest{Title: "T", Mode: tt.mode, Premise: tt.premise}); err != nil {
			t.Fatalf("%s 初始化失败: %v", tt.mode, err)
		}
		if !strings.Contains(ts.provider.lastTextPrompt(), tt.want) {
			t.Errorf("%s 模式的提示应包含 %q", tt.mode, tt.want)
		}
		if len(ts.studio.Snapshot().Cast) != 3 || len(ts.studio.Snapshot().Story.Issues) != 3 {
			t.Errorf("%s 模式的结果形状应固定为 3/3", tt.mode)
		}
	}
}

func TestInitializeSeriesValidation(t *testing.T) {
	ts := newTestStudio(t)
	ctx := context.Background()

	cases := []InitRequest{
		{Title: "   "},
		{Title: "T", Mode: "blank-ish"},
		{Title: "T", CutPack: "Oil Painting"},
		{Title: "T", Arc: "Space Opera"},
		{Title: "T", Language: "not a tag!"},
	}
	for _, req := range cases {
		if _, err := ts.studio.InitializeSeries(ctx, req); !errors.IsValidationError(err) {
			t.Errorf("%+v 应返回验证错误, 实际 %v", req, err)
		}
	}
	if ts.provider.textCalls() != 0 {
		t.Error("验证失败时不应调用生成服务")
	}

	ts.gate.Invalidate("test")
	if _, err := ts.studio.InitializeSeries(ctx, InitRequest{Title: "T"}); !errors.IsCredentialRequiredError(err) {
		t.Errorf("凭证失效时应返回 credential_required, 实际 %v", err)
	}
	if ts.provider.textCalls() != 0 {
		t.Error("凭证失效时不应调用生成服务")
	}
	if ts.studio.Snapshot() != nil {
		t.Error("失败的初始化不应创建聚合")
	}
}

func TestInitializeSeriesMalformed(t *testing.T) {
	for name, text := range map[string]string{
		"too few cast":    initJSON(2, 3),
		"too few issues":  initJSON(3, 2),
		"not json":        "I am sorry, I cannot do that.",
		"missing outline": `{"cast": []}`,
	} {
		ts := newTestStudio(t)
		ts.provider.setComplete(func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: text}, nil
		})

		_, err := ts.studio.InitializeSeries(context.Background(), InitRequest{Title: "T"})
		if !errors.IsMalformedResponseError(err) {
			t.Errorf("%s: 应返回 malformed_response, 实际 %v", name, err)
		}
		if ts.studio.Snapshot() != nil {
			t.Errorf("%s: 失败时不应创建聚合", name)
		}
		if !ts.gate.Validate() {
			t.Errorf("%s: 格式错误不应使凭证失效", name)
		}
	}
}

func TestInitializeSeriesTrimsExtras(t *testing.T) {
	ts := newTestStudio(t)
	ts.provider.setComplete(func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Text: initJSON(4, 4)}, nil
	})

	s, err := ts.studio.InitializeSeries(context.Background(), InitRequest{Title: "T"})
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	if len(s.Cast) != 3 || len(s.Story.Issues) != 3 {
		t.Errorf("多余的角色与大纲应被截断: %d/%d", len(s.Cast), len(s.Story.Issues))
	}
}

func TestInitializeFailureKeepsExistingSeries(t *testing.T) {
	ts := initializedStudio(t, false)
	before := ts.studio.Snapshot()

	ts.provider.setComplete(func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, llm.ClassifyError(503, "overloaded")
	})
	_, err := ts.studio.InitializeSeries(context.Background(), InitRequest{Title: "Other"})
	if !errors.IsTransportError(err) {
		t.Fatalf("应返回 transport 错误, 实际 %v", err)
	}
	if ts.studio.Snapshot() != before {
		t.Error("失败的初始化不应替换现有聚合")
	}
}

func TestDraftIssueScriptScenario(t *testing.T) {
	ts := initializedStudio(t, false)
	issue := ts.studio.Snapshot().Story.Issues[0]
	if issue.Title != "Pilot" {
		t.Fatalf("夹具错误: %s", issue.Title)
	}

	s, err := ts.studio.DraftIssueScript(context.Background(), issue.ID)
	if err != nil {
		t.Fatalf("编写剧本失败: %v", err)
	}

	drafted, _, _ := s.FindIssue(issue.ID)
	if drafted.Status != models.StatusBoarded {
		t.Errorf("状态应为 Boarded, 实际 %s", drafted.Status)
	}
	if len(drafted.Beats) != 3 {
		t.Fatalf("期望3个节拍, 实际 %d", len(drafted.Beats))
	}
	for _, beat := range drafted.Beats {
		if len(beat.Frames) < 2 || len(beat.Frames) > 3 {
			t.Errorf("节拍 %s 的画格数应为2-3, 实际 %d", beat.ID, len(beat.Frames))
		}
		if beat.Stakes != models.StakesLocal || beat.Energy != models.EnergyTense {
			t.Errorf("节拍默认值错误: %s/%s", beat.Stakes, beat.Energy)
		}
		for _, frame := range beat.Frames {
			if frame.BeatDescription == "" || frame.IsLoading || frame.PlateURL != "" {
				t.Errorf("新画格状态错误: %+v", frame)
			}
		}
	}

	prompt := ts.provider.lastTextPrompt()
	for _, want := range []string{"Issue: Pilot", "Jian discovers the 808 Chambers", "Cut Pack: " + models.DefaultCutPack, "Arc: " + models.DefaultArc} {
		if !strings.Contains(prompt, want) {
			t.Errorf("剧本提示缺少 %q: %s", want, prompt)
		}
	}

	// 其他期不受影响
	other, _, _ := s.FindIssue(s.Story.Issues[1].ID)
	if other.Status != models.StatusBlueprint || len(other.Beats) != 0 {
		t.Error("其他期不应被修改")
	}
}

func TestDraftIssueScriptMalformed(t *testing.T) {
	for name, text := range map[string]string{
		"two beats":         scriptJSON(2, 2),
		"one frame":         scriptJSON(2, 1, 2),
		"empty description": strings.Replace(scriptJSON(2, 2, 2), "action beat 2 frame 1", "", 1),
	} {
		ts := initializedStudio(t, false)
		before := ts.studio.Snapshot()
		ts.provider.setComplete(func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: text}, nil
		})

		_, err := ts.studio.DraftIssueScript(context.Background(), before.Story.Issues[0].ID)
		if !errors.IsMalformedResponseError(err) {
			t.Errorf("%s: 应返回 malformed_response, 实际 %v", name, err)
		}
		if ts.studio.Snapshot() != before {
			t.Errorf("%s: 失败时状态应保持不变", name)
		}
	}
}

func TestDraftIssueScriptTrimsExtras(t *testing.T) {
	ts := initializedStudio(t, false)
	ts.provider.setComplete(func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Text: scriptJSON(4, 2, 3, 2)}, nil
	})

	s, err := ts.studio.DraftIssueScript(context.Background(), ts.studio.Snapshot().Story.Issues[0].ID)
	if err != nil {
		t.Fatalf("编写剧本失败: %v", err)
	}
	beats := s.Story.Issues[0].Beats
	if len(beats) != 3 || len(beats[0].Frames) != 3 {
		t.Errorf("多余的节拍与画格应被截断: %d 节拍, 首节拍 %d 画格", len(beats), len(beats[0].Frames))
	}
}

func TestDraftIssueScriptPreconditions(t *testing.T) {
	ts := newTestStudio(t)
	if _, err := ts.studio.DraftIssueScript(context.Background(), "missing"); !errors.IsNotFoundError(err) {
		t.Errorf("没有系列时应返回 not_found, 实际 %v", err)
	}

	ts = initializedStudio(t, false)
	if _, err := ts.studio.DraftIssueScript(context.Background(), "missing"); !errors.IsNotFoundError(err) {
		t.Errorf("未知期应返回 not_found, 实际 %v", err)
	}
}

func TestRedraftNeverRegressesStatus(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()
	issue := ts.studio.Snapshot().Story.Issues[0]

	for _, beat := range issue.Beats {
		if _, err := ts.studio.ShootBeat(ctx, issue.ID, beat.ID); err != nil {
			t.Fatalf("拍摄失败: %v", err)
		}
	}
	shot, _, _ := ts.studio.Snapshot().FindIssue(issue.ID)
	if shot.Status != models.StatusShot {
		t.Fatalf("全部拍摄后应为 Shot, 实际 %s", shot.Status)
	}

	s, err := ts.studio.DraftIssueScript(ctx, issue.ID)
	if err != nil {
		t.Fatalf("重写剧本失败: %v", err)
	}
	if s.Story.Issues[0].Status != models.StatusShot {
		t.Errorf("重写剧本不应使状态倒退, 实际 %s", s.Story.Issues[0].Status)
	}
}

func TestShootFrameEmptyResult(t *testing.T) {
	ts := initializedStudio(t, true)
	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return &llm.ImageResponse{}, nil
	})

	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())
	s, err := ts.studio.ShootFrame(context.Background(), issue.ID, beat.ID, frame.ID)
	if err != nil {
		t.Fatalf("空结果不应视为错误: %v", err)
	}

	got, _ := s.FindFrame(issue.ID, beat.ID, frame.ID)
	if got.PlateURL != "" || got.IsLoading || got.RenderError != "" {
		t.Errorf("空结果后画格状态错误: %+v", got)
	}
}

func TestShootFrameSuccess(t *testing.T) {
	ts := initializedStudio(t, true)
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())

	s, err := ts.studio.ShootFrame(context.Background(), issue.ID, beat.ID, frame.ID)
	if err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}

	got, _ := s.FindFrame(issue.ID, beat.ID, frame.ID)
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	if got.PlateURL != want || got.IsLoading {
		t.Errorf("拍摄结果错误: %+v", got)
	}

	images := ts.provider.images()
	if len(images) != 1 || images[0].AspectRatio != FrameAspectRatio {
		t.Errorf("应以 16:9 请求一次图像: %+v", images)
	}
	if s.Story.Issues[0].Status != models.StatusBoarded {
		t.Error("部分画格拍摄后状态应保持 Boarded")
	}
}

func TestShootFrameTransportFailure(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())

	// 先拍一次，确认失败不会清除已有结果
	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID); err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}
	previous, _ := ts.studio.Snapshot().FindFrame(issue.ID, beat.ID, frame.ID)

	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return nil, llm.ClassifyError(500, "internal error")
	})
	_, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID)
	if !errors.IsTransportError(err) {
		t.Fatalf("应返回 transport 错误, 实际 %v", err)
	}

	got, _ := ts.studio.Snapshot().FindFrame(issue.ID, beat.ID, frame.ID)
	if got.IsLoading {
		t.Error("失败后应清除 IsLoading")
	}
	if got.RenderError != "TRANSPORT_FAILED" {
		t.Errorf("失败后应记录错误代码, 实际 %q", got.RenderError)
	}
	if got.PlateURL != previous.PlateURL {
		t.Error("失败不应改变已有结果")
	}
	if !ts.gate.Validate() {
		t.Error("传输错误不应使凭证失效")
	}
}

func TestShootFrameAuthorizationFailure(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())

	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return nil, llm.ClassifyError(400, "Requested entity was not found.")
	})
	_, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID)
	if !errors.IsAuthorizationError(err) {
		t.Fatalf("应返回 authorization 错误, 实际 %v", err)
	}
	if ts.gate.Validate() || !ts.gate.NeedsReentry() {
		t.Error("授权失败应使凭证门失效")
	}

	got, _ := ts.studio.Snapshot().FindFrame(issue.ID, beat.ID, frame.ID)
	if got.IsLoading || got.RenderError != "AUTHORIZATION_FAILED" {
		t.Errorf("授权失败后画格状态错误: %+v", got)
	}

	// 不自动重试：在重新输入凭证之前所有生成操作都被拒绝
	calls := len(ts.provider.images())
	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID); !errors.IsCredentialRequiredError(err) {
		t.Errorf("重新输入之前应返回 credential_required, 实际 %v", err)
	}
	if len(ts.provider.images()) != calls {
		t.Error("凭证失效时不应发出请求")
	}

	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return &llm.ImageResponse{Data: pngBytes}, nil
	})
	if err := ts.gen.UpdateCredential("fresh-key"); err != nil {
		t.Fatalf("重新输入凭证失败: %v", err)
	}
	s, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID)
	if err != nil {
		t.Fatalf("重新输入后拍摄失败: %v", err)
	}
	got, _ = s.FindFrame(issue.ID, beat.ID, frame.ID)
	if !strings.HasPrefix(got.PlateURL, "data:image/jpeg;base64,") || got.RenderError != "" {
		t.Errorf("缺少 MIME 类型时应默认 image/jpeg 并清除错误: %+v", got)
	}
}

func TestShootFrameLoadingVisibleWhileInFlight(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())
	otherFrame := beat.Frames[1]

	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID); err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}
	previous, _ := ts.studio.Snapshot().FindFrame(issue.ID, beat.ID, frame.ID)

	started := make(chan struct{})
	unblock := make(chan struct{})
	ts.provider.setImage(func(req llm.ImageRequest) (*llm.ImageResponse, error) {
		if strings.Contains(req.Prompt, frame.BeatDescription) {
			close(started)
			<-unblock
			return &llm.ImageResponse{Data: []byte("second"), MIMEType: "image/webp"}, nil
		}
		return &llm.ImageResponse{Data: pngBytes, MIMEType: "image/png"}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("渲染请求没有发出")
	}

	inFlight, _ := ts.studio.Snapshot().FindFrame(issue.ID, beat.ID, frame.ID)
	if !inFlight.IsLoading {
		t.Error("请求进行中 IsLoading 应为 true")
	}
	if inFlight.PlateURL != previous.PlateURL {
		t.Error("请求进行中旧结果应保持不变")
	}

	ops := ts.studio.InFlight()
	if len(ops) != 1 || ops[0].Key != FrameKey(frame.ID) || ops[0].Kind != OpShoot {
		t.Errorf("进行中的操作错误: %+v", ops)
	}

	// 同一画格的第二次拍摄被拒绝，不同画格互不影响
	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID); !errors.IsConflictError(err) {
		t.Errorf("同一画格重复拍摄应返回 conflict, 实际 %v", err)
	}
	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, otherFrame.ID); err != nil {
		t.Errorf("不同画格应可并行拍摄: %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}

	final := ts.studio.Snapshot()
	got, _ := final.FindFrame(issue.ID, beat.ID, frame.ID)
	other, _ := final.FindFrame(issue.ID, beat.ID, otherFrame.ID)
	if got.IsLoading || !strings.HasPrefix(got.PlateURL, "data:image/webp;base64,") {
		t.Errorf("完成后的画格状态错误: %+v", got)
	}
	if !other.HasPlate() {
		t.Error("交错完成的另一画格结果不应丢失")
	}
	if len(ts.studio.InFlight()) != 0 {
		t.Error("完成后不应有进行中的操作")
	}
}

func TestShootFrameAsync(t *testing.T) {
	ts := initializedStudio(t, true)
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())

	unblock := make(chan struct{})
	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		<-unblock
		return &llm.ImageResponse{Data: pngBytes, MIMEType: "image/png"}, nil
	})

	done := make(chan *models.Series, 4)
	unsubscribe := ts.studio.Subscribe(func(s *models.Series) { done <- s })
	defer unsubscribe()

	loading, err := ts.studio.ShootFrameAsync(context.Background(), issue.ID, beat.ID, frame.ID)
	if err != nil {
		t.Fatalf("异步拍摄失败: %v", err)
	}
	got, _ := loading.FindFrame(issue.ID, beat.ID, frame.ID)
	if !got.IsLoading {
		t.Error("异步拍摄应立即返回加载中的快照")
	}
	<-done // 加载状态

	close(unblock)
	select {
	case s := <-done:
		got, _ := s.FindFrame(issue.ID, beat.ID, frame.ID)
		if got.IsLoading || !got.HasPlate() {
			t.Errorf("后台完成后的画格状态错误: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("后台渲染没有完成")
	}
}

func TestShootFramePreconditions(t *testing.T) {
	ts := newTestStudio(t)
	if _, err := ts.studio.ShootFrame(context.Background(), "i", "b", "f"); !errors.IsNotFoundError(err) {
		t.Errorf("没有系列时应返回 not_found, 实际 %v", err)
	}

	ts = initializedStudio(t, true)
	issue, beat, _ := firstFrame(t, ts.studio.Snapshot())
	if _, err := ts.studio.ShootFrame(context.Background(), issue.ID, beat.ID, "missing"); !errors.IsNotFoundError(err) {
		t.Errorf("未知画格应返回 not_found, 实际 %v", err)
	}
	if len(ts.provider.images()) != 0 {
		t.Error("前置条件失败时不应发出请求")
	}
}

func TestRenderPromptCarriesWholeCast(t *testing.T) {
	ts := initializedStudio(t, true)
	s := ts.studio.Snapshot()
	issue, beat, frame := firstFrame(t, s)

	if _, err := ts.studio.ShootFrame(context.Background(), issue.ID, beat.ID, frame.ID); err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}

	prompt := ts.provider.images()[0].Prompt
	for _, member := range s.Cast {
		if !strings.Contains(prompt, member.Appearance) || !strings.Contains(prompt, member.Name) {
			t.Errorf("渲染提示缺少角色 %s 的外观: %s", member.Name, prompt)
		}
	}
	for _, want := range []string{"FRAME SHOOT.", "Art Direction: " + models.DefaultCutPack, "ACTION: " + frame.BeatDescription, "Camera: " + frame.Camera, "Dialogue: " + frame.Dialogue} {
		if !strings.Contains(prompt, want) {
			t.Errorf("渲染提示缺少 %q: %s", want, prompt)
		}
	}
}

func TestSnapshotsAreNeverMutated(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()

	captured := ts.studio.Snapshot()
	frozen := mustJSON(t, captured)

	issue, beat, frame := firstFrame(t, captured)
	if _, err := ts.studio.ShootFrame(ctx, issue.ID, beat.ID, frame.ID); err != nil {
		t.Fatalf("拍摄失败: %v", err)
	}
	if _, err := ts.studio.DraftIssueScript(ctx, captured.Story.Issues[1].ID); err != nil {
		t.Fatalf("编写剧本失败: %v", err)
	}
	if _, err := ts.studio.RenderPortrait(ctx, captured.Cast[0].ID); err != nil {
		t.Fatalf("立绘失败: %v", err)
	}
	ts.provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return nil, llm.ClassifyError(500, "boom")
	})
	ts.studio.ShootFrame(ctx, issue.ID, beat.ID, beat.Frames[1].ID)

	if mustJSON(t, captured) != frozen {
		t.Fatal("之前捕获的快照被修改了")
	}

	current := ts.studio.Snapshot()
	if current == captured || current.Version <= captured.Version {
		t.Error("每次提交都应产生新的根节点和更高的版本")
	}

	old, err := ts.studio.SnapshotAt(captured.Version)
	if err != nil || old != captured {
		t.Errorf("应能按版本取回旧快照: %v", err)
	}
}

func TestIdentityUniqueness(t *testing.T) {
	provider := newMockProvider()
	gen := NewGenerationService(newGateForTest(), StaticProvider(provider), "", "")
	studio := NewStudioService(gen, gen.Gate(), StudioOptions{})
	ctx := context.Background()

	seen := make(map[string]bool)
	for round := 0; round < 2; round++ {
		s, err := studio.InitializeSeries(ctx, InitRequest{Title: "808 Chambers"})
		if err != nil {
			t.Fatalf("初始化失败: %v", err)
		}
		for _, issue := range s.Story.Issues {
			if _, err := studio.DraftIssueScript(ctx, issue.ID); err != nil {
				t.Fatalf("编写剧本失败: %v", err)
			}
		}
		// 同一期再写一次，新节拍也必须是新ID
		if _, err := studio.DraftIssueScript(ctx, s.Story.Issues[0].ID); err != nil {
			t.Fatalf("重写剧本失败: %v", err)
		}

		for _, snapID := range studio.Versions() {
			snap, _ := studio.SnapshotAt(snapID)
			for _, id := range snap.AllIDs() {
				seen[id] = true
			}
		}
	}

	// 每轮：3角色 + 3期 + 4次剧本 * (3节拍 + 7画格)
	want := 2 * (3 + 3 + 4*(3+7))
	if len(seen) != want {
		t.Errorf("期望 %d 个互不相同的ID, 实际 %d", want, len(seen))
	}
}

func TestStatusOnlyAdvances(t *testing.T) {
	ts := initializedStudio(t, false)
	ctx := context.Background()

	var mu sync.Mutex
	history := make(map[string][]models.IssueStatus)
	ts.studio.Subscribe(func(s *models.Series) {
		if s == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, issue := range s.Story.Issues {
			h := history[issue.ID]
			if len(h) == 0 || h[len(h)-1] != issue.Status {
				history[issue.ID] = append(h, issue.Status)
			}
		}
	})

	issueID := ts.studio.Snapshot().Story.Issues[0].ID
	if _, err := ts.studio.PublishIssue(ctx, issueID); !errors.IsValidationError(err) {
		t.Errorf("未拍摄完成的期不能发布, 实际 %v", err)
	}
	s, err := ts.studio.DraftIssueScript(ctx, issueID)
	if err != nil {
		t.Fatalf("编写剧本失败: %v", err)
	}
	for _, beat := range s.Story.Issues[0].Beats {
		if _, err := ts.studio.ShootBeat(ctx, issueID, beat.ID); err != nil {
			t.Fatalf("拍摄节拍失败: %v", err)
		}
	}
	if _, err := ts.studio.PublishIssue(ctx, issueID); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	ts.studio.DraftIssueScript(ctx, issueID)

	mu.Lock()
	defer mu.Unlock()
	got := history[issueID]
	want := []models.IssueStatus{models.StatusBoarded, models.StatusShot, models.StatusPublished}
	if len(got) != len(want) {
		t.Fatalf("状态序列错误: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("状态序列错误: %v", got)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Rank() < got[i-1].Rank() {
			t.Fatalf("状态发生倒退: %v", got)
		}
	}
}

func TestShootBeat(t *testing.T) {
	ts := initializedStudio(t, true)
	issue, beat, _ := firstFrame(t, ts.studio.Snapshot())

	s, err := ts.studio.ShootBeat(context.Background(), issue.ID, beat.ID)
	if err != nil {
		t.Fatalf("拍摄节拍失败: %v", err)
	}
	shotBeat, _ := s.FindBeat(issue.ID, beat.ID)
	for _, frame := range shotBeat.Frames {
		if !frame.HasPlate() || frame.IsLoading {
			t.Errorf("画格 %s 未完成: %+v", frame.ID, frame)
		}
	}
	if len(ts.provider.images()) != len(beat.Frames) {
		t.Errorf("每个画格应请求一次图像, 实际 %d", len(ts.provider.images()))
	}

	total, succeeded := ts.studio.Metrics().Totals(OpShoot)
	if total != int64(len(beat.Frames)) || succeeded != total {
		t.Errorf("拍摄指标错误: %d/%d", succeeded, total)
	}
}

func TestShootBeatReportsFirstError(t *testing.T) {
	ts := initializedStudio(t, true)
	issue, beat, frame := firstFrame(t, ts.studio.Snapshot())

	ts.provider.setImage(func(req llm.ImageRequest) (*llm.ImageResponse, error) {
		if strings.Contains(req.Prompt, frame.BeatDescription) {
			return nil, llm.ClassifyError(503, "overloaded")
		}
		return &llm.ImageResponse{Data: pngBytes}, nil
	})

	s, err := ts.studio.ShootBeat(context.Background(), issue.ID, beat.ID)
	if !errors.IsTransportError(err) {
		t.Fatalf("应返回第一个错误, 实际 %v", err)
	}
	failed, _ := s.FindFrame(issue.ID, beat.ID, frame.ID)
	if failed.IsLoading || failed.RenderError == "" {
		t.Errorf("失败画格状态错误: %+v", failed)
	}
	ok, _ := s.FindFrame(issue.ID, beat.ID, beat.Frames[1].ID)
	if !ok.HasPlate() {
		t.Error("其他画格应独立完成")
	}
}

func TestShootBeatStopsAfterAuthorizationFailure(t *testing.T) {
	provider := newMockProvider()
	gate := newGateForTest()
	gen := NewGenerationService(gate, StaticProvider(provider), "", "")
	studio := NewStudioService(gen, gate, StudioOptions{IDs: NewSequenceGenerator("id"), ShootConcurrency: 1})
	ctx := context.Background()

	series, err := studio.InitializeSeries(ctx, InitRequest{Title: "808 Chambers", Mode: models.OriginPremise, Premise: "rival gangs"})
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	issueID := series.Story.Issues[0].ID
	if _, err := studio.DraftIssueScript(ctx, issueID); err != nil {
		t.Fatalf("编写剧本失败: %v", err)
	}
	issue, beat, _ := firstFrame(t, studio.Snapshot())
	if len(beat.Frames) < 2 {
		t.Fatalf("节拍至少需要两个画格, 实际 %d", len(beat.Frames))
	}

	provider.setImage(func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return nil, llm.ClassifyError(403, "PERMISSION_DENIED: API key revoked")
	})
	s, err := studio.ShootBeat(ctx, issue.ID, beat.ID)
	if !errors.IsAuthorizationError(err) {
		t.Fatalf("应返回 authorization 错误, 实际 %v", err)
	}
	if got := len(provider.images()); got != 1 {
		t.Errorf("凭证失效后不应继续请求图像, 实际请求 %d 次", got)
	}
	if gate.Validate() {
		t.Error("授权失败应使凭证门失效")
	}

	for _, frame := range beat.Frames[1:] {
		got, _ := s.FindFrame(issue.ID, beat.ID, frame.ID)
		if got.IsLoading || got.HasPlate() {
			t.Errorf("未请求的画格不应改变: %+v", got)
		}
	}
}

func TestPublishRequiresEveryPlate(t *testing.T) {
	ts := initializedStudio(t, true)
	ctx := context.Background()
	issue := ts.studio.Snapshot().Story.Issues[0]

	for _, beat := range issue.Beats {
		if _, err := ts.studio.ShootBeat(ctx, issue.ID, beat.ID); err != nil {
			t.Fatalf("拍摄失败: %v", err)
		}
	}
	// 重写剧本后状态保持 Shot，但新画格都还没有图像
	s, err := ts.studio.DraftIssueScript(ctx, issue.ID)
	if err != nil {
		t.Fatalf("重写剧本失败: %v", err)
	}
	redrafted, _, _ := s.FindIssue(issue.ID)
	if redrafted.Status != models.StatusShot || redrafted.FullyShot() {
		t.Fatalf("重写后应为 Shot 且缺少图像, 实际 %s", redrafted.Status)
	}

	if _, err := ts.studio.PublishIssue(ctx, issue.ID); !errors.IsValidationError(err) {
		t.Errorf("缺少图像的期不能发布, 实际 %v", err)
	}
	after, _, _ := ts.studio.Snapshot().FindIssue(issue.ID)
	if after.Status != models.StatusShot {
		t.Errorf("发布失败不应改变状态, 实际 %s", after.Status)
	}
}

func TestRenderPortrait(t *testing.T) {
	ts := initializedStudio(t, false)
	member := ts.studio.Snapshot().Cast[1]

	s, err := ts.studio.RenderPortrait(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("立绘失败: %v", err)
	}
	got, _ := s.FindCast(member.ID)
	if !strings.HasPrefix(got.Portrait, "data:image/png;base64,") || got.IsGenerating {
		t.Errorf("立绘结果错误: %+v", got)
	}
	if got.Appearance != member.Appearance || !got.CanonLocked {
		t.Error("立绘不应改变设定")
	}

	req := ts.provider.images()[0]
	if req.AspectRatio != PortraitAspectRatio || !strings.Contains(req.Prompt, member.Appearance) {
		t.Errorf("立绘请求错误: %+v", req)
	}

	if _, err := ts.studio.RenderPortrait(context.Background(), "missing"); !errors.IsNotFoundError(err) {
		t.Errorf("未知角色应返回 not_found, 实际 %v", err)
	}
}

func TestResetAndHistory(t *testing.T) {
	ts := initializedStudio(t, true)
	first, _ := ts.studio.SnapshotAt(1)
	if first == nil || len(first.Story.Issues[0].Beats) != 0 {
		t.Fatal("版本1应为编写剧本之前的快照")
	}
	if versions := ts.studio.Versions(); len(versions) != 2 || versions[1] != 2 {
		t.Errorf("版本列表错误: %v", versions)
	}

	var notified []*models.Series
	ts.studio.Subscribe(func(s *models.Series) { notified = append(notified, s) })

	ts.studio.Reset()
	if ts.studio.Snapshot() != nil || ts.studio.View() != models.ViewOnboarding {
		t.Error("重置后应回到 onboarding")
	}
	if _, err := ts.studio.SnapshotAt(1); !errors.IsNotFoundError(err) {
		t.Error("重置后历史应被清除")
	}
	if len(notified) != 1 || notified[0] != nil {
		t.Errorf("重置应通知监听器 nil 快照: %v", notified)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	provider := newMockProvider()
	gate := newGateForTest()
	studio := NewStudioService(NewGenerationService(gate, StaticProvider(provider), "", ""), gate, StudioOptions{HistoryLimit: 2})
	ctx := context.Background()

	s, _ := studio.InitializeSeries(ctx, InitRequest{Title: "T"})
	for i := 0; i < 4; i++ {
		studio.DraftIssueScript(ctx, s.Story.Issues[0].ID)
	}
	versions := studio.Versions()
	if len(versions) != 3 || versions[0] != 3 || versions[2] != 5 {
		t.Errorf("历史应只保留最近2个版本加当前版本: %v", versions)
	}
}
