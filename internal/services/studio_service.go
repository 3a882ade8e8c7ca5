// internal/services/studio_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/auth"
	"github.com/Corphon/ShowrunnerStudio/internal/errors"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	castSize          = 3
	outlineSize       = 3
	beatsPerIssue     = 3
	minFramesPerBeat  = 2
	maxFramesPerBeat  = 3
	defaultCamera     = "Wide"
	defaultConcurrent = 3
	defaultHistory    = 32
)

// InitRequest 初始化系列的参数
type InitRequest struct {
	Title    string            `json:"title"`
	Mode     models.OriginMode `json:"mode"`
	Premise  string            `json:"premise,omitempty"`
	CutPack  string            `json:"cut_pack,omitempty"`
	Mood     string            `json:"mood,omitempty"`
	Arc      string            `json:"arc,omitempty"`
	Pace     string            `json:"pace,omitempty"`
	Language string            `json:"language,omitempty"`
}

// SnapshotListener 每次提交后收到新快照；重置后收到 nil
type SnapshotListener func(*models.Series)

// StudioOptions 工作室服务参数
type StudioOptions struct {
	IDs              IDGenerator
	ShootConcurrency int
	HistoryLimit     int
}

// StudioService 生产状态机：唯一拥有当前系列聚合的组件。
// 所有修改都以写时复制的方式针对最新根节点提交，生成请求从不持有锁。
type StudioService struct {
	client  GenerationClient
	gate    *auth.Gate
	ids     IDGenerator
	tracker *OperationTracker
	metrics *StudioMetrics
	logger  *utils.Logger

	shootConcurrency int
	historyLimit     int

	mutex   sync.RWMutex
	current *models.Series
	history []*models.Series

	notifyMutex   sync.Mutex
	listenerMutex sync.RWMutex
	listeners     map[int]SnapshotListener
	nextListener  int
}

// NewStudioService 创建工作室服务
func NewStudioService(client GenerationClient, gate *auth.Gate, opts StudioOptions) *StudioService {
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.ShootConcurrency <= 0 {
		opts.ShootConcurrency = defaultConcurrent
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistory
	}

	return &StudioService{
		client:           client,
		gate:             gate,
		ids:              opts.IDs,
		tracker:          NewOperationTracker(),
		metrics:          NewStudioMetrics(),
		logger:           utils.GetLogger(),
		shootConcurrency: opts.ShootConcurrency,
		historyLimit:     opts.HistoryLimit,
		listeners:        make(map[int]SnapshotListener),
	}
}

// ---------------------------------------------------------------------------
// 读取

// Snapshot 返回当前快照；没有系列时返回 nil。返回值只读。
func (s *StudioService) Snapshot() *models.Series {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current
}

// SnapshotAt 返回指定版本的快照
func (s *StudioService) SnapshotAt(version uint64) (*models.Series, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.current != nil && s.current.Version == version {
		return s.current, nil
	}
	for _, snap := range s.history {
		if snap.Version == version {
			return snap, nil
		}
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("版本 %d 不存在", version), nil)
}

// Versions 返回可回溯的版本号，从旧到新
func (s *StudioService) Versions() []uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	versions := make([]uint64, 0, len(s.history)+1)
	for _, snap := range s.history {
		versions = append(versions, snap.Version)
	}
	if s.current != nil {
		versions = append(versions, s.current.Version)
	}
	return versions
}

// View 当前视图状态
func (s *StudioService) View() string {
	if s.Snapshot() == nil {
		return models.ViewOnboarding
	}
	return models.ViewDashboard
}

// InFlight 进行中的操作
func (s *StudioService) InFlight() []Operation {
	return s.tracker.Snapshot()
}

// Metrics 返回指标收集器
func (s *StudioService) Metrics() *StudioMetrics {
	return s.metrics
}

// Gate 返回凭证门
func (s *StudioService) Gate() *auth.Gate {
	return s.gate
}

// Subscribe 注册快照监听器，返回取消函数
func (s *StudioService) Subscribe(listener SnapshotListener) func() {
	s.listenerMutex.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.listenerMutex.Unlock()

	return func() {
		s.listenerMutex.Lock()
		delete(s.listeners, id)
		s.listenerMutex.Unlock()
	}
}

// ---------------------------------------------------------------------------
// 提交

// commit 在锁内针对最新根节点执行 fn，安装新根并按提交顺序通知监听器
func (s *StudioService) commit(fn func(prev *models.Series) (*models.Series, error)) (*models.Series, error) {
	s.mutex.Lock()
	next, err := fn(s.current)
	if err != nil {
		s.mutex.Unlock()
		return nil, err
	}

	if s.current != nil {
		next.Version = s.current.Version + 1
		s.history = append(s.history, s.current)
		if over := len(s.history) - s.historyLimit; over > 0 {
			s.history = append([]*models.Series(nil), s.history[over:]...)
		}
	} else {
		next.Version = 1
	}
	next.UpdatedAt = time.Now()
	s.current = next

	s.notifyMutex.Lock()
	s.mutex.Unlock()
	s.notify(next)
	s.notifyMutex.Unlock()

	return next, nil
}

// commitOnExisting 与 commit 相同，但要求系列已存在
func (s *StudioService) commitOnExisting(fn func(prev *models.Series) (*models.Series, error)) (*models.Series, error) {
	return s.commit(func(prev *models.Series) (*models.Series, error) {
		if prev == nil {
			return nil, errNoSeries()
		}
		return fn(prev)
	})
}

func (s *StudioService) notify(snap *models.Series) {
	s.listenerMutex.RLock()
	listeners := make([]SnapshotListener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.listenerMutex.RUnlock()

	for _, listener := range listeners {
		listener(snap)
	}
}

func errNoSeries() error {
	return errors.NewNotFoundError("系列尚未初始化", nil)
}

// requireCredential 任何生成请求之前的凭证检查
func (s *StudioService) requireCredential() error {
	if !s.gate.Validate() {
		return errors.NewCredentialRequiredError("需要重新输入凭证", nil)
	}
	return nil
}

// begin 登记操作并开始计时
func (s *StudioService) begin(key, op string) (func(), time.Time, error) {
	release, err := s.tracker.Begin(key, op)
	if err != nil {
		return nil, time.Time{}, err
	}
	s.metrics.Begin()
	return release, time.Now(), nil
}

// observe 记录操作结果
func (s *StudioService) observe(op string, start time.Time, fields map[string]interface{}, err error) {
	duration := time.Since(start)
	s.metrics.Record(op, duration, err)

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["duration_ms"] = duration.Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		fields["error_type"] = errors.TypeOf(err)
		s.logger.Warn(op+" failed", fields)
		return
	}
	s.logger.Info(op+" completed", fields)
}

// ---------------------------------------------------------------------------
// 初始化系列

type initResponse struct {
	Cast []struct {
		Name       string   `json:"name"`
		Role       string   `json:"role"`
		Archetype  string   `json:"archetype"`
		Appearance string   `json:"appearance"`
		Traits     []string `json:"traits"`
	} `json:"cast"`
	Outline []struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	} `json:"outline"`
}

// normalize 填充默认值并校验可选参数
func (req *InitRequest) normalize() error {
	catalog := models.GetCatalog()

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return errors.NewValidationError("标题不能为空", nil)
	}
	if req.Mode == "" {
		req.Mode = models.OriginScratch
	}
	if !req.Mode.Valid() {
		return errors.NewValidationError(fmt.Sprintf("未知的起点模式: %s", req.Mode), nil)
	}

	if req.CutPack == "" {
		req.CutPack = models.DefaultCutPack
	} else if _, ok := catalog.FindCutPack(req.CutPack); !ok {
		return errors.NewValidationError(fmt.Sprintf("未知的风格预设: %s", req.CutPack), nil)
	}
	if req.Mood == "" {
		req.Mood = models.DefaultMood
	}
	if req.Arc == "" {
		req.Arc = models.DefaultArc
	} else if !catalog.HasArc(req.Arc) {
		return errors.NewValidationError(fmt.Sprintf("未知的故事弧线: %s", req.Arc), nil)
	}
	if req.Pace == "" {
		req.Pace = models.DefaultPace
	} else if !catalog.HasPace(req.Pace) {
		return errors.NewValidationError(fmt.Sprintf("未知的节奏: %s", req.Pace), nil)
	}
	if req.Language == "" {
		req.Language = models.DefaultLanguage
	} else if !models.ValidLanguage(req.Language) {
		return errors.NewValidationError(fmt.Sprintf("非法的语言代码: %s", req.Language), nil)
	}
	return nil
}

// InitializeSeries 创建新的系列聚合：三名角色与三期大纲。失败时不创建也不替换聚合。
func (s *StudioService) InitializeSeries(ctx context.Context, req InitRequest) (*models.Series, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := s.requireCredential(); err != nil {
		return nil, err
	}

	release, start, err := s.begin(SeriesKey, OpInitialize)
	if err != nil {
		return nil, err
	}
	defer release()

	fields := map[string]interface{}{"title": req.Title, "mode": req.Mode}
	s.logger.Info("initializing series", fields)

	series, err := s.initializeSeries(ctx, req)
	if series != nil {
		fields["version"] = series.Version
	}
	s.observe(OpInitialize, start, fields, err)
	return series, err
}

func (s *StudioService) initializeSeries(ctx context.Context, req InitRequest) (*models.Series, error) {
	prompt := BuildInitPrompt(req.Title, req.Mode, req.Premise, models.GetCatalog().LanguageLabel(req.Language))

	var resp initResponse
	if err := s.client.RequestStructured(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	if len(resp.Cast) < castSize {
		return nil, errors.NewMalformedResponseError(
			fmt.Sprintf("期望 %d 名角色, 实际 %d", castSize, len(resp.Cast)), nil)
	}
	if len(resp.Outline) < outlineSize {
		return nil, errors.NewMalformedResponseError(
			fmt.Sprintf("期望 %d 期大纲, 实际 %d", outlineSize, len(resp.Outline)), nil)
	}

	series := models.NewSeries(req.Title)
	series.Language = req.Language
	series.Style = models.StyleBible{CutPack: req.CutPack, Mood: req.Mood, CanonLock: models.DefaultCanonLock}
	series.Story.Arc = req.Arc
	series.Story.Pace = req.Pace

	series.Cast = make([]models.CastMember, 0, castSize)
	for _, c := range resp.Cast[:castSize] {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Appearance) == "" {
			return nil, errors.NewMalformedResponseError("角色缺少名字或外观描述", nil)
		}
		traits := c.Traits
		if traits == nil {
			traits = []string{}
		}
		series.Cast = append(series.Cast, models.CastMember{
			ID:              s.ids.NewID(),
			Name:            c.Name,
			Role:            models.NormalizeRole(c.Role),
			Archetype:       c.Archetype,
			Appearance:      c.Appearance,
			CanonLocked:     true,
			OutfitCount:     1,
			ExpressionCount: 1,
			Traits:          traits,
		})
	}

	series.Story.Issues = make([]models.Issue, 0, outlineSize)
	for _, o := range resp.Outline[:outlineSize] {
		if strings.TrimSpace(o.Title) == "" {
			return nil, errors.NewMalformedResponseError("大纲缺少标题", nil)
		}
		series.Story.Issues = append(series.Story.Issues, models.Issue{
			ID:      s.ids.NewID(),
			Title:   o.Title,
			Summary: o.Summary,
			Beats:   []models.Beat{},
			Status:  models.StatusBlueprint,
		})
	}

	return s.commit(func(*models.Series) (*models.Series, error) {
		return series, nil
	})
}

// ---------------------------------------------------------------------------
// 编写剧本

type scriptResponse struct {
	Beats []struct {
		Summary string `json:"summary"`
		Stakes  string `json:"stakes"`
		Energy  string `json:"energy"`
		Frames  []struct {
			Caption         string `json:"caption"`
			Dialogue        string `json:"dialogue"`
			BeatDescription string `json:"beatDescription"`
			Camera          string `json:"camera"`
			Emphasis        string `json:"emphasis"`
			Motion          string `json:"motion"`
		} `json:"frames"`
	} `json:"beats"`
}

// DraftIssueScript 为一期生成三个节拍，整体替换原有节拍，状态推进到 Boarded
func (s *StudioService) DraftIssueScript(ctx context.Context, issueID string) (*models.Series, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, errNoSeries()
	}
	issue, _, ok := snap.FindIssue(issueID)
	if !ok {
		return nil, errors.NewNotFoundError("期不存在: "+issueID, nil)
	}
	if err := s.requireCredential(); err != nil {
		return nil, err
	}

	release, start, err := s.begin(IssueKey(issueID), OpDraft)
	if err != nil {
		return nil, err
	}
	defer release()

	fields := map[string]interface{}{"issue_id": issueID, "title": issue.Title}
	s.logger.Info("drafting issue script", fields)

	result, err := s.draftIssueScript(ctx, snap, issue)
	if result != nil {
		fields["version"] = result.Version
	}
	s.observe(OpDraft, start, fields, err)
	return result, err
}

func (s *StudioService) draftIssueScript(ctx context.Context, snap *models.Series, issue models.Issue) (*models.Series, error) {
	var resp scriptResponse
	if err := s.client.RequestStructured(ctx, BuildScriptPrompt(snap, issue), &resp); err != nil {
		return nil, err
	}

	beats, err := s.buildBeats(resp)
	if err != nil {
		return nil, err
	}

	return s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		return replaceIssue(prev, issue.ID, func(current models.Issue) (models.Issue, error) {
			current.Beats = beats
			current.Status = current.Status.Advance(models.StatusBoarded)
			return current, nil
		})
	})
}

// buildBeats 校验剧本结构并分配新ID
func (s *StudioService) buildBeats(resp scriptResponse) ([]models.Beat, error) {
	if len(resp.Beats) < beatsPerIssue {
		return nil, errors.NewMalformedResponseError(
			fmt.Sprintf("期望 %d 个节拍, 实际 %d", beatsPerIssue, len(resp.Beats)), nil)
	}

	beats := make([]models.Beat, 0, beatsPerIssue)
	for bi, b := range resp.Beats[:beatsPerIssue] {
		if len(b.Frames) < minFramesPerBeat {
			return nil, errors.NewMalformedResponseError(
				fmt.Sprintf("第 %d 个节拍只有 %d 个画格", bi+1, len(b.Frames)), nil)
		}
		rawFrames := b.Frames
		if len(rawFrames) > maxFramesPerBeat {
			rawFrames = rawFrames[:maxFramesPerBeat]
		}

		frames := make([]models.Frame, 0, len(rawFrames))
		for fi, f := range rawFrames {
			if strings.TrimSpace(f.BeatDescription) == "" {
				return nil, errors.NewMalformedResponseError(
					fmt.Sprintf("第 %d 个节拍的第 %d 个画格缺少画面描述", bi+1, fi+1), nil)
			}
			camera := strings.TrimSpace(f.Camera)
			if camera == "" {
				camera = defaultCamera
			}
			frames = append(frames, models.Frame{
				ID:              s.ids.NewID(),
				Camera:          camera,
				Dialogue:        f.Dialogue,
				Caption:         f.Caption,
				BeatDescription: f.BeatDescription,
				Emphasis:        parseEmphasis(f.Emphasis),
				Motion:          parseMotion(f.Motion),
				IsLoading:       false,
			})
		}

		beats = append(beats, models.Beat{
			ID:      s.ids.NewID(),
			Summary: b.Summary,
			Stakes:  parseStakes(b.Stakes),
			Energy:  parseEnergy(b.Energy),
			Frames:  frames,
		})
	}
	return beats, nil
}

func parseStakes(raw string) models.Stakes {
	switch models.Stakes(raw) {
	case models.StakesPersonal, models.StakesLocal, models.StakesWorld:
		return models.Stakes(raw)
	}
	return models.StakesLocal
}

func parseEnergy(raw string) models.Energy {
	switch models.Energy(raw) {
	case models.EnergyCalm, models.EnergyTense, models.EnergyExplosive:
		return models.Energy(raw)
	}
	return models.EnergyTense
}

func parseEmphasis(raw string) models.Emphasis {
	switch models.Emphasis(raw) {
	case models.EmphasisFace, models.EmphasisHands, models.EmphasisEnvironment, models.EmphasisImpact:
		return models.Emphasis(raw)
	}
	return ""
}

func parseMotion(raw string) models.Motion {
	switch models.Motion(raw) {
	case models.MotionStill, models.MotionKinetic:
		return models.Motion(raw)
	}
	return ""
}

// ---------------------------------------------------------------------------
// 拍摄画格

// shootJob 一次画格渲染：加载状态已提交，等待生成结果
type shootJob struct {
	s       *StudioService
	issueID string
	beatID  string
	frameID string
	loading *models.Series
	release func()
	start   time.Time
}

// ShootFrame 渲染一个画格，返回结果快照
func (s *StudioService) ShootFrame(ctx context.Context, issueID, beatID, frameID string) (*models.Series, error) {
	if err := s.checkFrame(issueID, beatID, frameID); err != nil {
		return nil, err
	}
	job, err := s.beginShoot(issueID, beatID, frameID)
	if err != nil {
		return nil, err
	}
	return job.finish(ctx)
}

// ShootFrameAsync 提交加载状态后立即返回，渲染在后台完成
func (s *StudioService) ShootFrameAsync(ctx context.Context, issueID, beatID, frameID string) (*models.Series, error) {
	if err := s.checkFrame(issueID, beatID, frameID); err != nil {
		return nil, err
	}
	job, err := s.beginShoot(issueID, beatID, frameID)
	if err != nil {
		return nil, err
	}
	go job.finish(context.WithoutCancel(ctx))
	return job.loading, nil
}

// checkFrame 校验前置条件：系列、期、节拍、画格都存在且凭证可用
func (s *StudioService) checkFrame(issueID, beatID, frameID string) error {
	snap := s.Snapshot()
	if snap == nil {
		return errNoSeries()
	}
	if _, ok := snap.FindFrame(issueID, beatID, frameID); !ok {
		return errors.NewNotFoundError(fmt.Sprintf("画格不存在: %s/%s/%s", issueID, beatID, frameID), nil)
	}
	return s.requireCredential()
}

// beginShoot 登记操作并提交 IsLoading=true（第一阶段）
func (s *StudioService) beginShoot(issueID, beatID, frameID string) (*shootJob, error) {
	release, start, err := s.begin(FrameKey(frameID), OpShoot)
	if err != nil {
		return nil, err
	}

	loading, err := s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		return replaceFrame(prev, issueID, beatID, frameID, func(f models.Frame) models.Frame {
			f.IsLoading = true
			f.RenderError = ""
			return f
		})
	})
	if err != nil {
		s.observe(OpShoot, start, map[string]interface{}{"frame_id": frameID}, err)
		release()
		return nil, err
	}

	return &shootJob{
		s:       s,
		issueID: issueID,
		beatID:  beatID,
		frameID: frameID,
		loading: loading,
		release: release,
		start:   start,
	}, nil
}

// finish 发出生成请求并提交结果（第二阶段）。无论成功与否都会清除 IsLoading。
func (j *shootJob) finish(ctx context.Context) (*models.Series, error) {
	s := j.s
	defer j.release()

	fields := map[string]interface{}{"issue_id": j.issueID, "beat_id": j.beatID, "frame_id": j.frameID}

	frame, ok := j.loading.FindFrame(j.issueID, j.beatID, j.frameID)
	if !ok {
		err := errors.NewNotFoundError("画格不存在: "+j.frameID, nil)
		s.observe(OpShoot, j.start, fields, err)
		return nil, err
	}

	plate, err := s.client.RequestImage(ctx, BuildRenderPrompt(j.loading, frame), FrameAspectRatio)
	if err != nil {
		// 失败时清除加载状态并记录错误代码
		code := errors.CodeOf(err)
		s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
			return replaceFrame(prev, j.issueID, j.beatID, j.frameID, func(f models.Frame) models.Frame {
				f.IsLoading = false
				f.RenderError = code
				return f
			})
		})
		s.observe(OpShoot, j.start, fields, err)
		return nil, err
	}

	plateURL := plate.DataURI()
	fields["has_plate"] = plateURL != ""

	result, err := s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		next, err := replaceFrame(prev, j.issueID, j.beatID, j.frameID, func(f models.Frame) models.Frame {
			f.PlateURL = plateURL
			f.IsLoading = false
			f.RenderError = ""
			return f
		})
		if err != nil {
			return nil, err
		}

		// 全部画格都有结果时推进到 Shot
		issue, _, _ := next.FindIssue(j.issueID)
		if issue.FullyShot() && issue.Status.CanAdvanceTo(models.StatusShot) {
			return replaceIssue(next, j.issueID, func(i models.Issue) (models.Issue, error) {
				i.Status = i.Status.Advance(models.StatusShot)
				return i, nil
			})
		}
		return next, nil
	})
	if result != nil {
		fields["version"] = result.Version
	}
	s.observe(OpShoot, j.start, fields, err)
	return result, err
}

// ShootBeat 并发渲染一个节拍的所有画格，并发数受限。返回最终快照与第一个错误。
func (s *StudioService) ShootBeat(ctx context.Context, issueID, beatID string) (*models.Series, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, errNoSeries()
	}
	beat, ok := snap.FindBeat(issueID, beatID)
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("节拍不存在: %s/%s", issueID, beatID), nil)
	}
	if err := s.requireCredential(); err != nil {
		return nil, err
	}

	start := time.Now()
	s.metrics.Begin()

	var g errgroup.Group
	g.SetLimit(s.shootConcurrency)
	for _, frame := range beat.Frames {
		frameID := frame.ID
		g.Go(func() error {
			// 凭证在批次中途失效时，剩余画格不再发出请求
			if err := s.requireCredential(); err != nil {
				return err
			}
			job, err := s.beginShoot(issueID, beatID, frameID)
			if err != nil {
				return err
			}
			_, err = job.finish(ctx)
			return err
		})
	}
	err := g.Wait()

	s.observe(OpShootBeat, start, map[string]interface{}{
		"issue_id": issueID,
		"beat_id":  beatID,
		"frames":   len(beat.Frames),
	}, err)

	return s.Snapshot(), err
}

// ---------------------------------------------------------------------------
// 角色立绘

// RenderPortrait 为角色生成 1:1 立绘，两阶段方式与画格相同
func (s *StudioService) RenderPortrait(ctx context.Context, castID string) (*models.Series, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, errNoSeries()
	}
	if _, ok := snap.FindCast(castID); !ok {
		return nil, errors.NewNotFoundError("角色不存在: "+castID, nil)
	}
	if err := s.requireCredential(); err != nil {
		return nil, err
	}

	release, start, err := s.begin(CastKey(castID), OpPortrait)
	if err != nil {
		return nil, err
	}
	defer release()

	fields := map[string]interface{}{"cast_id": castID}

	generating, err := s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		return replaceCast(prev, castID, func(m models.CastMember) models.CastMember {
			m.IsGenerating = true
			m.RenderError = ""
			return m
		})
	})
	if err != nil {
		s.observe(OpPortrait, start, fields, err)
		return nil, err
	}

	member, _ := generating.FindCast(castID)
	plate, err := s.client.RequestImage(ctx, BuildPortraitPrompt(generating, member), PortraitAspectRatio)
	if err != nil {
		code := errors.CodeOf(err)
		s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
			return replaceCast(prev, castID, func(m models.CastMember) models.CastMember {
				m.IsGenerating = false
				m.RenderError = code
				return m
			})
		})
		s.observe(OpPortrait, start, fields, err)
		return nil, err
	}

	portrait := plate.DataURI()
	result, err := s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		return replaceCast(prev, castID, func(m models.CastMember) models.CastMember {
			m.Portrait = portrait
			m.IsGenerating = false
			return m
		})
	})
	fields["has_portrait"] = portrait != ""
	s.observe(OpPortrait, start, fields, err)
	return result, err
}

// ---------------------------------------------------------------------------
// 发布与重置

// PublishIssue 将已拍摄完成的期标记为已发布，不调用生成服务
func (s *StudioService) PublishIssue(ctx context.Context, issueID string) (*models.Series, error) {
	release, start, err := s.begin(IssueKey(issueID), OpPublish)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := s.commitOnExisting(func(prev *models.Series) (*models.Series, error) {
		return replaceIssue(prev, issueID, func(issue models.Issue) (models.Issue, error) {
			if issue.Status != models.StatusShot {
				return issue, errors.NewValidationError(
					fmt.Sprintf("只有已拍摄完成的期可以发布，当前状态: %s", issue.Status), nil)
			}
			if !issue.FullyShot() {
				return issue, errors.NewValidationError("期中仍有未拍摄的画格，不能发布", nil)
			}
			issue.Status = issue.Status.Advance(models.StatusPublished)
			return issue, nil
		})
	})
	s.observe(OpPublish, start, map[string]interface{}{"issue_id": issueID}, err)
	return result, err
}

// Reset 丢弃整个聚合及其历史，回到初始视图
func (s *StudioService) Reset() {
	s.mutex.Lock()
	s.current = nil
	s.history = nil

	s.notifyMutex.Lock()
	s.mutex.Unlock()
	s.notify(nil)
	s.notifyMutex.Unlock()

	s.logger.Info("series reset", nil)
}
