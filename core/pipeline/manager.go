package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"CoverFM/core/delivery"
	"CoverFM/core/errs"
	"CoverFM/logger"
	"CoverFM/model"

	"github.com/google/uuid"
)

// JobStore 任务记录持久化
type JobStore interface {
	Create(ctx context.Context, job *model.CoverJob) error
	Update(ctx context.Context, job *model.CoverJob) error
	Get(ctx context.Context, id string) (*model.CoverJob, error)
	List(ctx context.Context, limit int) ([]*model.CoverJob, error)
}

// Publisher 把成品发布到对象存储，返回可访问的地址
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// Deliverer 聊天投递
type Deliverer interface {
	SendRecord(ctx context.Context, target delivery.Target, path string) (delivery.Receipt, error)
	SendText(ctx context.Context, target delivery.Target, text string) (delivery.Receipt, error)
}

// Manager 异步执行翻唱/TTS 任务，限制并发数，推送阶段事件
type Manager struct {
	orch      *Orchestrator
	store     JobStore
	publisher Publisher
	deliverer Deliverer

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	subs    map[string]map[int]chan Event
	nextSub int
}

// NewManager maxConcurrent 为同时运行的任务数
func NewManager(orch *Orchestrator, store JobStore, maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		orch:   orch,
		store:  store,
		sem:    make(chan struct{}, maxConcurrent),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]map[int]chan Event),
	}
}

// SetPublisher 设置成品发布，可为 nil
func (m *Manager) SetPublisher(p Publisher) {
	m.publisher = p
}

// SetDeliverer 设置聊天投递，可为 nil
func (m *Manager) SetDeliverer(d Deliverer) {
	m.deliverer = d
}

// SubmitCover 提交翻唱任务，立即返回排队中的任务
func (m *Manager) SubmitCover(ctx context.Context, req model.TrackRequest, target *delivery.Target) (*model.CoverJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	job := newJob(model.JobKindCover, target)
	job.Query, job.Selector, job.Quality = req.Query, req.SelectorIndex, req.Quality
	return m.submit(ctx, job, func(ctx context.Context, obs Observer) Result {
		return m.orch.Cover(ctx, req, obs)
	})
}

// SubmitSpeech 提交 TTS 任务
func (m *Manager) SubmitSpeech(ctx context.Context, text string, target *delivery.Target) (*model.CoverJob, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("文本不能为空")
	}
	job := newJob(model.JobKindSpeech, target)
	job.Text = text
	return m.submit(ctx, job, func(ctx context.Context, obs Observer) Result {
		return m.orch.Speech(ctx, text, obs)
	})
}

func newJob(kind model.JobKind, target *delivery.Target) *model.CoverJob {
	now := time.Now()
	job := &model.CoverJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if target != nil {
		job.TargetID, job.IsGroup = target.ID, target.IsGroup
	}
	return job
}

func (m *Manager) submit(ctx context.Context, job *model.CoverJob, run func(context.Context, Observer) Result) (*model.CoverJob, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, fmt.Errorf("任务管理器已关闭")
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("保存任务失败: %w", err)
	}

	m.mu.Lock()
	m.subs[job.ID] = make(map[int]chan Event)
	m.mu.Unlock()

	snapshot := *job
	m.wg.Add(1)
	go m.execute(job, run)

	logger.Info("任务已提交", logger.String("jobId", job.ID), logger.String("kind", string(job.Kind)))
	return &snapshot, nil
}

func (m *Manager) execute(job *model.CoverJob, run func(context.Context, Observer) Result) {
	defer m.wg.Done()
	defer m.closeSubscribers(job.ID)

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-m.ctx.Done():
		job.Status, job.ErrorKind, job.Message = model.JobStatusFailed, errs.KindCanceled.String(), "服务正在关闭"
		m.save(job)
		return
	}

	job.Status = model.JobStatusRunning
	m.save(job)

	obs := func(ev Event) {
		ev.JobID = job.ID
		if ev.Status != EventFailed {
			job.Stage = string(ev.Stage)
			m.save(job)
		}
		m.broadcast(job.ID, ev)
	}

	res := run(m.ctx, obs)

	job.Stage = string(res.Stage)
	job.Message = res.Message
	if res.Success {
		job.Status = model.JobStatusDone
		job.FinalPath = res.FinalPath
		job.PublicURL = m.publish(job.ID, res.FinalPath)
	} else {
		job.Status = model.JobStatusFailed
		job.ErrorKind = res.ErrorKind
	}

	if job.TargetID != "" && m.deliverer != nil {
		job.Delivered = m.deliver(job, res)
	}
	m.save(job)

	final := Event{JobID: job.ID, Stage: res.Stage, Status: EventFinished, Path: res.FinalPath, Message: res.Message, At: time.Now()}
	if !res.Success {
		final.Status = EventFailed
	}
	m.broadcast(job.ID, final)

	logger.Info("任务结束",
		logger.String("jobId", job.ID),
		logger.String("status", string(job.Status)),
		logger.Bool("delivered", job.Delivered),
		logger.Duration("elapsed", res.Elapsed))
}

func (m *Manager) publish(jobID, path string) string {
	if m.publisher == nil || path == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), 2*time.Minute)
	defer cancel()
	url, err := m.publisher.Publish(ctx, path)
	if err != nil {
		logger.Warn("发布成品失败", logger.String("jobId", jobID), logger.ErrorField(err))
		return ""
	}
	return url
}

// deliver 成功时发语音，语音发送失败或任务失败时发文字提示
func (m *Manager) deliver(job *model.CoverJob, res Result) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), time.Minute)
	defer cancel()
	target := delivery.Target{ID: job.TargetID, IsGroup: job.IsGroup}

	if res.Success {
		receipt, err := m.deliverer.SendRecord(ctx, target, res.FinalPath)
		if err == nil && receipt.OK {
			return true
		}
		logger.Warn("发送语音失败，改发文字",
			logger.String("jobId", job.ID),
			logger.String("target", target.String()),
			logger.ErrorField(err))
		text := "语音发送失败，请稍后再试"
		if job.PublicURL != "" {
			text = "语音发送失败，可以从这里下载: " + job.PublicURL
		}
		if _, err := m.deliverer.SendText(ctx, target, text); err != nil {
			logger.Warn("发送文字提示失败", logger.String("jobId", job.ID), logger.ErrorField(err))
		}
		return false
	}

	receipt, err := m.deliverer.SendText(ctx, target, res.Message)
	if err != nil || !receipt.OK {
		logger.Warn("发送失败提示失败", logger.String("jobId", job.ID), logger.ErrorField(err))
		return false
	}
	return true
}

func (m *Manager) save(job *model.CoverJob) {
	job.UpdatedAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Update(ctx, job); err != nil {
		logger.Warn("更新任务记录失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}
}

// Get 查询任务
func (m *Manager) Get(ctx context.Context, id string) (*model.CoverJob, error) {
	return m.store.Get(ctx, id)
}

// List 最近的任务
func (m *Manager) List(ctx context.Context, limit int) ([]*model.CoverJob, error) {
	return m.store.List(ctx, limit)
}

// Subscribe 订阅运行中任务的事件。任务已结束时 ok 为 false。
func (m *Manager) Subscribe(id string) (<-chan Event, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subs[id]
	if !ok {
		return nil, func() {}, false
	}
	m.nextSub++
	n := m.nextSub
	ch := make(chan Event, 32)
	subs[n] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s, ok := m.subs[id]; ok {
			if c, ok := s[n]; ok {
				delete(s, n)
				close(c)
			}
		}
	}, true
}

func (m *Manager) broadcast(id string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[id] {
		select {
		case ch <- ev:
		default:
			logger.Debug("订阅者处理过慢，丢弃事件", logger.String("jobId", id))
		}
	}
}

func (m *Manager) closeSubscribers(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
}

// Wait 等待所有已提交任务结束
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown 取消运行中的任务并等待退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
