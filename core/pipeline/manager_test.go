package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoverFM/core/delivery"
	"CoverFM/core/errs"
	"CoverFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]model.CoverJob
	// 每次 Update 记录下的状态
	history []model.JobStatus
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]model.CoverJob)}
}

func (s *memStore) Create(ctx context.Context, job *model.CoverJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) Update(ctx context.Context, job *model.CoverJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.history = append(s.history, job.Status)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*model.CoverJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &job, nil
}

func (s *memStore) List(ctx context.Context, limit int) ([]*model.CoverJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CoverJob
	for _, j := range s.jobs {
		j := j
		out = append(out, &j)
	}
	return out, nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	recordErr error
	records   []string
	texts     []string
}

func (d *fakeDeliverer) SendRecord(ctx context.Context, target delivery.Target, path string) (delivery.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, path)
	if d.recordErr != nil {
		return delivery.Receipt{}, d.recordErr
	}
	return delivery.Receipt{OK: true}, nil
}

func (d *fakeDeliverer) SendText(ctx context.Context, target delivery.Target, text string) (delivery.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return delivery.Receipt{OK: true}, nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(ctx context.Context, path string) (string, error) {
	return "http://minio.local/covers/final.wav", nil
}

func TestManagerCoverLifecycle(t *testing.T) {
	o, _ := newStubPipeline(t)
	store := newMemStore()
	d := &fakeDeliverer{}
	m := NewManager(o, store, 1)
	m.SetPublisher(fakePublisher{})
	m.SetDeliverer(d)

	job, err := m.SubmitCover(context.Background(), model.TrackRequest{Query: "晴天", SelectorIndex: 1}, &delivery.Target{ID: "10001", IsGroup: true})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.ID)

	m.Wait()

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.Equal(t, string(StageDone), got.Stage)
	assert.NotEmpty(t, got.FinalPath)
	assert.Equal(t, "http://minio.local/covers/final.wav", got.PublicURL)
	assert.True(t, got.Delivered)
	assert.Equal(t, []string{got.FinalPath}, d.records)
	assert.Empty(t, d.texts)

	require.NotEmpty(t, store.history)
	assert.Equal(t, model.JobStatusRunning, store.history[0])
	assert.Equal(t, model.JobStatusDone, store.history[len(store.history)-1])
}

func TestManagerFallsBackToTextWhenRecordFails(t *testing.T) {
	o, _ := newStubPipeline(t)
	d := &fakeDeliverer{recordErr: errors.New("napcat down")}
	m := NewManager(o, newMemStore(), 1)
	m.SetPublisher(fakePublisher{})
	m.SetDeliverer(d)

	job, err := m.SubmitCover(context.Background(), model.TrackRequest{Query: "晴天", SelectorIndex: 1}, &delivery.Target{ID: "42"})
	require.NoError(t, err)
	m.Wait()

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.False(t, got.Delivered)
	require.Len(t, d.texts, 1)
	assert.Contains(t, d.texts[0], "http://minio.local/covers/final.wav")
}

func TestManagerFailedJobSendsUserMessage(t *testing.T) {
	o, s := newStubPipeline(t)
	s.acquireErr = errs.NotFound("acquire", "搜索无结果")
	d := &fakeDeliverer{}
	m := NewManager(o, newMemStore(), 1)
	m.SetDeliverer(d)

	job, err := m.SubmitCover(context.Background(), model.TrackRequest{Query: "不存在的歌", SelectorIndex: 1}, &delivery.Target{ID: "42"})
	require.NoError(t, err)
	m.Wait()

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, errs.KindNotFound.String(), got.ErrorKind)
	assert.Equal(t, string(StageAcquire), got.Stage)
	assert.Empty(t, d.records)
	require.Len(t, d.texts, 1)
	assert.Equal(t, errs.UserMessage(s.acquireErr), d.texts[0])
}

// blockingAcquirer 在 release 关闭前阻塞，方便测试订阅
type blockingAcquirer struct {
	*stubStages
	release chan struct{}
}

func (b blockingAcquirer) Acquire(ctx context.Context, req model.TrackRequest) (*model.Artifact, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, errs.E(errs.KindCanceled, "acquire", "", ctx.Err())
	}
	return b.stubStages.Acquire(ctx, req)
}

func TestManagerSubscribeReceivesEvents(t *testing.T) {
	o, s := newStubPipeline(t)
	release := make(chan struct{})
	o.acquirer = blockingAcquirer{stubStages: s, release: release}
	m := NewManager(o, newMemStore(), 1)

	job, err := m.SubmitCover(context.Background(), model.TrackRequest{Query: "晴天", SelectorIndex: 1}, nil)
	require.NoError(t, err)

	events, cancel, ok := m.Subscribe(job.ID)
	require.True(t, ok)
	defer cancel()
	close(release)

	var got []Event
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, open := <-events:
			if !open {
				done = true
				break
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("等待事件超时")
		}
	}

	require.NotEmpty(t, got)
	for _, ev := range got {
		assert.Equal(t, job.ID, ev.JobID)
	}
	last := got[len(got)-1]
	assert.Equal(t, EventFinished, last.Status)
	assert.Equal(t, StageDone, last.Stage)

	_, _, ok = m.Subscribe(job.ID)
	assert.False(t, ok)
}

func TestManagerShutdownCancelsRunningJobs(t *testing.T) {
	o, s := newStubPipeline(t)
	o.acquirer = blockingAcquirer{stubStages: s, release: make(chan struct{})}
	store := newMemStore()
	m := NewManager(o, store, 1)

	job, err := m.SubmitCover(context.Background(), model.TrackRequest{Query: "晴天", SelectorIndex: 1}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, errs.KindCanceled.String(), got.ErrorKind)

	_, err = m.SubmitCover(context.Background(), model.TrackRequest{Query: "晴天", SelectorIndex: 1}, nil)
	assert.Error(t, err)
}

func TestManagerRejectsEmptySpeech(t *testing.T) {
	o, _ := newStubPipeline(t)
	m := NewManager(o, newMemStore(), 1)
	_, err := m.SubmitSpeech(context.Background(), "   ", nil)
	assert.Error(t, err)
}
