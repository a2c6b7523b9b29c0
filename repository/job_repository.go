package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"CoverFM/model"

	"gorm.io/gorm"
)

// ErrNotFound 任务不存在
var ErrNotFound = errors.New("任务不存在")

// JobRepository 任务记录数据访问接口
type JobRepository interface {
	Create(ctx context.Context, job *model.CoverJob) error
	Update(ctx context.Context, job *model.CoverJob) error
	Get(ctx context.Context, id string) (*model.CoverJob, error)
	List(ctx context.Context, limit int) ([]*model.CoverJob, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

// gormJobRepository GORM 实现
type gormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository 创建 GORM 任务仓库
func NewGormJobRepository(db *gorm.DB) JobRepository {
	return &gormJobRepository{db: db}
}

func (r *gormJobRepository) Create(ctx context.Context, job *model.CoverJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *gormJobRepository) Update(ctx context.Context, job *model.CoverJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *gormJobRepository) Get(ctx context.Context, id string) (*model.CoverJob, error) {
	var job model.CoverJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List 按创建时间倒序
func (r *gormJobRepository) List(ctx context.Context, limit int) ([]*model.CoverJob, error) {
	var jobs []*model.CoverJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&jobs).Error
	return jobs, err
}

// memoryJobRepository 未启用数据库时使用，进程重启后丢失
type memoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]model.CoverJob
}

// NewMemoryJobRepository 创建内存任务仓库
func NewMemoryJobRepository() JobRepository {
	return &memoryJobRepository{jobs: make(map[string]model.CoverJob)}
}

func (r *memoryJobRepository) Create(ctx context.Context, job *model.CoverJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return errors.New("任务已存在: " + job.ID)
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepository) Update(ctx context.Context, job *model.CoverJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepository) Get(ctx context.Context, id string) (*model.CoverJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (r *memoryJobRepository) List(ctx context.Context, limit int) ([]*model.CoverJob, error) {
	r.mu.RLock()
	jobs := make([]*model.CoverJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		j := j
		jobs = append(jobs, &j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	if n := normalizeLimit(limit); len(jobs) > n {
		jobs = jobs[:n]
	}
	return jobs, nil
}
