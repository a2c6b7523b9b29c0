package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"CoverFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobRepositoryLifecycle(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := &model.CoverJob{ID: "a", Kind: model.JobKindCover, Status: model.JobStatusQueued, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, job))
	assert.Error(t, repo.Create(ctx, job))

	// 调用方修改自己的副本不影响仓库
	job.Status = model.JobStatusRunning
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)

	require.NoError(t, repo.Update(ctx, job))
	got, err = repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &model.CoverJob{ID: "missing"}), ErrNotFound)
}

func TestMemoryJobRepositoryListNewestFirst(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &model.CoverJob{
			ID:        fmt.Sprintf("job-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	jobs, err := repo.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-4", jobs[0].ID)
	assert.Equal(t, "job-3", jobs[1].ID)
	assert.Equal(t, "job-2", jobs[2].ID)

	jobs, err = repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
}
