package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

func TestJobRepository_RegisterJob(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, repos.Job.RegisterJob(ctx, "entries"))
	require.NoError(t, repos.Job.RegisterJob(ctx, "icons"))

	t.Run("re-register keeps existing state", func(t *testing.T) {
		require.NoError(t, repos.Job.SetJobPaused(ctx, "entries", true))
		require.NoError(t, repos.Job.RegisterJob(ctx, "entries"))

		job, err := repos.Job.GetJob(ctx, "entries")
		require.NoError(t, err)
		assert.True(t, job.Paused())
	})

	t.Run("list ordered by name", func(t *testing.T) {
		jobs, err := repos.Job.GetJobs(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "entries", jobs[0].Name)
		assert.Equal(t, "icons", jobs[1].Name)
	})
}

func TestJobRepository_UpdateJobRun(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repos.Job.RegisterJob(ctx, "entries"))

	startedAt := testTime(t, "2025-06-01T10:00:00Z")

	t.Run("record successful run", func(t *testing.T) {
		err := repos.Job.UpdateJobRun(ctx, "entries", startedAt, 1500*time.Millisecond, "")
		require.NoError(t, err)

		job, err := repos.Job.GetJob(ctx, "entries")
		require.NoError(t, err)
		require.NotNil(t, job.LastRunAt)
		assert.Equal(t, startedAt, job.LastRunAt.UTC())
		assert.Equal(t, 1500*time.Millisecond, job.LastDuration)
		assert.Empty(t, job.LastError)
	})

	t.Run("record failed run", func(t *testing.T) {
		err := repos.Job.UpdateJobRun(ctx, "entries", startedAt.Add(time.Hour), 200*time.Millisecond, "3 feeds failed")
		require.NoError(t, err)

		job, err := repos.Job.GetJob(ctx, "entries")
		require.NoError(t, err)
		assert.Equal(t, "3 feeds failed", job.LastError)
	})

	t.Run("unknown job reports not found", func(t *testing.T) {
		err := repos.Job.UpdateJobRun(ctx, "missing", startedAt, 0, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestJobRepository_SetJobPaused(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repos.Job.RegisterJob(ctx, "icons"))

	require.NoError(t, repos.Job.SetJobPaused(ctx, "icons", true))
	job, err := repos.Job.GetJob(ctx, "icons")
	require.NoError(t, err)
	assert.True(t, job.Paused())

	require.NoError(t, repos.Job.SetJobPaused(ctx, "icons", false))
	job, err = repos.Job.GetJob(ctx, "icons")
	require.NoError(t, err)
	assert.False(t, job.Paused())

	err = repos.Job.SetJobPaused(ctx, "missing", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRepository_GetJob_NotFound(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repos.Job.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
