package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"risk_backend/internal/feature/batch/domain/entity"
	"risk_backend/internal/feature/batch/usecase"
)

// setupTestDB prepares an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	err = db.AutoMigrate(&entity.BatchRun{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

func run(runID string, jobType entity.JobType, date time.Time, status entity.RunStatus) *entity.BatchRun {
	return &entity.BatchRun{
		RunID:       runID,
		JobType:     jobType,
		TargetDate:  date,
		Status:      status,
		TriggeredBy: "test",
		StartedAt:   time.Now().UTC(),
	}
}

func TestBatchRunGorm_CreateAndFinalize(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRunRepository(db)
	ctx := context.Background()
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, run("run-1", entity.JobSymbolBatch, date, entity.RunRunning)))
	require.NoError(t, repo.Finalize(ctx, "run-1", entity.RunCompletedWithError, 95, 5))

	got, err := repo.CompletionForDate(ctx, entity.JobSymbolBatch, date)
	require.NoError(t, err)
	assert.Equal(t, entity.RunCompletedWithError, got.Status)
	assert.Equal(t, 95, got.ItemsProcessed)
	assert.Equal(t, 5, got.ItemsFailed)
	assert.NotNil(t, got.FinishedAt)
}

func TestBatchRunGorm_LatestSuccessDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRunRepository(db)
	ctx := context.Background()

	d := func(day int) time.Time { return time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, repo.Create(ctx, run("run-1", entity.JobSymbolBatch, d(25), entity.RunCompleted)))
	require.NoError(t, repo.Create(ctx, run("run-2", entity.JobSymbolBatch, d(26), entity.RunCompletedWithError)))
	require.NoError(t, repo.Create(ctx, run("run-3", entity.JobSymbolBatch, d(27), entity.RunFailed)))
	require.NoError(t, repo.Create(ctx, run("run-4", entity.JobPortfolioRefresh, d(28), entity.RunCompleted)))

	got, err := repo.LatestSuccessDate(ctx, entity.JobSymbolBatch)
	require.NoError(t, err)

	// Partial completion still advances the watermark; a failed run does not.
	assert.Equal(t, d(26), got)
}

func TestBatchRunGorm_LatestSuccessDate_NoRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRunRepository(db)

	_, err := repo.LatestSuccessDate(context.Background(), entity.JobSymbolBatch)
	assert.ErrorIs(t, err, usecase.ErrRunNotFound)
}

func TestBatchRunGorm_CompletionForDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRunRepository(db)
	ctx := context.Background()
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	t.Run("ignores running rows", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, run("run-1", entity.JobSymbolBatch, date, entity.RunRunning)))

		_, err := repo.CompletionForDate(ctx, entity.JobSymbolBatch, date)
		assert.ErrorIs(t, err, usecase.ErrRunNotFound)
	})

	t.Run("returns newest terminal row", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, run("run-2", entity.JobSymbolBatch, date, entity.RunFailed)))
		require.NoError(t, repo.Create(ctx, run("run-3", entity.JobSymbolBatch, date, entity.RunCompleted)))

		got, err := repo.CompletionForDate(ctx, entity.JobSymbolBatch, date)
		require.NoError(t, err)
		assert.Equal(t, "run-3", got.RunID)
	})
}

func TestBatchRunGorm_Recent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRunRepository(db)
	ctx := context.Background()
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, run("run-1", entity.JobSymbolBatch, date, entity.RunCompleted)))
	require.NoError(t, repo.Create(ctx, run("run-2", entity.JobPortfolioRefresh, date, entity.RunCompleted)))
	require.NoError(t, repo.Create(ctx, run("run-3", entity.JobSymbolBatch, date, entity.RunRunning)))

	all, err := repo.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	batches, err := repo.Recent(ctx, entity.JobSymbolBatch, 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "run-3", batches[0].RunID)

	limited, err := repo.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
