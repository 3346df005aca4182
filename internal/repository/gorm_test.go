package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/callpath-core/internal/activity"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Create tables
	err = db.AutoMigrate(AllModels()...)
	require.NoError(t, err)

	return db
}

func TestGormRunRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	run := &model.Run{Kind: model.RunKindAggregate, Threads: 4}
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.NotZero(t, run.ID)
	assert.NotEmpty(t, run.UUID)

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, got.Status)
	assert.Equal(t, 4, got.Threads)
	assert.Nil(t, got.EndTime)

	require.NoError(t, repo.StartRun(ctx, run.ID))
	err = repo.StartRun(ctx, run.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, repo.FinishRun(ctx, run.ID, &model.RunSummary{
		Threads: 4, Nodes: 12, Samples: 100, Total: 2.5, ResultFile: "/tmp/run.pb.gz",
	}))

	got, err = repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, 12, got.Nodes)
	assert.Equal(t, int64(100), got.Samples)
	assert.Equal(t, 2.5, got.Total)
	assert.Equal(t, "/tmp/run.pb.gz", got.ResultFile)
	require.NotNil(t, got.EndTime)

	// Terminal runs cannot be finished again.
	err = repo.FailRun(ctx, run.ID, "late failure")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGormRunRepository_FailRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	run := &model.Run{Kind: model.RunKindSimulate}
	require.NoError(t, repo.CreateRun(ctx, run))
	require.NoError(t, repo.FailRun(ctx, run.ID, "no input"))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "no input", got.StatusInfo)
	assert.True(t, got.Status.IsTerminal())
}

func TestGormRunRepository_GetRun_NotFound(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))

	run, err := repo.GetRun(context.Background(), 999)
	assert.Nil(t, run)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestGormRunRepository_ListRuns(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateRun(ctx, &model.Run{Threads: i}))
	}
	runs, err = repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Threads)
	assert.Equal(t, 1, runs[1].Threads)
}

func TestGormTraceRepository(t *testing.T) {
	repo := NewGormTraceRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.AppendTrace(ctx, nil))

	records := []model.TraceRecord{
		{RunID: 1, CorrelationID: 2, Kind: "kernel", NodeID: 5, Start: 30, End: 40},
		{RunID: 1, CorrelationID: 1, Kind: "memcpy", NodeID: 7, Start: 10, End: 20, Bytes: 4096},
		{RunID: 2, CorrelationID: 1, Kind: "sync", Start: 0, End: 1},
	}
	require.NoError(t, repo.AppendTrace(ctx, records))

	n, err := repo.CountTraces(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.ListTraces(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, records[1], got[0])
	assert.Equal(t, records[0], got[1])
}

func TestGormTraceRepository_IsActivitySink(t *testing.T) {
	var _ activity.Sink = NewGormTraceRepository(nil)
	var _ activity.Sink = NewSQLTraceRepository(nil, DialectDollar)
}
