package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/model"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newJob(order string, minute int) *model.PrintJob {
	return model.NewPrintJob(order, model.JobSourceManual, decimal.RequireFromString("80.00"), epoch.Add(time.Duration(minute)*time.Minute))
}

func TestMemoryRepository_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrintJobRepository(10, zaptest.NewLogger(t))

	job := newJob("A-1", 0)
	require.NoError(t, repo.Create(ctx, job))
	assert.Error(t, repo.Create(ctx, job))

	done := epoch.Add(time.Second)
	ms := int64(1000)
	cause := model.Errorf(model.KindWriteFailure, "chunk 3 of 5")
	require.NoError(t, repo.UpdateStatus(ctx, job.ID, model.JobUpdate{
		Status:      model.JobStatusFailed,
		Bytes:       120,
		Chunks:      6,
		DeviceAddr:  "AA:BB:CC:00:00:01",
		Err:         cause,
		CompletedAt: &done,
		DurationMs:  &ms,
	}))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, 120, got.Bytes)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, model.KindWriteFailure, *got.ErrorKind)
	require.NotNil(t, got.DeviceAddr)
	assert.Equal(t, "AA:BB:CC:00:00:01", *got.DeviceAddr)

	// returned jobs are copies
	got.Status = model.JobStatusCompleted
	again, _ := repo.GetByID(ctx, job.ID)
	assert.Equal(t, model.JobStatusFailed, again.Status)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	repo := NewMemoryPrintJobRepository(10, zaptest.NewLogger(t))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrJobNotFound))

	err = repo.UpdateStatus(context.Background(), uuid.New(), model.JobUpdate{Status: model.JobStatusCompleted})
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrintJobRepository(10, zaptest.NewLogger(t))

	for i, order := range []string{"A-1", "A-2", "A-3", "A-2"} {
		require.NoError(t, repo.Create(ctx, newJob(order, i)))
	}

	jobs, total, err := repo.List(ctx, model.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, jobs, 4)
	assert.Equal(t, "A-2", jobs[0].OrderID)
	assert.Equal(t, "A-1", jobs[3].OrderID)

	jobs, total, err = repo.List(ctx, model.JobFilter{OrderID: "A-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = repo.List(ctx, model.JobFilter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, jobs, 1)

	jobs, _, err = repo.List(ctx, model.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMemoryRepository_EvictsOldestTerminalJob(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrintJobRepository(2, zaptest.NewLogger(t))

	pending := newJob("P", 0)
	done := newJob("D", 1)
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.UpdateStatus(ctx, done.ID, model.JobUpdate{Status: model.JobStatusCompleted}))

	require.NoError(t, repo.Create(ctx, newJob("N", 2)))

	_, err := repo.GetByID(ctx, pending.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrintJobRepository(10, zaptest.NewLogger(t))

	statuses := []model.JobStatus{
		model.JobStatusCompleted, model.JobStatusCompleted, model.JobStatusFailed,
		model.JobStatusRejected, model.JobStatusSkipped, model.JobStatusPending,
	}
	for i, s := range statuses {
		job := newJob("X", i)
		require.NoError(t, repo.Create(ctx, job))
		require.NoError(t, repo.UpdateStatus(ctx, job.ID, model.JobUpdate{Status: s}))
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{Total: 6, Completed: 2, Failed: 1, Rejected: 1, Skipped: 1}, *stats)
}

func TestBuildJobWhere(t *testing.T) {
	where, args := buildJobWhere(model.JobFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildJobWhere(model.JobFilter{Status: model.JobStatusFailed, OrderID: "A-9"})
	assert.Equal(t, "WHERE status = $1 AND order_id = $2", where)
	assert.Equal(t, []interface{}{model.JobStatusFailed, "A-9"}, args)
}

func TestNormalizeFilter(t *testing.T) {
	assert.Equal(t, DefaultListLimit, normalizeFilter(model.JobFilter{}).Limit)
	assert.Equal(t, MaxListLimit, normalizeFilter(model.JobFilter{Limit: 10000}).Limit)
	assert.Equal(t, 0, normalizeFilter(model.JobFilter{Offset: -4}).Offset)
}
