package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

func newTestStore(t *testing.T) interfaces.JobStorage {
	t.Helper()
	db, err := NewBadgerDB(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir() + "/badger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJobStorage(db, common.GetLogger())
}

func newPendingJob(id string, createdAt time.Time) *models.Job {
	return &models.Job{
		ID:          id,
		UserID:      "user-1",
		Type:        models.JobTypeAttestation,
		FilePath:    "/tmp/" + id + ".pdf",
		CreatedAt:   createdAt,
		MaxAttempts: 3,
	}
}

func TestJobStorage_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1", time.Now())
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, models.JobTypeAttestation, got.Type)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestJobStorage_ClaimNextFIFO(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, store.Create(ctx, newPendingJob("job-b", base.Add(2*time.Second))))
	require.NoError(t, store.Create(ctx, newPendingJob("job-a", base)))
	require.NoError(t, store.Create(ctx, newPendingJob("job-c", base.Add(time.Second))))

	first, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", first.ID)
	assert.Equal(t, models.JobStatusProcessing, first.Status)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, "w1", first.WorkerID)
	require.NotNil(t, first.StartedAt)

	second, err := store.ClaimNext(ctx, time.Now(), "w2")
	require.NoError(t, err)
	assert.Equal(t, "job-c", second.ID)

	third, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "job-b", third.ID)

	_, err = store.ClaimNext(ctx, time.Now(), "w1")
	assert.ErrorIs(t, err, models.ErrNoJob)
}

func TestJobStorage_ClaimNextTieBreakByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Now().Truncate(time.Second)
	require.NoError(t, store.Create(ctx, newPendingJob("job-2", at)))
	require.NoError(t, store.Create(ctx, newPendingJob("job-1", at)))

	first, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", first.ID)
}

func TestJobStorage_CompleteLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))
	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateProgress(ctx, "job-1", models.JobProgress{
		Current: 2, Total: 5, Stage: models.StageOCR,
	}))

	require.NoError(t, store.Complete(ctx, "job-1", `{"services":[]}`))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, `{"services":[]}`, got.ResultJSON)
	require.NotNil(t, got.CompletedAt)

	// Terminal jobs reject further transitions and progress writes.
	assert.ErrorIs(t, store.Complete(ctx, "job-1", "{}"), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.Fail(ctx, "job-1", "boom"), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.UpdateProgress(ctx, "job-1", models.JobProgress{Current: 1}), models.ErrInvalidTransition)
}

func TestJobStorage_IllegalTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))

	// Pending jobs cannot complete or fail without being claimed first.
	assert.ErrorIs(t, store.Complete(ctx, "job-1", "{}"), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.Fail(ctx, "job-1", "boom"), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.UpdateProgress(ctx, "job-1", models.JobProgress{Current: 1}), models.ErrInvalidTransition)
}

func TestJobStorage_CancelPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))
	require.NoError(t, store.Cancel(ctx, "job-1"))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.False(t, got.CancelRequested)

	// Cancelled jobs never reach workers.
	_, err = store.ClaimNext(ctx, time.Now(), "w1")
	assert.ErrorIs(t, err, models.ErrNoJob)

	// Idempotent on an already-cancelled job.
	assert.NoError(t, store.Cancel(ctx, "job-1"))
}

func TestJobStorage_CancelProcessingSetsFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))
	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)

	require.NoError(t, store.Cancel(ctx, "job-1"))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status, "status untouched until the worker acknowledges")
	assert.True(t, got.CancelRequested)

	flag, err := store.CancelRequested(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, flag)

	require.NoError(t, store.AcknowledgeCancel(ctx, "job-1"))
	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.False(t, got.CancelRequested)
	require.NotNil(t, got.CancelledAt)
}

func TestJobStorage_RetryFailedJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))
	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateProgress(ctx, "job-1", models.JobProgress{Current: 3, Total: 5}))
	require.NoError(t, store.Fail(ctx, "job-1", "ocr_transient: cloud endpoint unreachable"))

	retried, err := store.Retry(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", retried.ID, "retry keeps the same id")
	assert.Equal(t, models.JobStatusPending, retried.Status)
	assert.Equal(t, models.JobProgress{}, retried.Progress)
	assert.Empty(t, retried.Error)
	assert.Nil(t, retried.StartedAt)
	assert.Nil(t, retried.CompletedAt)
	assert.Equal(t, 1, retried.Attempts, "attempts carry across retries")

	// The retried job is claimable again and attempts keep counting.
	claimed, err := store.ClaimNext(ctx, time.Now(), "w2")
	require.NoError(t, err)
	assert.Equal(t, "job-1", claimed.ID)
	assert.Equal(t, 2, claimed.Attempts)
}

func TestJobStorage_RetryRejections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Completed jobs cannot be retried.
	require.NoError(t, store.Create(ctx, newPendingJob("job-done", time.Now())))
	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "job-done", "{}"))
	_, err = store.Retry(ctx, "job-done")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// Exhausted jobs cannot be retried.
	exhausted := newPendingJob("job-spent", time.Now())
	exhausted.MaxAttempts = 1
	require.NoError(t, store.Create(ctx, exhausted))
	_, err = store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "job-spent", "extract_terminal: vision tier failed"))
	_, err = store.Retry(ctx, "job-spent")
	assert.ErrorIs(t, err, models.ErrAttemptsExhausted)

	// Pending jobs have nothing to retry.
	require.NoError(t, store.Create(ctx, newPendingJob("job-fresh", time.Now())))
	_, err = store.Retry(ctx, "job-fresh")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestJobStorage_ExhaustedJobsNotClaimable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1", time.Now())
	job.MaxAttempts = 1
	require.NoError(t, store.Create(ctx, job))

	claimed, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, claimed.ID, "boom"))

	// Fail does not re-enqueue; and even if it were pending again, the attempt
	// budget is spent.
	_, err = store.ClaimNext(ctx, time.Now(), "w1")
	assert.ErrorIs(t, err, models.ErrNoJob)
}

func TestJobStorage_DeleteTerminalOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPendingJob("job-1", time.Now())))
	assert.ErrorIs(t, store.Delete(ctx, "job-1"), models.ErrNotTerminal)

	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	assert.ErrorIs(t, store.Delete(ctx, "job-1"), models.ErrNotTerminal)

	require.NoError(t, store.Complete(ctx, "job-1", "{}"))
	require.NoError(t, store.Delete(ctx, "job-1"))

	_, err = store.Get(ctx, "job-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestJobStorage_ListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		job := newPendingJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Second))
		if i >= 3 {
			job.UserID = "user-2"
		}
		if i == 4 {
			job.Type = models.JobTypeTenderAnalysis
		}
		require.NoError(t, store.Create(ctx, job))
	}
	_, err := store.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)

	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	byUser, err := store.List(ctx, &interfaces.JobListOptions{UserID: "user-2"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	processing, err := store.List(ctx, &interfaces.JobListOptions{Status: models.JobStatusProcessing})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "job-0", processing[0].ID)

	tender, err := store.List(ctx, &interfaces.JobListOptions{Type: models.JobTypeTenderAnalysis})
	require.NoError(t, err)
	require.Len(t, tender, 1)
	assert.Equal(t, "job-4", tender[0].ID)

	limited, err := store.List(ctx, &interfaces.JobListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
