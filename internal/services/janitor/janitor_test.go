package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

func newTestJanitor(t *testing.T, staleThreshold string) (*Service, interfaces.JobStorage, string) {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jobs := badgerstore.NewJobStorage(db, logger)
	tempDir := t.TempDir()
	svc := NewService(logger, &common.JanitorConfig{Enabled: true, StaleThreshold: staleThreshold}, jobs, tempDir)
	return svc, jobs, tempDir
}

func claimJob(t *testing.T, jobs interfaces.JobStorage, id string) *models.Job {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, jobs.Create(ctx, &models.Job{
		ID: id, UserID: "user-1", Type: models.JobTypeAttestation, FilePath: "/tmp/x.pdf",
	}))
	job, err := jobs.ClaimNext(ctx, time.Now(), "worker-test")
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	return job
}

func TestRecoverStaleJobs_RequeuesOldProcessing(t *testing.T) {
	svc, jobs, _ := newTestJanitor(t, "30m")
	claimJob(t, jobs, "job-stale")

	// Pretend an hour passed since the claim.
	requeued, exhausted := svc.RecoverStaleJobs(context.Background(), time.Now().Add(time.Hour))
	assert.Equal(t, 1, requeued)
	assert.Zero(t, exhausted)

	job, err := jobs.Get(context.Background(), "job-stale")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
}

func TestRecoverStaleJobs_LeavesFreshJobsAlone(t *testing.T) {
	svc, jobs, _ := newTestJanitor(t, "30m")
	claimJob(t, jobs, "job-fresh")

	requeued, _ := svc.RecoverStaleJobs(context.Background(), time.Now())
	assert.Zero(t, requeued)

	job, err := jobs.Get(context.Background(), "job-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
}

func TestRecoverStaleJobs_ExhaustedStaysFailed(t *testing.T) {
	svc, jobs, _ := newTestJanitor(t, "30m")
	ctx := context.Background()
	require.NoError(t, jobs.Create(ctx, &models.Job{
		ID: "job-tired", UserID: "user-1", Type: models.JobTypeAttestation,
		FilePath: "/tmp/x.pdf", MaxAttempts: 1,
	}))
	_, err := jobs.ClaimNext(ctx, time.Now(), "worker-test")
	require.NoError(t, err)

	requeued, exhausted := svc.RecoverStaleJobs(ctx, time.Now().Add(time.Hour))
	assert.Zero(t, requeued)
	assert.Equal(t, 1, exhausted)

	job, err := jobs.Get(ctx, "job-tired")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "stale:")
}

func TestSweepTempDir(t *testing.T) {
	svc, _, tempDir := newTestJanitor(t, "30m")

	oldDir := filepath.Join(tempDir, "pages_doc1")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "page-01.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "Content_page_1"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "unrelated.txt"), []byte("x"), 0o644))

	// Everything was just created, so a sweep at now+48h removes the
	// pipeline artifacts and nothing else.
	removed := svc.SweepTempDir(time.Now().Add(48 * time.Hour))
	assert.Equal(t, 2, removed)

	_, err := os.Stat(filepath.Join(tempDir, "unrelated.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
}
