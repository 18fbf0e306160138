package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/pipeline"
	"github.com/ternarybob/attesto/internal/services/events"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

// fakeProcessor lets tests control when a job finishes. Each Process call
// blocks until release is closed (or the context ends).
type fakeProcessor struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	release chan struct{}
	result  string
	err     error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{release: make(chan struct{}), result: `{"ok":true}`}
}

func (f *fakeProcessor) Process(ctx context.Context, job *models.Job, onProgress pipeline.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	onProgress(models.JobProgress{Stage: models.StageTexto, Current: 1, Total: 1})

	select {
	case <-f.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeProcessor) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func newTestScheduler(t *testing.T, maxConcurrent int, proc Processor) (*Scheduler, interfaces.JobStorage) {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jobs := badgerstore.NewJobStorage(db, logger)
	bus := events.NewService(logger)
	t.Cleanup(func() { _ = bus.Close() })

	cfg := &common.QueueConfig{MaxConcurrent: maxConcurrent, PollInterval: "10ms"}
	return NewScheduler(logger, cfg, jobs, proc, bus), jobs
}

func enqueue(t *testing.T, jobs interfaces.JobStorage, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		job := &models.Job{
			ID:       fmt.Sprintf("job-%d", i),
			UserID:   "user-1",
			Type:     models.JobTypeAttestation,
			FilePath: fmt.Sprintf("/tmp/doc-%d.pdf", i),
		}
		require.NoError(t, jobs.Create(context.Background(), job))
		ids = append(ids, job.ID)
	}
	return ids
}

func waitForStatus(t *testing.T, jobs interfaces.JobStorage, jobID string, want models.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := jobs.Get(context.Background(), jobID)
		return err == nil && job.Status == want
	}, 10*time.Second, 20*time.Millisecond, "job %s never reached %s", jobID, want)
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	proc := newFakeProcessor()
	sched, jobs := newTestScheduler(t, 2, proc)
	ids := enqueue(t, jobs, 3)

	sched.Start()
	defer sched.Stop()

	// Two workers saturate; the third job stays pending until one finishes.
	require.Eventually(t, func() bool {
		return proc.maxConcurrent() == 2
	}, 5*time.Second, 10*time.Millisecond)

	third, err := jobs.Get(context.Background(), ids[2])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, third.Status)

	close(proc.release)
	for _, id := range ids {
		waitForStatus(t, jobs, id, models.JobStatusCompleted)
	}
	assert.Equal(t, 2, proc.maxConcurrent())
}

func TestScheduler_CompletedJobStoresResult(t *testing.T) {
	proc := newFakeProcessor()
	proc.result = `{"attestation_id":"att-1"}`
	sched, jobs := newTestScheduler(t, 1, proc)
	ids := enqueue(t, jobs, 1)

	sched.Start()
	defer sched.Stop()
	close(proc.release)

	waitForStatus(t, jobs, ids[0], models.JobStatusCompleted)
	job, err := jobs.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, proc.result, job.ResultJSON)
	assert.NotNil(t, job.CompletedAt)
}

func TestScheduler_CancelDuringProcessing(t *testing.T) {
	proc := newFakeProcessor()
	sched, jobs := newTestScheduler(t, 1, proc)
	ids := enqueue(t, jobs, 1)

	sched.Start()
	defer sched.Stop()

	waitForStatus(t, jobs, ids[0], models.JobStatusProcessing)
	require.NoError(t, jobs.Cancel(context.Background(), ids[0]))

	// The worker observes the flag at its next checkpoint and acknowledges.
	waitForStatus(t, jobs, ids[0], models.JobStatusCancelled)
	job, err := jobs.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.NotNil(t, job.CancelledAt)
	assert.Empty(t, job.Error)
}

func TestScheduler_FailedJobCarriesUserMessage(t *testing.T) {
	proc := newFakeProcessor()
	proc.err = pipeline.Terminal(models.TierVisionAI, fmt.Errorf("vision tier failed"))
	sched, jobs := newTestScheduler(t, 1, proc)
	ids := enqueue(t, jobs, 1)

	sched.Start()
	defer sched.Stop()
	close(proc.release)

	waitForStatus(t, jobs, ids[0], models.JobStatusFailed)
	job, err := jobs.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Contains(t, job.Error, "extract_terminal:")
}

func TestScheduler_ProgressReachesStore(t *testing.T) {
	proc := newFakeProcessor()
	sched, jobs := newTestScheduler(t, 1, proc)
	ids := enqueue(t, jobs, 1)

	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		job, err := jobs.Get(context.Background(), ids[0])
		return err == nil && job.Progress.Stage == models.StageTexto
	}, 5*time.Second, 10*time.Millisecond)

	close(proc.release)
	waitForStatus(t, jobs, ids[0], models.JobStatusCompleted)
}
