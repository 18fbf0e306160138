// -----------------------------------------------------------------------
// Job Scheduler - worker pool claiming and driving document jobs
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/pipeline"
	"github.com/ternarybob/attesto/internal/services/events"
)

// cancelPollInterval is how often a busy worker re-checks the job's
// cancellation flag.
const cancelPollInterval = 500 * time.Millisecond

// Processor turns a claimed job into its serialized result. Implementations
// must honor ctx cancellation at stage boundaries.
type Processor interface {
	Process(ctx context.Context, job *models.Job, onProgress pipeline.ProgressFunc) (string, error)
}

// Scheduler owns the worker pool. Each worker polls the job store, claims
// the oldest pending job and drives it through the processor. Claims are
// serialized by the store, so workers never double-claim.
type Scheduler struct {
	logger    arbor.ILogger
	config    *common.QueueConfig
	jobs      interfaces.JobStorage
	processor Processor
	events    interfaces.EventService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(logger arbor.ILogger, config *common.QueueConfig, jobs interfaces.JobStorage, processor Processor, eventBus interfaces.EventService) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:    logger,
		config:    config,
		jobs:      jobs,
		processor: processor,
		events:    eventBus,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	s.logger.Info().
		Int("concurrency", s.config.MaxConcurrent).
		Str("poll_interval", s.config.PollInterval).
		Msg("Starting job scheduler")

	for i := 0; i < s.config.MaxConcurrent; i++ {
		s.wg.Add(1)
		go s.worker(fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels the workers and waits for in-flight jobs to wind down. Jobs
// interrupted mid-flight stay in processing; the janitor requeues them after
// the stale threshold.
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping job scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker(workerID string) {
	defer s.wg.Done()

	poll := s.config.PollIntervalDuration()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		// Drain the backlog before sleeping.
		for s.claimAndRun(workerID) {
			if s.ctx.Err() != nil {
				return
			}
		}

		select {
		case <-s.ctx.Done():
			s.logger.Debug().Str("worker_id", workerID).Msg("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// claimAndRun claims at most one job. Returns true when a job was claimed,
// so the caller can immediately try again.
func (s *Scheduler) claimAndRun(workerID string) bool {
	job, err := s.jobs.ClaimNext(s.ctx, time.Now(), workerID)
	if err != nil {
		if !errors.Is(err, models.ErrNoJob) && s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("worker_id", workerID).Msg("Failed to claim job")
		}
		return false
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("worker_id", workerID).
		Int("attempt", job.Attempts).
		Msg("Job claimed")
	events.PublishJobEvent(s.ctx, s.events, interfaces.EventJobStatus, job)

	s.runJob(job)
	return true
}

func (s *Scheduler) runJob(job *models.Job) {
	var jobCtx context.Context
	var cancelJob context.CancelFunc
	if timeout := s.config.JobTimeoutDuration(); timeout > 0 {
		jobCtx, cancelJob = context.WithTimeout(s.ctx, timeout)
	} else {
		jobCtx, cancelJob = context.WithCancel(s.ctx)
	}
	defer cancelJob()

	stopWatch := s.watchCancellation(jobCtx, job.ID, cancelJob)
	defer stopWatch()

	onProgress := func(progress models.JobProgress) {
		if err := s.jobs.UpdateProgress(jobCtx, job.ID, progress); err != nil {
			return
		}
		job.Progress = progress
		events.PublishJobEvent(jobCtx, s.events, interfaces.EventJobProgress, job)
	}

	resultJSON, err := s.processor.Process(jobCtx, job, onProgress)
	if err != nil {
		s.finishWithError(job, jobCtx, err)
		return
	}

	if err := s.jobs.Complete(s.ctx, job.ID, resultJSON); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to complete job")
		return
	}
	job.Status = models.JobStatusCompleted
	job.ResultJSON = resultJSON
	s.logger.Info().Str("job_id", job.ID).Msg("Job completed")
	events.PublishJobEvent(s.ctx, s.events, interfaces.EventJobCompleted, job)
}

// finishWithError maps a processing error onto the job state machine.
// Cancellation requested by the user is acknowledged; scheduler shutdown
// leaves the job in processing for the janitor; everything else fails the
// job with a user-facing message.
func (s *Scheduler) finishWithError(job *models.Job, jobCtx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(jobCtx.Err(), context.Canceled) {
		requested, flagErr := s.jobs.CancelRequested(context.Background(), job.ID)
		if flagErr == nil && requested {
			if ackErr := s.jobs.AcknowledgeCancel(context.Background(), job.ID); ackErr == nil {
				job.Status = models.JobStatusCancelled
				s.logger.Info().Str("job_id", job.ID).Msg("Job cancelled by request")
				events.PublishJobEvent(context.Background(), s.events, interfaces.EventJobStatus, job)
			}
			return
		}
		if s.ctx.Err() != nil {
			s.logger.Warn().Str("job_id", job.ID).Msg("Job interrupted by shutdown, left for requeue")
			return
		}
	}

	msg := pipeline.UserMessage(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		msg = "timeout: processing exceeded the configured job timeout"
	}

	if failErr := s.jobs.Fail(context.Background(), job.ID, msg); failErr != nil {
		s.logger.Error().Err(failErr).Str("job_id", job.ID).Msg("Failed to mark job failed")
		return
	}
	job.Status = models.JobStatusFailed
	job.Error = msg
	s.logger.Warn().Err(err).Str("job_id", job.ID).Str("user_error", msg).Msg("Job failed")
	events.PublishJobEvent(context.Background(), s.events, interfaces.EventJobFailed, job)
}

// watchCancellation polls the job's cancellation flag while it runs and
// cancels the job context when the flag appears. Returns a stop function.
func (s *Scheduler) watchCancellation(jobCtx context.Context, jobID string, cancelJob context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				requested, err := s.jobs.CancelRequested(jobCtx, jobID)
				if err == nil && requested {
					cancelJob()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
