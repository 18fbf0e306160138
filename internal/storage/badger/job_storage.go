// -----------------------------------------------------------------------
// Job Storage - durable job records with server-side state machine
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements interfaces.JobStorage on badgerhold.
//
// Claims and status transitions are serialized through a store-level mutex:
// the process owns the Badger directory exclusively, so the mutex is the
// atomicity boundary that prevents two workers claiming the same job.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job.Status = models.JobStatusPending
	job.Attempts = 0
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) get(jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(jobID)
}

// ClaimNext atomically claims the oldest claimable pending job.
func (s *JobStorage) ClaimNext(ctx context.Context, now time.Time, workerID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusPending)
	if err := s.db.Store().Find(&pending, query); err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	// FIFO by created_at, ties broken by id.
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	for i := range pending {
		job := pending[i]
		if job.Attempts >= job.MaxAttempts {
			continue
		}
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		job.Attempts++
		job.WorkerID = workerID
		job.Error = ""
		if err := s.db.Store().Update(job.ID, &job); err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("worker_id", workerID).
			Int("attempt", job.Attempts).
			Msg("Job claimed")
		return &job, nil
	}
	return nil, models.ErrNoJob
}

func (s *JobStorage) UpdateProgress(ctx context.Context, jobID string, progress models.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("progress on %s job: %w", job.Status, models.ErrInvalidTransition)
	}
	job.Progress = progress
	return s.db.Store().Update(jobID, job)
}

// transition moves a job to a new status after validating the state machine.
func (s *JobStorage) transition(jobID string, to models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	job, err := s.get(jobID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", job.Status, to, models.ErrInvalidTransition)
	}
	job.Status = to
	if mutate != nil {
		mutate(job)
	}
	if err := s.db.Store().Update(jobID, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

func (s *JobStorage) Complete(ctx context.Context, jobID string, resultJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.transition(jobID, models.JobStatusCompleted, func(j *models.Job) {
		j.CompletedAt = &now
		j.ResultJSON = resultJSON
		j.CancelRequested = false
	})
	return err
}

func (s *JobStorage) Fail(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.transition(jobID, models.JobStatusFailed, func(j *models.Job) {
		j.CompletedAt = &now
		j.Error = errMsg
	})
	return err
}

func (s *JobStorage) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusPending:
		now := time.Now()
		_, err := s.transition(jobID, models.JobStatusCancelled, func(j *models.Job) {
			j.CancelledAt = &now
		})
		return err
	case models.JobStatusProcessing:
		// The worker acknowledges at its next checkpoint.
		job.CancelRequested = true
		return s.db.Store().Update(jobID, job)
	case models.JobStatusCancelled:
		return nil // Idempotent
	default:
		return fmt.Errorf("cancel on %s job: %w", job.Status, models.ErrInvalidTransition)
	}
}

func (s *JobStorage) AcknowledgeCancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.transition(jobID, models.JobStatusCancelled, func(j *models.Job) {
		j.CancelledAt = &now
		j.CancelRequested = false
	})
	return err
}

func (s *JobStorage) Retry(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusCancelled {
		return nil, fmt.Errorf("retry on %s job: %w", job.Status, models.ErrInvalidTransition)
	}
	if job.Attempts >= job.MaxAttempts {
		return nil, models.ErrAttemptsExhausted
	}
	return s.transition(jobID, models.JobStatusPending, func(j *models.Job) {
		j.Progress = models.JobProgress{}
		j.StartedAt = nil
		j.CompletedAt = nil
		j.CancelledAt = nil
		j.Error = ""
		j.CancelRequested = false
		j.WorkerID = ""
	})
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := badgerhold.Where("ID").Ne("")
	if opts != nil {
		if opts.UserID != "" {
			query = query.And("UserID").Eq(opts.UserID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(jobID)
	if err != nil {
		return err
	}
	if !job.Terminal() {
		return models.ErrNotTerminal
	}
	return s.db.Store().Delete(jobID, &models.Job{})
}

func (s *JobStorage) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(jobID)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}
