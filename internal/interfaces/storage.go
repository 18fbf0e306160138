package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/attesto/internal/models"
)

// JobListOptions filters job listings.
type JobListOptions struct {
	UserID string
	Status models.JobStatus
	Type   models.JobType
	Limit  int
	Offset int
}

// JobStorage is the durable job store. All status transitions are validated
// against the job state machine; illegal transitions return
// models.ErrInvalidTransition without mutating.
type JobStorage interface {
	// Create persists a new job in pending status with attempts = 0.
	Create(ctx context.Context, job *models.Job) error

	// ClaimNext atomically moves the oldest pending job with
	// attempts < max_attempts into processing, stamps started_at and the
	// worker id, and increments attempts. FIFO by created_at, ties broken by
	// id. Returns models.ErrNoJob when nothing is claimable.
	ClaimNext(ctx context.Context, now time.Time, workerID string) (*models.Job, error)

	// UpdateProgress overwrites the live progress tuple of a processing job.
	UpdateProgress(ctx context.Context, jobID string, progress models.JobProgress) error

	// Complete transitions processing -> completed and stores the result.
	Complete(ctx context.Context, jobID string, resultJSON string) error

	// Fail transitions processing -> failed with a user-facing error string.
	Fail(ctx context.Context, jobID string, errMsg string) error

	// Cancel transitions a pending job directly to cancelled; for a
	// processing job it sets cancel_requested and leaves the transition to
	// the worker's next checkpoint. Idempotent on terminal jobs.
	Cancel(ctx context.Context, jobID string) error

	// AcknowledgeCancel transitions processing -> cancelled. Called by the
	// worker when it observes the cancellation flag.
	AcknowledgeCancel(ctx context.Context, jobID string) error

	// Retry transitions a terminal failed/cancelled job back to pending with
	// progress reset, keeping the same id. Rejected for completed jobs and
	// when attempts >= max_attempts.
	Retry(ctx context.Context, jobID string) (*models.Job, error)

	Get(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// Delete removes a terminal job. Non-terminal jobs return ErrNotTerminal.
	Delete(ctx context.Context, jobID string) error

	// CancelRequested reports the live cancellation flag for a job.
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// AttestationStorage persists attestations and their services.
type AttestationStorage interface {
	Save(ctx context.Context, att *models.Attestation) error
	Get(ctx context.Context, id string) (*models.Attestation, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Attestation, error)
	UpdateServices(ctx context.Context, id string, services []models.Service) error
	Delete(ctx context.Context, id string) error
}

// AnalysisStorage persists tender analyses and their match results.
type AnalysisStorage interface {
	Save(ctx context.Context, analysis *models.Analysis) error
	Get(ctx context.Context, id string) (*models.Analysis, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Analysis, error)
	Delete(ctx context.Context, id string) error
}

// UserStorage persists users.
type UserStorage interface {
	Save(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// KeyValueStorage is generic string KV storage (API keys, connector state).
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StorageManager bundles the typed storages behind one connection.
type StorageManager interface {
	JobStorage() JobStorage
	AttestationStorage() AttestationStorage
	AnalysisStorage() AnalysisStorage
	UserStorage() UserStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
