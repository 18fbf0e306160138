package models

import (
	"time"
)

// JobStatus represents the state of a processing job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobType distinguishes what a completed job produces
type JobType string

const (
	// JobTypeAttestation extracts a services list and creates an Attestation
	JobTypeAttestation JobType = "attestation"
	// JobTypeTenderAnalysis extracts requirements from a tender notice
	JobTypeTenderAnalysis JobType = "tender_analysis"
)

// PipelineTier identifies which extraction tier produced a result,
// ordered by cost ascending.
type PipelineTier string

const (
	TierNativeText PipelineTier = "native_text"
	TierLocalOCR   PipelineTier = "local_ocr"
	TierCloudOCR   PipelineTier = "cloud_ocr"
	TierVisionAI   PipelineTier = "vision_ai"
)

// Progress stage names emitted at cascade stage boundaries.
const (
	StageTexto  = "texto"
	StageOCR    = "ocr"
	StageVision = "vision"
	StageIA     = "ia"
	StageMerge  = "merge"
	StageFinal  = "final"
	StageSave   = "save"
)

// JobProgress is the live progress tuple for a job. Current is monotonically
// non-decreasing within one attempt; Total is the page count of the stage unit.
type JobProgress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message,omitempty"`
	Pipeline string `json:"pipeline,omitempty"`
}

// Job is a unit of asynchronous document processing. The uploaded file is
// referenced by path; the job owns no domain entities until it completes, at
// which point its parsed services become a new Attestation (or, for tender
// jobs, the requirements of an Analysis).
type Job struct {
	ID               string      `json:"id" badgerhold:"key"`
	UserID           string      `json:"user_id" badgerhold:"index"`
	Type             JobType     `json:"type"`
	FilePath         string      `json:"file_path"`
	OriginalFilename string      `json:"original_filename,omitempty"`
	Status           JobStatus   `json:"status" badgerhold:"index"`
	Progress         JobProgress `json:"progress"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
	// ResultJSON holds the serialized job output (services list for
	// attestation jobs, requirements list for tender jobs).
	ResultJSON string `json:"result_json,omitempty"`
	// Error contains a concise, user-facing description of why the job
	// failed. Format: "code: message" (e.g. "extract_terminal: vision tier
	// failed"). Only populated for failed jobs.
	Error       string `json:"error,omitempty"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	// CancelRequested is set when cancellation is requested while the job is
	// processing. The worker acknowledges at its next checkpoint by
	// transitioning the job to cancelled.
	CancelRequested bool `json:"cancel_requested,omitempty"`
	// WorkerID records which worker claimed the job, for diagnostics.
	WorkerID string `json:"worker_id,omitempty"`
}

// Terminal reports whether the job is in a terminal state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Retryable reports whether the job may transition back to pending.
func (j *Job) Retryable() bool {
	if j.Status != JobStatusFailed && j.Status != JobStatusCancelled {
		return false
	}
	return j.Attempts < j.MaxAttempts
}

// legalTransitions is the job state machine. Any transition not listed here
// is rejected by the store with ErrInvalidTransition.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:     {JobStatusPending},
	JobStatusCancelled:  {JobStatusPending},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to JobStatus) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
