// -----------------------------------------------------------------------
// Job Handler - job listing, snapshots and lifecycle operations
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/services/events"
)

type JobHandler struct {
	logger arbor.ILogger
	jobs   interfaces.JobStorage
	events interfaces.EventService
}

func NewJobHandler(logger arbor.ILogger, jobs interfaces.JobStorage, eventBus interfaces.EventService) *JobHandler {
	return &JobHandler{logger: logger, jobs: jobs, events: eventBus}
}

// List handles GET /api/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.JobListOptions{
		UserID: UserID(r),
		Status: models.JobStatus(r.URL.Query().Get("status")),
		Type:   models.JobType(r.URL.Query().Get("type")),
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}

	jobs, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// Routes dispatches /api/jobs/{id} and /api/jobs/{id}/{action}.
func (h *JobHandler) Routes(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/jobs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	action := ""
	if rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/"+id); rest != "" {
		action = strings.Trim(rest, "/")
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		h.retry(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// get returns the job snapshot clients reconcile against after reconnect.
func (h *JobHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.jobs.Cancel(r.Context(), id); err != nil {
		WriteStorageError(w, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("Job cancellation requested")
	events.PublishJobEvent(r.Context(), h.events, interfaces.EventJobStatus, job)
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) retry(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.Retry(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().Str("job_id", id).Int("attempts", job.Attempts).Msg("Job requeued")
	events.PublishJobEvent(r.Context(), h.events, interfaces.EventJobStatus, job)
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	if err := h.jobs.Delete(r.Context(), id); err != nil {
		WriteStorageError(w, err)
		return
	}

	// The uploaded file belongs to the job; a deleted job leaves no orphan.
	if job.FilePath != "" {
		if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
			h.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job upload")
		}
	}

	h.logger.Info().Str("job_id", id).Msg("Job deleted")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
