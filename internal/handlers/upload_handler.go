// -----------------------------------------------------------------------
// Upload Handler - multipart document intake, validation before enqueue
// -----------------------------------------------------------------------

package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/services/events"
)

var acceptedUploadExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
}

// uploadRequest carries the non-file fields of an upload form.
type uploadRequest struct {
	Type string `validate:"omitempty,oneof=attestation tender_analysis"`
}

// UploadHandler accepts document uploads and enqueues processing jobs.
// Validation failures are rejected before anything reaches the queue.
type UploadHandler struct {
	logger      arbor.ILogger
	config      *common.UploadConfig
	jobs        interfaces.JobStorage
	events      interfaces.EventService
	maxAttempts int
	validate    *validator.Validate
}

func NewUploadHandler(logger arbor.ILogger, config *common.UploadConfig, maxAttempts int, jobs interfaces.JobStorage, eventBus interfaces.EventService) *UploadHandler {
	return &UploadHandler{
		logger:      logger,
		config:      config,
		jobs:        jobs,
		events:      eventBus,
		maxAttempts: maxAttempts,
		validate:    validator.New(),
	}
}

// Upload handles POST /api/upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("upload exceeds the %d byte limit or is not valid multipart", h.config.MaxUploadBytes))
		return
	}

	req := uploadRequest{Type: r.FormValue("type")}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "type must be attestation or tender_analysis")
		return
	}
	jobType := models.JobTypeAttestation
	if req.Type == string(models.JobTypeTenderAnalysis) {
		jobType = models.JobTypeTenderAnalysis
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !acceptedUploadExtensions[ext] {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("file type %q not accepted (PDF, PNG, JPG, JPEG, WEBP)", ext))
		return
	}
	if header.Size > h.config.MaxUploadBytes {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("file exceeds the %d byte limit", h.config.MaxUploadBytes))
		return
	}

	jobID := uuid.New().String()
	dest, err := h.saveUpload(file, jobID+ext)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist upload")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job := &models.Job{
		ID:               jobID,
		UserID:           UserID(r),
		Type:             jobType,
		FilePath:         dest,
		OriginalFilename: header.Filename,
		MaxAttempts:      h.maxAttempts,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		os.Remove(dest)
		h.logger.Error().Err(err).Msg("Failed to enqueue upload job")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("filename", header.Filename).
		Int64("bytes", header.Size).
		Msg("Upload accepted")
	events.PublishJobEvent(r.Context(), h.events, interfaces.EventJobCreated, job)

	WriteJSON(w, http.StatusAccepted, job)
}

func (h *UploadHandler) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	dest := filepath.Join(h.config.UploadDir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dest)
		return "", err
	}
	return dest, f.Close()
}
