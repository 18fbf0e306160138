package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/services/events"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

func newTestStores(t *testing.T) interfaces.StorageManager {
	t.Helper()
	logger := common.GetLogger()
	manager, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func newUploadHandler(t *testing.T, storage interfaces.StorageManager) *UploadHandler {
	t.Helper()
	return newUploadHandlerWithAttempts(t, storage, 3)
}

func newUploadHandlerWithAttempts(t *testing.T, storage interfaces.StorageManager, maxAttempts int) *UploadHandler {
	t.Helper()
	logger := common.GetLogger()
	cfg := &common.UploadConfig{MaxUploadBytes: 1 << 20, UploadDir: t.TempDir()}
	return NewUploadHandler(logger, cfg, maxAttempts, storage.JobStorage(), events.NewService(logger))
}

func multipartUpload(t *testing.T, filename, jobType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if jobType != "" {
		require.NoError(t, mw.WriteField("type", jobType))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")
	return req
}

func TestUpload_AcceptsPDFAndEnqueues(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandler(t, storage)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "atestado.pdf", "", []byte("%PDF-1.4 fake")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobTypeAttestation, job.Type)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "atestado.pdf", job.OriginalFilename)

	stored, err := storage.JobStorage().Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
}

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandler(t, storage)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "planilha.xlsx", "", []byte("PK")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Rejected uploads never reach the queue.
	jobs, err := storage.JobStorage().List(context.Background(), &interfaces.JobListOptions{UserID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestUpload_RejectsBadJobType(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandler(t, storage)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "doc.pdf", "mystery", []byte("%PDF")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TenderAnalysisType(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandler(t, storage)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "edital.pdf", "tender_analysis", []byte("%PDF")))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobTypeTenderAnalysis, job.Type)
}

func TestUpload_AppliesConfiguredAttemptBudget(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandlerWithAttempts(t, storage, 1)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "atestado.pdf", "", []byte("%PDF")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	stored, err := storage.JobStorage().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MaxAttempts)

	// With a budget of one, the first failure exhausts the job.
	jobs := storage.JobStorage()
	_, err = jobs.ClaimNext(ctx, time.Now(), "w1")
	require.NoError(t, err)
	require.NoError(t, jobs.Fail(ctx, job.ID, "boom"))
	_, err = jobs.Retry(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrAttemptsExhausted)
}

func TestUpload_RequiresFileField(t *testing.T) {
	storage := newTestStores(t)
	h := newUploadHandler(t, storage)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("type", "attestation"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
