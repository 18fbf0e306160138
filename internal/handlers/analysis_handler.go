// -----------------------------------------------------------------------
// Analysis Handler - tender analyses, matching and report export
// -----------------------------------------------------------------------

package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/matcher"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/services/report"
	"github.com/ternarybob/attesto/internal/services/tender"
)

type AnalysisHandler struct {
	logger       arbor.ILogger
	analyses     interfaces.AnalysisStorage
	attestations interfaces.AttestationStorage
	matcher      *matcher.Matcher
	reports      *report.Service
	tender       *tender.Service
}

func NewAnalysisHandler(logger arbor.ILogger, analyses interfaces.AnalysisStorage, attestations interfaces.AttestationStorage, m *matcher.Matcher, reports *report.Service, tenderService *tender.Service) *AnalysisHandler {
	return &AnalysisHandler{
		logger:       logger,
		analyses:     analyses,
		attestations: attestations,
		matcher:      m,
		reports:      reports,
		tender:       tenderService,
	}
}

// Collection handles GET (list) and POST (create) on /api/analyses.
func (h *AnalysisHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AnalysisHandler) list(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.analyses.ListByUser(r.Context(), UserID(r))
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"analyses": analyses, "count": len(analyses)})
}

// create accepts a JSON requirements list, a YAML requirements template
// (Content-Type application/yaml) or a raw tender notice page
// (Content-Type text/html). The analysis is matched against the user's
// attestations immediately.
func (h *AnalysisHandler) create(w http.ResponseWriter, r *http.Request) {
	var name string
	var requirements []models.Requirement

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "yaml"):
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		name, requirements, err = tender.ParseRequirementsYAML(data)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	case strings.Contains(contentType, "html"):
		data, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		requirements, err = h.tender.ParseNoticeHTML(r.Context(), string(data))
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, "failed to extract requirements from notice: "+err.Error())
			return
		}
		name = r.URL.Query().Get("name")
		if name == "" {
			name = "Edital importado"
		}
	default:
		var body struct {
			Name         string               `json:"name"`
			Requirements []models.Requirement `json:"requirements"`
		}
		if err := DecodeJSON(r, &body); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		name, requirements = body.Name, body.Requirements
	}

	if len(requirements) == 0 {
		WriteError(w, http.StatusBadRequest, "at least one requirement is required")
		return
	}
	for _, req := range requirements {
		if strings.TrimSpace(req.Description) == "" || req.Required <= 0 {
			WriteError(w, http.StatusBadRequest, "every requirement needs a description and a positive quantity")
			return
		}
	}

	userID := UserID(r)
	atts, err := h.attestations.ListByUser(r.Context(), userID)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	now := time.Now()
	analysis := &models.Analysis{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         name,
		Requirements: requirements,
		Result:       h.matcher.Match(requirements, atts),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.analyses.Save(r.Context(), analysis); err != nil {
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().
		Str("analysis_id", analysis.ID).
		Int("requirements", len(requirements)).
		Msg("Analysis created")
	WriteJSON(w, http.StatusCreated, analysis)
}

// Routes dispatches /api/analyses/{id} and its actions.
func (h *AnalysisHandler) Routes(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/analyses/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "analysis id is required")
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/analyses/"+id), "/")
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case action == "match" && r.Method == http.MethodPost:
		h.rematch(w, r, id)
	case action == "report" && r.Method == http.MethodGet:
		h.report(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AnalysisHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	analysis, err := h.analyses.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, analysis)
}

// rematch re-runs the matcher, picking up attestation corrections made
// since the analysis was created.
func (h *AnalysisHandler) rematch(w http.ResponseWriter, r *http.Request, id string) {
	analysis, err := h.analyses.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	atts, err := h.attestations.ListByUser(r.Context(), analysis.UserID)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	analysis.Result = h.matcher.Match(analysis.Requirements, atts)
	analysis.UpdatedAt = time.Now()
	if err := h.analyses.Save(r.Context(), analysis); err != nil {
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().Str("analysis_id", id).Int("attestations", len(atts)).Msg("Analysis rematched")
	WriteJSON(w, http.StatusOK, analysis)
}

func (h *AnalysisHandler) report(w http.ResponseWriter, r *http.Request, id string) {
	analysis, err := h.analyses.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}

	pdf, err := h.reports.GenerateAnalysisReport(analysis)
	if err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.ReportFilename(id, time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (h *AnalysisHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.analyses.Delete(r.Context(), id); err != nil {
		WriteStorageError(w, err)
		return
	}
	h.logger.Info().Str("analysis_id", id).Msg("Analysis deleted")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
