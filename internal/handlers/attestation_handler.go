// -----------------------------------------------------------------------
// Attestation Handler - attestation listing and service corrections
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/normalize"
)

type AttestationHandler struct {
	logger       arbor.ILogger
	attestations interfaces.AttestationStorage
}

func NewAttestationHandler(logger arbor.ILogger, attestations interfaces.AttestationStorage) *AttestationHandler {
	return &AttestationHandler{logger: logger, attestations: attestations}
}

// List handles GET /api/attestations.
func (h *AttestationHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	atts, err := h.attestations.ListByUser(r.Context(), UserID(r))
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"attestations": atts, "count": len(atts)})
}

// Routes dispatches /api/attestations/{id} and /{id}/services.
func (h *AttestationHandler) Routes(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/attestations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "attestation id is required")
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/attestations/"+id), "/")
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case action == "services" && r.Method == http.MethodPut:
		h.updateServices(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AttestationHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	att, err := h.attestations.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, att)
}

// updateServices replaces the services list after a user's manual
// correction. Rows must carry a positive quantity and a plausible unit;
// a row that fails either check would silently never match anything.
func (h *AttestationHandler) updateServices(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Services []models.Service `json:"services"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for i := range body.Services {
		svc := &body.Services[i]
		if strings.TrimSpace(svc.Description) == "" {
			WriteError(w, http.StatusBadRequest, "every service needs a description")
			return
		}
		if svc.Quantity == nil || *svc.Quantity <= 0 {
			WriteError(w, http.StatusBadRequest, "every service needs a positive quantity")
			return
		}
		if !normalize.ValidUnit(normalize.Unit(svc.Unit)) {
			WriteError(w, http.StatusBadRequest, "service unit "+svc.Unit+" is not recognized")
			return
		}
	}

	if err := h.attestations.UpdateServices(r.Context(), id, body.Services); err != nil {
		WriteStorageError(w, err)
		return
	}

	h.logger.Info().Str("attestation_id", id).Int("services", len(body.Services)).Msg("Attestation services updated")
	att, err := h.attestations.Get(r.Context(), id)
	if err != nil {
		WriteStorageError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, att)
}

func (h *AttestationHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.attestations.Delete(r.Context(), id); err != nil {
		WriteStorageError(w, err)
		return
	}
	h.logger.Info().Str("attestation_id", id).Msg("Attestation deleted")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
