package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/novaangola/apiserver/internal/services"
	"github.com/novaangola/apiserver/types"
)

const (
	msgConfirmAuthRequired  = "Precisa estar autenticado para confirmar."
	msgRiskAreaIDRequired   = "ID da área de risco é obrigatório."
	msgRiskAreaNotFound     = "Área de risco não encontrada."
	msgAlreadyConfirmed     = "Você já confirmou esta ocorrência recentemente."
	msgConfirmationRecorded = "Confirmação registada com sucesso."
)

// ConfirmationHandler serves the confirmation ledger endpoints.
type ConfirmationHandler struct {
	confirmationService *services.ConfirmationService
	identities          IdentityResolver
	logger              *slog.Logger
}

// NewConfirmationHandler constructs a ConfirmationHandler with the provided dependencies.
func NewConfirmationHandler(confirmationService *services.ConfirmationService, identities IdentityResolver, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{confirmationService: confirmationService, identities: identities, logger: logger}
}

// ConfirmationRouter registers confirmation routes on the given router.
func ConfirmationRouter(r chi.Router, confirmationService *services.ConfirmationService, identities IdentityResolver, logger *slog.Logger) {
	handler := NewConfirmationHandler(confirmationService, identities, logger)

	r.Post("/analisar_aria", handler.Confirm)
	r.Get("/buscar_analise_total", handler.Count)
}

// ConfirmRequest is the /analisar_aria body.
type ConfirmRequest struct {
	AriaDeRisco text `json:"ariaDeRisco"`
}

// CountResponse is the /buscar_analise_total payload.
type CountResponse struct {
	ConfirmationCount int64          `json:"confirmationCount"`
	Severity          types.Severity `json:"severity"`
}

type countErrorResponse struct {
	Message           string `json:"message"`
	ConfirmationCount int64  `json:"confirmationCount"`
}

// Confirm records that the caller vouches for a risk area. The caller must be
// authenticated before the body is considered.
func (h *ConfirmationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.identities, msgConfirmAuthRequired)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgRiskAreaIDRequired)
		return
	}
	riskAreaID := string(req.AriaDeRisco.trim())
	if riskAreaID == "" {
		writeError(w, http.StatusBadRequest, msgRiskAreaIDRequired)
		return
	}

	if _, err := h.confirmationService.Confirm(r.Context(), riskAreaID, identity.ID); err != nil {
		switch {
		case errors.Is(err, services.ErrRiskAreaNotFound):
			writeError(w, http.StatusNotFound, msgRiskAreaNotFound)
		case errors.Is(err, services.ErrAlreadyConfirmed):
			writeError(w, http.StatusConflict, msgAlreadyConfirmed)
		case errors.Is(err, services.ErrIdentityRequired):
			writeError(w, http.StatusUnauthorized, msgConfirmAuthRequired)
		default:
			h.logger.ErrorContext(r.Context(), "failed to confirm risk area",
				"risk_area_id", riskAreaID,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, msgInternalError)
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: msgConfirmationRecorded})
}

// Count returns the number of confirmations for ?ariaDeRisco=. A missing or
// unknown id counts zero.
func (h *ConfirmationHandler) Count(w http.ResponseWriter, r *http.Request) {
	riskAreaID := strings.TrimSpace(r.URL.Query().Get("ariaDeRisco"))

	count, err := h.confirmationService.Count(r.Context(), riskAreaID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to count confirmations",
			"risk_area_id", riskAreaID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, countErrorResponse{Message: msgInternalError})
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{
		ConfirmationCount: count,
		Severity:          types.SeverityForCount(count),
	})
}
