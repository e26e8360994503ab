package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novaangola/apiserver/internal/services"
	"github.com/novaangola/apiserver/types"
)

const msgReportCreated = "Ocorrência registada."

// RiskAreaHandler serves report submission and the public report list.
type RiskAreaHandler struct {
	riskAreaService *services.RiskAreaService
	identities      IdentityResolver
	logger          *slog.Logger
}

// NewRiskAreaHandler constructs a RiskAreaHandler with the provided dependencies.
func NewRiskAreaHandler(riskAreaService *services.RiskAreaService, identities IdentityResolver, logger *slog.Logger) *RiskAreaHandler {
	return &RiskAreaHandler{riskAreaService: riskAreaService, identities: identities, logger: logger}
}

// RiskAreaRouter registers report routes on the given router.
func RiskAreaRouter(r chi.Router, riskAreaService *services.RiskAreaService, identities IdentityResolver, logger *slog.Logger) {
	handler := NewRiskAreaHandler(riskAreaService, identities, logger)

	r.Post("/postar_aria", handler.Create)
	r.Get("/buscar_aria_de_risco", handler.List)
}

// CreateRiskAreaRequest is the /postar_aria body. Every field is optional
// and falsy values are stored as null.
type CreateRiskAreaRequest struct {
	Imagem            json.RawMessage `json:"imagem"`
	Chuva             json.RawMessage `json:"chuva"`
	Temperatura       json.RawMessage `json:"temperatura"`
	Tempo             json.RawMessage `json:"tempo"`
	EnderecoFormatado json.RawMessage `json:"enderecoFormatado"`
	Lat               json.RawMessage `json:"lat"`
	Log               json.RawMessage `json:"log"`
	Categoria         json.RawMessage `json:"categoria"`
	Respostas         json.RawMessage `json:"respostas"`
	Classificacao     json.RawMessage `json:"classificacao"`
	Analise           json.RawMessage `json:"analise"`
}

func (req CreateRiskAreaRequest) toRiskArea() types.RiskArea {
	area := types.RiskArea{
		Imagem:            optionalText(req.Imagem),
		Chuva:             optionalText(req.Chuva),
		Temperatura:       optionalText(req.Temperatura),
		Tempo:             optionalText(req.Tempo),
		EnderecoFormatado: optionalText(req.EnderecoFormatado),
		Lat:               optionalCoordinate(req.Lat),
		Lng:               optionalCoordinate(req.Log),
		Respostas:         optionalDocument(req.Respostas),
		Classificacao:     optionalDocument(req.Classificacao),
	}
	if area.Classificacao == nil {
		area.Classificacao = optionalDocument(req.Analise)
	}
	if raw := optionalText(req.Categoria); raw != nil {
		if category, ok := types.ParseCategory(*raw); ok {
			area.Categoria = &category
		}
	}
	return area
}

func optionalDocument(raw json.RawMessage) types.Document {
	raw = bytes.TrimSpace(raw)
	if isFalsy(raw) {
		return nil
	}
	return types.NewDocument(raw)
}

// RiskAreaSummary is one entry of the public report list. Coordinates are
// strings and "0" when absent.
type RiskAreaSummary struct {
	ID                string          `json:"id"`
	Latitude          string          `json:"latitude"`
	Longitude         string          `json:"longitude"`
	Chuva             *string         `json:"chuva"`
	Temperatura       *string         `json:"temperatura"`
	Tempo             *string         `json:"tempo"`
	EnderecoFormatado *string         `json:"enderecoFormatado"`
	Imagem            *string         `json:"imagem"`
	Categoria         *types.Category `json:"categoria"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func newRiskAreaSummary(area types.RiskArea) RiskAreaSummary {
	return RiskAreaSummary{
		ID:                area.ID,
		Latitude:          formatCoordinate(area.Lat),
		Longitude:         formatCoordinate(area.Lng),
		Chuva:             area.Chuva,
		Temperatura:       area.Temperatura,
		Tempo:             area.Tempo,
		EnderecoFormatado: area.EnderecoFormatado,
		Imagem:            area.Imagem,
		Categoria:         area.Categoria,
		CreatedAt:         area.CreatedAt,
	}
}

// Create stores a new report. Authentication is optional; anonymous reports
// have no creator.
func (h *RiskAreaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRiskAreaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		status := http.StatusBadRequest
		if isBodyTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, msgInvalidRequest)
		return
	}

	area := req.toRiskArea()
	if identity, ok := resolveIdentity(h.identities, r); ok {
		area.UserID = &identity.ID
	}

	created, err := h.riskAreaService.Create(r.Context(), area)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create risk area", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: msgReportCreated, ID: created.ID})
}

// List returns every report, newest first.
func (h *RiskAreaHandler) List(w http.ResponseWriter, r *http.Request) {
	areas, err := h.riskAreaService.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list risk areas", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	summaries := make([]RiskAreaSummary, 0, len(areas))
	for _, area := range areas {
		summaries = append(summaries, newRiskAreaSummary(area))
	}
	writeJSON(w, http.StatusOK, summaries)
}
