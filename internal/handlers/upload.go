package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/novaangola/apiserver/internal/services"
)

const (
	formFieldFile      = "file"
	maxMultipartMemory = 8 << 20
	// Room for multipart framing on top of the file itself.
	maxUploadBodyBytes = services.MaxEvidenceSize + 1<<20

	msgNoFile       = "Nenhum ficheiro enviado."
	msgFileTooLarge = "Ficheiro excede o limite de 20 MB."
	msgFileNotFound = "Ficheiro não encontrado."
)

// UploadHandler accepts evidence images and serves them back.
type UploadHandler struct {
	evidenceService *services.EvidenceService
	publicBaseURL   string
	logger          *slog.Logger
}

// NewUploadHandler constructs an UploadHandler. An empty publicBaseURL builds
// links from the request scheme and host.
func NewUploadHandler(evidenceService *services.EvidenceService, publicBaseURL string, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		evidenceService: evidenceService,
		publicBaseURL:   strings.TrimRight(publicBaseURL, "/"),
		logger:          logger,
	}
}

// UploadRouter registers upload routes on the given router.
func UploadRouter(r chi.Router, evidenceService *services.EvidenceService, publicBaseURL string, logger *slog.Logger) {
	handler := NewUploadHandler(evidenceService, publicBaseURL, logger)

	r.Post("/upload", handler.Upload)
	r.Get("/uploads/{fileId}", handler.Download)
}

// UploadResponse carries the public link of a stored file. Link and URL are
// the same value.
type UploadResponse struct {
	Link   string `json:"link"`
	URL    string `json:"url"`
	FileID string `json:"fileId"`
}

// Upload stores the multipart "file" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusBadRequest, msgFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	evidence, err := h.evidenceService.Store(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedFile):
			writeError(w, http.StatusBadRequest, msgNoFile)
		case errors.Is(err, services.ErrFileTooLarge):
			writeError(w, http.StatusBadRequest, msgFileTooLarge)
		default:
			h.logger.ErrorContext(r.Context(), "failed to store upload", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternalError)
		}
		return
	}

	link := h.baseURL(r) + "/uploads/" + evidence.FileID
	writeJSON(w, http.StatusOK, UploadResponse{Link: link, URL: link, FileID: evidence.FileID})
}

// Download streams a stored file.
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	obj, err := h.evidenceService.Open(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, services.ErrEvidenceNotFound) {
			writeError(w, http.StatusNotFound, msgFileNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to open upload", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.WarnContext(r.Context(), "upload stream interrupted", "file_id", fileID, "error", err)
	}
}

func (h *UploadHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}
