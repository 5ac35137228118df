// Package api exposes documents and their spec history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/services"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

const maxUploadBytes = 50 << 20

// DocumentService is the upload and query side of the pipeline.
type DocumentService interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResponse, error)
	Status(ctx context.Context, id string) (*models.StatusResponse, error)
	History(ctx context.Context, id string) (*models.SpecsResponse, error)
	Download(ctx context.Context, id string) (*services.OriginalFile, error)
}

// Regenerator produces a new spec version on demand.
type Regenerator interface {
	Regenerate(ctx context.Context, req *models.RegenerateRequest) (*models.RegenerateResponse, error)
}

// Handler routes the document API.
type Handler struct {
	documents   DocumentService
	regenerator Regenerator
	mux         *http.ServeMux
}

func NewHandler(documents DocumentService, regenerator Regenerator) *Handler {
	h := &Handler{documents: documents, regenerator: regenerator, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/documents", h.upload)
	h.mux.HandleFunc("GET /api/documents/{id}/status", h.status)
	h.mux.HandleFunc("GET /api/documents/{id}/specs", h.specs)
	h.mux.HandleFunc("POST /api/documents/{id}/specs/new", h.regenerate)
	h.mux.HandleFunc("GET /api/documents/{id}/download", h.download)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Could not read uploaded file", "error", err)
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	resp, err := h.documents.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpload) {
			writeError(w, http.StatusBadRequest, "invalid file")
			return
		}
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.documents.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) specs(w http.ResponseWriter, r *http.Request) {
	resp, err := h.documents.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request) {
	req := models.RegenerateRequest{DocumentID: r.PathValue("id")}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}
		req.DocumentID = r.PathValue("id")
	}

	resp, err := h.regenerator.Regenerate(r.Context(), &req)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, services.ErrPipelineFailed):
		writeError(w, http.StatusInternalServerError, "processing failed")
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "document is not ready")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "processing failed")
	default:
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	file, err := h.documents.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		slog.Error("Failed to write download", "error", err)
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	slog.Error("Document lookup failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
