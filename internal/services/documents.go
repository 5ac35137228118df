package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/documentspecflow/internal/files"
	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// ErrInvalidUpload is returned for empty files and PDFs that cannot be read.
var ErrInvalidUpload = errors.New("invalid upload")

// Dispatcher starts the ingest of a freshly queued document.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// Documents is the upload and query surface over stored documents.
type Documents struct {
	store      store.Store
	files      files.Store
	dispatcher Dispatcher
	newID      func() string
}

func NewDocuments(st store.Store, fs files.Store, dispatcher Dispatcher) *Documents {
	return &Documents{store: st, files: fs, dispatcher: dispatcher, newID: uuid.NewString}
}

// Upload creates the queued document before storing the file, then hands the
// document to the dispatcher.
func (d *Documents) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	id := d.newID()
	logCtx := slog.With("documentId", id, "originalFilename", filename)

	var pageCount int
	if isPDF(filename, contentType, data) {
		n, err := pdfPageCount(data)
		if err != nil {
			logCtx.Warn("Rejected unreadable PDF.", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
		}
		pageCount = n
	}

	// The record goes first: an object-finalize trigger may start the ingest as
	// soon as the bytes land.
	objectName := files.ObjectName(id, filename)
	now := time.Now().UTC()
	doc := &models.Document{
		ID:               id,
		StoredFilename:   objectName,
		OriginalFilename: filename,
		ContentType:      contentType,
		Status:           models.StatusQueued,
		PageCount:        pageCount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.store.CreateDocument(ctx, doc); err != nil {
		logCtx.Error("Failed to create document record", "error", err)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	if err := d.files.Save(ctx, objectName, contentType, data); err != nil {
		logCtx.Error("Failed to store upload", "error", err)
		d.markFailed(ctx, logCtx, id, fmt.Sprintf("failed to store upload: %v", err))
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	logCtx.Info("Document queued.", "storedFilename", objectName, "pageCount", pageCount)

	if err := d.dispatcher.Dispatch(ctx, id); err != nil {
		logCtx.Error("Failed to dispatch ingest", "error", err)
		d.markFailed(ctx, logCtx, id, fmt.Sprintf("failed to dispatch ingest: %v", err))
		return nil, fmt.Errorf("%w: failed to dispatch ingest: %w", ErrPipelineFailed, err)
	}

	return &models.UploadResponse{DocumentID: id, Status: models.StatusQueued}, nil
}

// markFailed moves a document that never left queued to error.
func (d *Documents) markFailed(ctx context.Context, logCtx *slog.Logger, id, details string) {
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := d.store.UpdateStatus(statusCtx, id, models.StatusError, details, models.StatusQueued); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to error after an upload error.", "updateError", err)
	}
}

// Status returns the latest committed lifecycle status.
func (d *Documents) Status(ctx context.Context, id string) (*models.StatusResponse, error) {
	doc, err := d.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.StatusResponse{DocumentID: doc.ID, Status: doc.Status, ErrorDetails: doc.ErrorDetails}, nil
}

// History returns every spec version of the document in ascending order.
func (d *Documents) History(ctx context.Context, id string) (*models.SpecsResponse, error) {
	if _, err := d.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	specs, err := d.store.ListSpecs(ctx, id)
	if err != nil {
		return nil, err
	}
	views := make([]models.SpecView, 0, len(specs))
	for _, sp := range specs {
		views = append(views, models.SpecView{Version: sp.Version, Content: sp.Content, CreatedAt: sp.CreatedAt})
	}
	return &models.SpecsResponse{DocumentID: id, Specs: views}, nil
}

// OriginalFile is the uploaded file as it was received.
type OriginalFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download returns the original bytes and filename of the document.
func (d *Documents) Download(ctx context.Context, id string) (*OriginalFile, error) {
	doc, err := d.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := d.files.Open(ctx, doc.StoredFilename)
	if errors.Is(err, files.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &OriginalFile{Filename: doc.OriginalFilename, ContentType: contentType, Data: data}, nil
}

func isPDF(filename, contentType string, data []byte) bool {
	return contentType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) ||
		(len(filename) > 4 && bytes.EqualFold([]byte(filename[len(filename)-4:]), []byte(".pdf")))
}

func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return n, nil
}
