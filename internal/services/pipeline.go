package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentspecflow/internal/files"
	"github.com/Lllllllleong/documentspecflow/internal/llm"
	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/ocr"
	"github.com/Lllllllleong/documentspecflow/internal/sanitize"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// ErrPipelineFailed marks every failed ingest or regeneration. Callers show
// only this; the cause is logged and recorded on the document.
var ErrPipelineFailed = errors.New("pipeline failed")

// statusWriteTimeout bounds the error-status write made after a failure. It
// runs on a context detached from the caller so an abandoned request still
// records why it stopped.
const statusWriteTimeout = 10 * time.Second

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	BlockWriteConcurrency int
	VersionMaxAttempts    int
}

// Pipeline drives documents from OCR to a stored spec version and owns every
// status transition on the way.
type Pipeline struct {
	store     store.Store
	files     files.Store
	ocr       ocr.Engine
	llm       llm.Generator
	allocator *store.Allocator
	config    PipelineConfig
}

// NewPipeline wires the orchestrator to its collaborators.
func NewPipeline(st store.Store, fs files.Store, engine ocr.Engine, gen llm.Generator, config PipelineConfig) *Pipeline {
	if config.BlockWriteConcurrency <= 0 {
		config.BlockWriteConcurrency = 10
	}
	return &Pipeline{
		store:     st,
		files:     fs,
		ocr:       engine,
		llm:       gen,
		allocator: store.NewAllocator(st, config.VersionMaxAttempts),
		config:    config,
	}
}

// Ingest runs OCR on a queued document and stores its first spec version.
// Only queued documents, or documents whose previous attempt ended in error,
// are accepted; anything else is store.ErrInvalidTransition and is left
// untouched, which makes duplicate deliveries harmless.
func (p *Pipeline) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting ingest.")

	doc, err := p.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", req.DocumentID, err)
	}

	if err := p.store.UpdateStatus(ctx, doc.ID, models.StatusProcessing, "", models.StatusQueued, models.StatusError); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			logCtx.Info("Document is not waiting for ingest. Skipping.", "status", doc.Status)
		}
		return nil, err
	}

	data, err := p.files.Open(ctx, doc.StoredFilename)
	if err != nil {
		return nil, p.handleError(ctx, logCtx, doc.ID, "failed to read stored file", err)
	}

	blocks, err := p.ocr.Recognize(ctx, doc.OriginalFilename, data)
	if err != nil {
		return nil, p.handleError(ctx, logCtx, doc.ID, "OCR failed", err)
	}
	logCtx.Info("OCR complete.", "blockCount", len(blocks))

	if err := p.saveBlocks(ctx, doc.ID, blocks); err != nil {
		return nil, p.handleError(ctx, logCtx, doc.ID, "failed to persist blocks", err)
	}

	spec, err := p.generate(ctx, logCtx, doc.ID, blocks, "")
	if err != nil {
		return nil, err
	}

	logCtx.Info("Ingest complete.", "version", spec.Version)
	return &models.IngestResponse{
		DocumentID: doc.ID,
		Status:     models.StatusDone,
		Version:    spec.Version,
		Blocks:     blocks,
	}, nil
}

// Regenerate appends a new spec version built from the stored blocks. OCR is
// not run again. Earlier versions are never touched, whatever the outcome.
// A document that has no blocks yet is store.ErrInvalidTransition.
func (p *Pipeline) Regenerate(ctx context.Context, req *models.RegenerateRequest) (*models.RegenerateResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID)
	logCtx.Info("Starting regeneration.")

	doc, err := p.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", req.DocumentID, err)
	}

	// Until the document is in processing its status belongs to the previous
	// run, so failures here are reported without touching it.
	blocks, err := p.store.ListBlocks(ctx, req.DocumentID)
	if err != nil {
		logCtx.Error("Failed to load blocks", "error", err)
		return nil, fmt.Errorf("%w: failed to load blocks: %w", ErrPipelineFailed, err)
	}
	if len(blocks) == 0 {
		logCtx.Info("Document has no OCR blocks yet. Refusing regeneration.", "status", doc.Status)
		return nil, fmt.Errorf("%w: document %s has not been ingested", store.ErrInvalidTransition, req.DocumentID)
	}

	// Never from queued: the first ingest owns that document until it ends.
	err = p.store.UpdateStatus(ctx, req.DocumentID, models.StatusProcessing, "",
		models.StatusDone, models.StatusError, models.StatusProcessing)
	if errors.Is(err, store.ErrInvalidTransition) {
		logCtx.Info("Document is not ready for regeneration.", "error", err)
		return nil, err
	}
	if err != nil {
		logCtx.Error("Failed to mark document processing", "error", err)
		return nil, fmt.Errorf("%w: failed to mark document processing: %w", ErrPipelineFailed, err)
	}

	instruction := req.Instruction
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}

	spec, err := p.generate(ctx, logCtx, req.DocumentID, blocks, instruction)
	if err != nil {
		return nil, err
	}

	logCtx.Info("Regeneration complete.", "version", spec.Version)
	return &models.RegenerateResponse{
		DocumentID: req.DocumentID,
		Version:    spec.Version,
		Content:    spec.Content,
	}, nil
}

// generate is the shared tail of both workflows: prompt, model call, repair,
// version allocation and the final transition to done. The document must
// already be in processing.
func (p *Pipeline) generate(ctx context.Context, logCtx *slog.Logger, documentID string, blocks []models.OCRBlock, instruction string) (*models.Spec, error) {
	prompt := BuildPrompt(blocks, instruction)

	raw, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.handleError(ctx, logCtx, documentID, "model call failed", err)
	}

	content := sanitize.Parse(raw)
	if len(content) == 0 {
		logCtx.Warn("Model output held no usable object. Storing an empty spec.", "responseLength", len(raw))
	}

	spec, err := p.allocator.Append(ctx, documentID, content)
	if err != nil {
		return nil, p.handleError(ctx, logCtx, documentID, "failed to store spec version", err)
	}

	if err := p.store.UpdateStatus(ctx, documentID, models.StatusDone, ""); err != nil {
		return nil, p.handleError(ctx, logCtx, documentID, "failed to mark document done", err)
	}
	return spec, nil
}

// saveBlocks writes blocks with bounded concurrency. Any failure fails the
// whole batch; blocks already written stay where they are.
func (p *Pipeline) saveBlocks(ctx context.Context, documentID string, blocks []models.OCRBlock) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.config.BlockWriteConcurrency)

	for i := range blocks {
		blocks[i].DocumentID = documentID
		block := blocks[i]
		eg.Go(func() error {
			if err := p.store.SaveBlock(gctx, &block); err != nil {
				return fmt.Errorf("block %d: %w", block.Seq, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (p *Pipeline) handleError(ctx context.Context, logCtx *slog.Logger, documentID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	details := fmt.Sprintf("%s: %v", message, originalErr)
	if err := p.store.UpdateStatus(statusCtx, documentID, models.StatusError, details); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to error after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%w: %s: %w", ErrPipelineFailed, message, originalErr)
}
