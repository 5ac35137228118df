// Package store holds the durable records of the pipeline: documents and their
// lifecycle status, OCR blocks, and the append-only spec history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned by InsertSpec when the (document, version)
	// pair already exists.
	ErrVersionConflict = errors.New("spec version already exists")
	// ErrInvalidTransition is returned by a conditional status update whose
	// precondition did not hold.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAllocationExhausted is returned when a spec version could not be
	// reserved within the allocator's attempt budget.
	ErrAllocationExhausted = errors.New("spec version allocation exhausted")
)

// DocumentStore is the lifecycle record of documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// UpdateStatus moves a document to status `to` only if its current status
	// is one of `from`. When `from` is empty, models.Predecessors(to) is used.
	UpdateStatus(ctx context.Context, id string, to models.Status, details string, from ...models.Status) error
	// ListStale returns documents in the given status not updated since before.
	ListStale(ctx context.Context, status models.Status, before time.Time) ([]models.Document, error)
}

// BlockStore records the OCR output of documents.
type BlockStore interface {
	SaveBlock(ctx context.Context, block *models.OCRBlock) error
	// ListBlocks returns a document's blocks in Seq order.
	ListBlocks(ctx context.Context, documentID string) ([]models.OCRBlock, error)
}

// SpecStore records spec versions. It has no update or delete operation.
type SpecStore interface {
	// MaxVersion returns the highest stored version, or 0.
	MaxVersion(ctx context.Context, documentID string) (int, error)
	// InsertSpec must return ErrVersionConflict when the version is taken.
	InsertSpec(ctx context.Context, spec *models.Spec) error
	// ListSpecs returns a document's specs ordered by ascending version.
	ListSpecs(ctx context.Context, documentID string) ([]models.Spec, error)
}

// Store bundles every record the pipeline needs.
type Store interface {
	DocumentStore
	BlockStore
	SpecStore
	Close() error
}

// allowedFrom resolves the precondition of a conditional status update.
func allowedFrom(to models.Status, from []models.Status) []models.Status {
	if len(from) > 0 {
		return from
	}
	return models.Predecessors(to)
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
