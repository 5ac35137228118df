package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

const (
	DefaultStaleAfter    = 15 * time.Minute
	reconcileConcurrency = 8
	staleDetailsTemplate = "no progress for %s; the worker handling it was lost"
)

// Reconciler moves documents orphaned by a crashed worker to error.
type Reconciler struct {
	store      store.DocumentStore
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciler(st store.DocumentStore, staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{store: st, staleAfter: staleAfter, now: time.Now}
}

// Sweep runs one pass and returns how many documents it moved. A document
// that progressed after it was listed keeps its new status.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.staleAfter)
	var moved atomic.Int64

	for _, status := range []models.Status{models.StatusProcessing, models.StatusQueued} {
		docs, err := r.store.ListStale(ctx, status, cutoff)
		if err != nil {
			return int(moved.Load()), fmt.Errorf("failed to list stale %s documents: %w", status, err)
		}

		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(reconcileConcurrency)
		for _, doc := range docs {
			eg.Go(func() error {
				details := fmt.Sprintf(staleDetailsTemplate, r.staleAfter)
				err := r.store.UpdateStatus(gctx, doc.ID, models.StatusError, details, status)
				switch {
				case err == nil:
					slog.Warn("Reconciled stale document.", "documentId", doc.ID, "from", status, "updatedAt", doc.UpdatedAt)
					moved.Add(1)
				case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
					slog.Info("Document moved on before reconciliation. Skipping.", "documentId", doc.ID)
				default:
					return fmt.Errorf("document %s: %w", doc.ID, err)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return int(moved.Load()), err
		}
	}
	return int(moved.Load()), nil
}
