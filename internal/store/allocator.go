package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// DefaultMaxAttempts bounds the allocate-and-insert loop.
const DefaultMaxAttempts = 10

const maxBackoff = time.Second

// Allocator reserves spec versions. Uniqueness comes from the backing store,
// which rejects a duplicate (document, version) with ErrVersionConflict; the
// allocator re-reads the maximum and retries until it wins a slot. A plain
// "read max, then insert" without that constraint is not safe under
// concurrent regeneration.
type Allocator struct {
	specs       SpecStore
	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

// NewAllocator returns an allocator over specs. A non-positive maxAttempts
// selects DefaultMaxAttempts.
func NewAllocator(specs SpecStore, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		specs:       specs,
		maxAttempts: maxAttempts,
		baseBackoff: 20 * time.Millisecond,
		now:         time.Now,
	}
}

// NextVersion returns the smallest version greater than every stored one. It
// does not reserve anything; Append is the only safe way to persist.
func (a *Allocator) NextVersion(ctx context.Context, documentID string) (int, error) {
	maxVersion, err := a.specs.MaxVersion(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to read max spec version: %w", err)
	}
	return maxVersion + 1, nil
}

// Append stores content as the next spec version of the document.
func (a *Allocator) Append(ctx context.Context, documentID string, content map[string]any) (*models.Spec, error) {
	backoff := a.baseBackoff
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		version, err := a.NextVersion(ctx, documentID)
		if err != nil {
			return nil, err
		}

		spec := &models.Spec{
			DocumentID: documentID,
			Version:    version,
			Content:    content,
			CreatedAt:  a.now().UTC(),
		}
		err = a.specs.InsertSpec(ctx, spec)
		if err == nil {
			return spec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("failed to insert spec version %d: %w", version, err)
		}

		slog.Debug("Spec version taken, retrying.", "documentId", documentID, "version", version, "attempt", attempt)
		jitter := time.Duration(rand.Int64N(int64(backoff) + 1))
		select {
		case <-time.After(backoff/2 + jitter/2):
			backoff = min(backoff*2, maxBackoff)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("document %s after %d attempts: %w", documentID, a.maxAttempts, ErrAllocationExhausted)
}
