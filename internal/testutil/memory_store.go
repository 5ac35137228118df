// memory_store.go - in-memory store implementation for testing
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// MemoryStore implements store.Store in memory. InsertSpec enforces the same
// (document, version) uniqueness as the real backends. Failure hooks let tests
// break individual operations.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]models.Document
	blocks    map[string][]models.OCRBlock
	specs     map[string]map[int]models.Spec
	history   map[string][]models.Status

	// SaveBlockErr, when set, is returned by SaveBlock for the given Seq.
	SaveBlockErr      map[int]error
	InsertSpecErr     error
	UpdateStatusErr   error
	MaxVersionErr     error
	conflictsOnInsert int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]models.Document),
		blocks:    make(map[string][]models.OCRBlock),
		specs:     make(map[string]map[int]models.Spec),
		history:   make(map[string][]models.Status),
	}
}

// ForceConflicts makes the next n InsertSpec calls fail with a version
// conflict regardless of the version.
func (m *MemoryStore) ForceConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictsOnInsert = n
}

// StatusHistory returns every status the document was written with, in order.
func (m *MemoryStore) StatusHistory(id string) []models.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Status(nil), m.history[id]...)
}

// SetUpdatedAt backdates a document for sweep tests.
func (m *MemoryStore) SetUpdatedAt(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.documents[id]
	doc.UpdatedAt = t
	m.documents[id] = doc
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	m.documents[doc.ID] = *doc
	m.history[doc.ID] = append(m.history[doc.ID], doc.Status)
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, to models.Status, details string, from ...models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	doc, ok := m.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	if len(from) == 0 {
		from = models.Predecessors(to)
	}
	allowed := false
	for _, s := range from {
		if s == doc.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, doc.Status, to)
	}
	if to != models.StatusError {
		details = ""
	}
	doc.Status = to
	doc.ErrorDetails = details
	doc.UpdatedAt = time.Now().UTC()
	m.documents[id] = doc
	m.history[id] = append(m.history[id], to)
	return nil
}

func (m *MemoryStore) ListStale(_ context.Context, status models.Status, before time.Time) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []models.Document
	for _, doc := range m.documents {
		if doc.Status == status && doc.UpdatedAt.Before(before) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *MemoryStore) SaveBlock(_ context.Context, block *models.OCRBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SaveBlockErr[block.Seq]; err != nil {
		return err
	}
	blocks := m.blocks[block.DocumentID]
	for i := range blocks {
		if blocks[i].Seq == block.Seq {
			blocks[i] = *block
			return nil
		}
	}
	m.blocks[block.DocumentID] = append(blocks, *block)
	return nil
}

func (m *MemoryStore) ListBlocks(_ context.Context, documentID string) ([]models.OCRBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blocks := append([]models.OCRBlock(nil), m.blocks[documentID]...)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Seq < blocks[j].Seq })
	return blocks, nil
}

func (m *MemoryStore) MaxVersion(_ context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MaxVersionErr != nil {
		return 0, m.MaxVersionErr
	}
	maxVersion := 0
	for v := range m.specs[documentID] {
		if v > maxVersion {
			maxVersion = v
		}
	}
	return maxVersion, nil
}

func (m *MemoryStore) InsertSpec(_ context.Context, spec *models.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertSpecErr != nil {
		return m.InsertSpecErr
	}
	if m.conflictsOnInsert > 0 {
		m.conflictsOnInsert--
		return store.ErrVersionConflict
	}
	versions, ok := m.specs[spec.DocumentID]
	if !ok {
		versions = make(map[int]models.Spec)
		m.specs[spec.DocumentID] = versions
	}
	if _, taken := versions[spec.Version]; taken {
		return store.ErrVersionConflict
	}
	versions[spec.Version] = *spec
	return nil
}

func (m *MemoryStore) ListSpecs(_ context.Context, documentID string) ([]models.Spec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	specs := make([]models.Spec, 0, len(m.specs[documentID]))
	for _, sp := range m.specs[documentID] {
		specs = append(specs, sp)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Version < specs[j].Version })
	return specs, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ store.Store = (*MemoryStore)(nil)
