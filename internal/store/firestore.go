package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

const (
	blocksCollection = "blocks"
	specsCollection  = "specs"
)

// FirestoreStore keeps documents in a root collection with their blocks and
// specs in per-document subcollections. Spec documents are keyed by version,
// so a Create on an existing key is the uniqueness constraint the allocator
// relies on.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore wraps an existing client.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "documents"
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if _, err := s.docRef(doc.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return decodeDocument(snap)
}

func decodeDocument(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

// UpdateStatus runs the precondition check and the write in one transaction.
func (s *FirestoreStore) UpdateStatus(ctx context.Context, id string, to models.Status, details string, from ...models.Status) error {
	allowed := allowedFrom(to, from)
	ref := s.docRef(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", id, err)
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return fmt.Errorf("document %s has no status: %w", id, err)
		}
		currentStatus := models.Status(fmt.Sprint(current))
		if !containsStatus(allowed, currentStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, to)
		}
		if to != models.StatusError {
			details = ""
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "errorDetails", Value: details},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
}

func (s *FirestoreStore) ListStale(ctx context.Context, st models.Status, before time.Time) ([]models.Document, error) {
	snaps, err := s.client.Collection(s.collection).
		Where("status", "==", string(st)).
		Where("updatedAt", "<", before).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query stale documents: %w", err)
	}
	docs := make([]models.Document, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := decodeDocument(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *FirestoreStore) SaveBlock(ctx context.Context, block *models.OCRBlock) error {
	ref := s.docRef(block.DocumentID).Collection(blocksCollection).Doc(fmt.Sprintf("%06d", block.Seq))
	if _, err := ref.Set(ctx, block); err != nil {
		return fmt.Errorf("failed to save block %d: %w", block.Seq, err)
	}
	return nil
}

func (s *FirestoreStore) ListBlocks(ctx context.Context, documentID string) ([]models.OCRBlock, error) {
	snaps, err := s.docRef(documentID).Collection(blocksCollection).
		OrderBy("seq", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	blocks := make([]models.OCRBlock, 0, len(snaps))
	for _, snap := range snaps {
		var b models.OCRBlock
		if err := snap.DataTo(&b); err != nil {
			return nil, fmt.Errorf("failed to decode block %s: %w", snap.Ref.ID, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (s *FirestoreStore) MaxVersion(ctx context.Context, documentID string) (int, error) {
	snaps, err := s.docRef(documentID).Collection(specsCollection).
		OrderBy("version", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query latest spec: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	v, err := snaps[0].DataAt("version")
	if err != nil {
		return 0, fmt.Errorf("latest spec has no version: %w", err)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("latest spec version has type %T", v)
	}
	return int(n), nil
}

func (s *FirestoreStore) InsertSpec(ctx context.Context, spec *models.Spec) error {
	ref := s.docRef(spec.DocumentID).Collection(specsCollection).Doc(fmt.Sprintf("v%06d", spec.Version))
	_, err := ref.Create(ctx, spec)
	if status.Code(err) == codes.AlreadyExists {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create spec: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListSpecs(ctx context.Context, documentID string) ([]models.Spec, error) {
	snaps, err := s.docRef(documentID).Collection(specsCollection).
		OrderBy("version", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list specs: %w", err)
	}
	specs := make([]models.Spec, 0, len(snaps))
	for _, snap := range snaps {
		var sp models.Spec
		if err := snap.DataTo(&sp); err != nil {
			return nil, fmt.Errorf("failed to decode spec %s: %w", snap.Ref.ID, err)
		}
		specs = append(specs, sp)
	}
	return specs, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

var _ Store = (*FirestoreStore)(nil)
