package models

import "time"

// Document is the lifecycle record for an uploaded file. It is the single source
// of truth for a document's status; nothing caches it authoritatively.
type Document struct {
	ID               string    `firestore:"-" json:"documentId"`
	StoredFilename   string    `firestore:"storedFilename,omitempty" json:"storedFilename"`
	OriginalFilename string    `firestore:"originalFilename,omitempty" json:"originalFilename"`
	ContentType      string    `firestore:"contentType,omitempty" json:"contentType,omitempty"`
	Status           Status    `firestore:"status" json:"status"`
	ErrorDetails     string    `firestore:"errorDetails" json:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// OCRBlock is one unit of text returned by the OCR engine. Blocks are written
// by ingest only; a retried ingest overwrites them by Seq.
type OCRBlock struct {
	DocumentID string  `firestore:"documentId" json:"-"`
	Seq        int     `firestore:"seq" json:"-"`
	Text       string  `firestore:"text" json:"text"`
	X          float64 `firestore:"x" json:"x"`
	Y          float64 `firestore:"y" json:"y"`
	Width      float64 `firestore:"width" json:"width"`
	Height     float64 `firestore:"height" json:"height"`
	Confidence float64 `firestore:"confidence,omitempty" json:"confidence,omitempty"`
}

// Spec is one immutable version of the fields extracted for a document.
type Spec struct {
	DocumentID string         `firestore:"documentId" json:"-"`
	Version    int            `firestore:"version" json:"version"`
	Content    map[string]any `firestore:"content" json:"content"`
	CreatedAt  time.Time      `firestore:"createdAt" json:"createdAt"`
}
