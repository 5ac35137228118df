package models

import "time"

// These structs define the JSON payloads exchanged with the HTTP functions and
// the workflow that drives ingestion.

// IngestRequest is the input for the ingest worker.
type IngestRequest struct {
	DocumentID  string `json:"documentId"`
	ExecutionID string `json:"executionId,omitempty"`
}

// IngestResponse is the output of a successful ingest.
type IngestResponse struct {
	DocumentID string     `json:"documentId"`
	Status     Status     `json:"status"`
	Version    int        `json:"version"`
	Blocks     []OCRBlock `json:"blocks"`
}

// RegenerateRequest asks for a new spec version built from the stored blocks.
type RegenerateRequest struct {
	DocumentID  string `json:"-"`
	Instruction string `json:"instruction"`
}

// RegenerateResponse is the output of a successful regeneration.
type RegenerateResponse struct {
	DocumentID string         `json:"documentId"`
	Version    int            `json:"version"`
	Content    map[string]any `json:"content"`
}

// UploadResponse is returned once a file is stored and its document queued.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	Status     Status `json:"status"`
}

// StatusResponse is the body of the status polling route.
type StatusResponse struct {
	DocumentID   string `json:"documentId"`
	Status       Status `json:"status"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// SpecView is a single entry of the spec history.
type SpecView struct {
	Version   int            `json:"version"`
	Content   map[string]any `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SpecsResponse is the body of the spec history route.
type SpecsResponse struct {
	DocumentID string     `json:"documentId"`
	Specs      []SpecView `json:"specs"`
}

// ReconcileResponse reports the outcome of one reconciliation sweep.
type ReconcileResponse struct {
	Status     string `json:"status"`
	Reconciled int    `json:"reconciled"`
}

// ErrorResponse is the JSON body for every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GCSEvent is the data of a Cloud Storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
