package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/documentspecflow/internal/gcp"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// Config is the environment-derived configuration shared by every binary.
type Config struct {
	StoreBackend        string
	ProjectID           string
	FirestoreCollection string
	FirestoreDatabase   string
	DuckDBPath          string

	FileBackend    string
	UploadsBucket  string
	LocalUploadDir string

	OCREngine     string
	OCRServiceURL string
	OCRTimeout    time.Duration
	OCRLanguages  []string

	LLMProvider     string
	LLMModel        string
	VertexAIRegion  string
	AnthropicAPIKey string
	OllamaURL       string
	LLMTimeout      time.Duration

	BlockWriteConcurrency int
	VersionMaxAttempts    int

	IngestDispatch   string
	WorkflowID       string
	WorkflowLocation string

	StaleAfter time.Duration
}

// LoadConfig loads and validates all environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StoreBackend:        gcp.GetEnv("STORE_BACKEND", "firestore"),
		ProjectID:           gcp.GetEnv("PROJECT_ID", ""),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		FirestoreDatabase:   gcp.GetEnv("FIRESTORE_DATABASE", ""),
		DuckDBPath:          gcp.GetEnv("DUCKDB_PATH", "documents.duckdb"),

		FileBackend:    gcp.GetEnv("FILE_BACKEND", "gcs"),
		UploadsBucket:  gcp.GetEnv("UPLOADS_BUCKET", ""),
		LocalUploadDir: gcp.GetEnv("LOCAL_UPLOAD_DIR", "uploads"),

		OCREngine:     gcp.GetEnv("OCR_ENGINE", "http"),
		OCRServiceURL: gcp.GetEnv("OCR_SERVICE_URL", "http://ocr:8000"),
		OCRTimeout:    gcp.GetEnvDuration("OCR_TIMEOUT", 120*time.Second),
		OCRLanguages:  splitList(gcp.GetEnv("OCR_LANGUAGES", "eng")),

		LLMProvider:     gcp.GetEnv("LLM_PROVIDER", "vertex"),
		LLMModel:        gcp.GetEnv("LLM_MODEL", ""),
		VertexAIRegion:  gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		AnthropicAPIKey: gcp.GetEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:       gcp.GetEnv("OLLAMA_URL", "http://ollama:11434"),
		LLMTimeout:      gcp.GetEnvDuration("LLM_TIMEOUT", 300*time.Second),

		BlockWriteConcurrency: gcp.GetEnvInt("BLOCK_WRITE_CONCURRENCY", 10),
		VersionMaxAttempts:    gcp.GetEnvInt("VERSION_MAX_ATTEMPTS", store.DefaultMaxAttempts),

		IngestDispatch:   gcp.GetEnv("INGEST_DISPATCH", "inline"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "document-ingest"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),

		StaleAfter: gcp.GetEnvDuration("STALE_AFTER", DefaultStaleAfter),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !oneOf(c.StoreBackend, "firestore", "duckdb") {
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if !oneOf(c.FileBackend, "gcs", "local") {
		return fmt.Errorf("unknown FILE_BACKEND %q", c.FileBackend)
	}
	if !oneOf(c.OCREngine, "http", "tesseract") {
		return fmt.Errorf("unknown OCR_ENGINE %q", c.OCREngine)
	}
	if !oneOf(c.LLMProvider, "vertex", "claude", "ollama") {
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if !oneOf(c.IngestDispatch, "inline", "workflow", "event") {
		return fmt.Errorf("unknown INGEST_DISPATCH %q", c.IngestDispatch)
	}

	needsProject := c.StoreBackend == "firestore" || c.FileBackend == "gcs" ||
		c.LLMProvider == "vertex" || c.IngestDispatch == "workflow"
	if needsProject && c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.FileBackend == "gcs" && c.UploadsBucket == "" {
		return fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}
	if c.LLMProvider == "claude" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY environment variable must be set")
	}
	if c.IngestDispatch == "event" && c.FileBackend != "gcs" {
		return fmt.Errorf("INGEST_DISPATCH=event requires FILE_BACKEND=gcs")
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
