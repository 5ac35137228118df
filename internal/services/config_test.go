package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLocalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "duckdb")
	t.Setenv("FILE_BACKEND", "local")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("INGEST_DISPATCH", "")
	t.Setenv("UPLOADS_BUCKET", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OCR_ENGINE", "")
	t.Setenv("BLOCK_WRITE_CONCURRENCY", "")
	t.Setenv("FIRESTORE_DATABASE", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("OCR_LANGUAGES", "eng, deu,")
	t.Setenv("STALE_AFTER", "90s")
	t.Setenv("VERSION_MAX_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.IngestDispatch)
	assert.Equal(t, "http", cfg.OCREngine)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCRLanguages)
	assert.Equal(t, 90*time.Second, cfg.StaleAfter)
	assert.Equal(t, 10, cfg.VersionMaxAttempts)
	assert.Equal(t, 10, cfg.BlockWriteConcurrency)
	assert.Empty(t, cfg.FirestoreDatabase)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"firestore needs project", map[string]string{"STORE_BACKEND": "firestore"}, "PROJECT_ID"},
		{"gcs needs bucket", map[string]string{"FILE_BACKEND": "gcs", "PROJECT_ID": "p"}, "UPLOADS_BUCKET"},
		{"claude needs key", map[string]string{"LLM_PROVIDER": "claude"}, "ANTHROPIC_API_KEY"},
		{"event needs gcs", map[string]string{"INGEST_DISPATCH": "event"}, "FILE_BACKEND=gcs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLocalEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
