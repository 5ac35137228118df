package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerator_Generate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaResponse{Response: `{"a": 1}`})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL+"/", "mistral", time.Second)
	out, err := g.Generate(context.Background(), "extract")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, "extract", got.Prompt)
	assert.False(t, got.Stream)
}

func TestOllamaGenerator_Failures(t *testing.T) {
	t.Run("non-success status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewOllamaGenerator(srv.URL, "", time.Second).Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("error field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaResponse{Error: "boom"})
		}))
		defer srv.Close()

		_, err := NewOllamaGenerator(srv.URL, "", time.Second).Generate(context.Background(), "p")
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewOllamaGenerator(url, "", time.Second).Generate(context.Background(), "p")
		assert.Error(t, err)
	})

	t.Run("empty prompt", func(t *testing.T) {
		_, err := NewOllamaGenerator("http://unused", "", time.Second).Generate(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})
}
