package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEngine_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "scan.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"blocks": [
			{"text": "Hello World", "x": 10, "y": 20, "width": 100, "height": 20},
			{"text": "This is a test.", "x": 15, "y": 50, "width": 200, "height": 25}
		]}`)
	}))
	defer srv.Close()

	blocks, err := NewHTTPEngine(srv.URL, time.Second).Recognize(context.Background(), "scan.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Hello World", blocks[0].Text)
	assert.Equal(t, 0, blocks[0].Seq)
	assert.Equal(t, 1, blocks[1].Seq)
	assert.Equal(t, 200.0, blocks[1].Width)
}

func TestHTTPEngine_Failures(t *testing.T) {
	t.Run("non-success status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad file", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		blocks, err := NewHTTPEngine(srv.URL, time.Second).Recognize(context.Background(), "a.pdf", nil)
		assert.Error(t, err)
		assert.Nil(t, blocks)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"blocks": [`)
		}))
		defer srv.Close()

		_, err := NewHTTPEngine(srv.URL, time.Second).Recognize(context.Background(), "a.pdf", nil)
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		_, err := NewHTTPEngine(srv.URL, 20*time.Millisecond).Recognize(context.Background(), "a.pdf", nil)
		assert.Error(t, err)
	})
}
