package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// HTTPEngine posts the file to an OCR service as multipart field "file" and
// expects {"blocks": [{"text", "x", "y", "width", "height"}]} back.
type HTTPEngine struct {
	endpoint   string
	httpClient *http.Client
}

type processResponse struct {
	Blocks []models.OCRBlock `json:"blocks"`
}

// NewHTTPEngine targets <baseURL>/process.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		endpoint:   strings.TrimRight(baseURL, "/") + "/process",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Recognize(ctx context.Context, filename string, data []byte) ([]models.OCRBlock, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("OCR service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return numberBlocks(out.Blocks), nil
}
