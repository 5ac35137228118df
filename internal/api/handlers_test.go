package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/services"
	"github.com/Lllllllleong/documentspecflow/internal/testutil"
)

type apiFixture struct {
	server     *httptest.Server
	llm        *testutil.FakeLLM
	dispatcher *services.InlineDispatcher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := testutil.NewMemoryStore()
	fs := testutil.NewMemoryFiles()
	ocr := &testutil.FakeOCR{Blocks: []models.OCRBlock{{Seq: 0, Text: "Part No. 4471", Width: 10, Height: 5}}}
	gen := &testutil.FakeLLM{Response: `{"partNumber": "4471"}`}

	pipeline := services.NewPipeline(st, fs, ocr, gen, services.PipelineConfig{})
	dispatcher := services.NewInlineDispatcher(pipeline)
	docs := services.NewDocuments(st, fs, dispatcher)

	server := httptest.NewServer(NewHandler(docs, pipeline))
	t.Cleanup(server.Close)
	return &apiFixture{server: server, llm: gen, dispatcher: dispatcher}
}

func (f *apiFixture) upload(t *testing.T, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/documents", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDocumentFlow(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.upload(t, "drawing.png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	uploaded := decode[models.UploadResponse](t, resp)
	assert.Equal(t, models.StatusQueued, uploaded.Status)
	require.NotEmpty(t, uploaded.DocumentID)
	f.dispatcher.Wait()

	base := f.server.URL + "/api/documents/" + uploaded.DocumentID

	resp = get(t, base+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusDone, decode[models.StatusResponse](t, resp).Status)

	f.llm.Response = `{"partNumber": "4471", "material": "steel"}`
	resp, err := http.Post(base+"/specs/new", "application/json", strings.NewReader(`{"instruction": "include the material"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	regen := decode[models.RegenerateResponse](t, resp)
	assert.Equal(t, 2, regen.Version)
	assert.Equal(t, "steel", regen.Content["material"])
	assert.Contains(t, f.llm.LastPrompt(), "Instruction: include the material")

	resp = get(t, base+"/specs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[models.SpecsResponse](t, resp)
	require.Len(t, history.Specs, 2)
	assert.Equal(t, 1, history.Specs[0].Version)
	assert.Equal(t, map[string]any{"partNumber": "4471"}, history.Specs[0].Content)
	assert.Equal(t, 2, history.Specs[1].Version)

	resp = get(t, base+"/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=drawing.png`)
	var got bytes.Buffer
	_, err = got.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", got.String())
}

func TestUnknownDocument(t *testing.T) {
	f := newAPIFixture(t)
	base := f.server.URL + "/api/documents/missing"

	for _, path := range []string{"/status", "/specs", "/download"} {
		resp := get(t, base+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "document not found", decode[models.ErrorResponse](t, resp).Error)
	}

	resp, err := http.Post(base+"/specs/new", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegenerateFailureHidesDetail(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.upload(t, "drawing.png", []byte("png-bytes"))
	uploaded := decode[models.UploadResponse](t, resp)
	f.dispatcher.Wait()

	f.llm.Err = errors.New("quota exceeded for project secret-project")
	resp, err := http.Post(f.server.URL+"/api/documents/"+uploaded.DocumentID+"/specs/new", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, "processing failed", body.Error)
}

func TestUploadValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Post(f.server.URL+"/api/documents", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.upload(t, "empty.png", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.upload(t, "bad.pdf", []byte("%PDF-1.7 truncated"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp := get(t, f.server.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegenerateBeforeIngestConflicts(t *testing.T) {
	st := testutil.NewMemoryStore()
	fs := testutil.NewMemoryFiles()
	gen := &testutil.FakeLLM{Response: `{}`}
	pipeline := services.NewPipeline(st, fs, &testutil.FakeOCR{}, gen, services.PipelineConfig{})
	docs := services.NewDocuments(st, fs, services.EventDispatcher{})
	server := httptest.NewServer(NewHandler(docs, pipeline))
	t.Cleanup(server.Close)

	f := &apiFixture{server: server}
	resp := f.upload(t, "drawing.png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	uploaded := decode[models.UploadResponse](t, resp)

	resp, err := http.Post(server.URL+"/api/documents/"+uploaded.DocumentID+"/specs/new", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "document is not ready", decode[models.ErrorResponse](t, resp).Error)
	assert.Zero(t, gen.PromptCount())

	resp = get(t, server.URL+"/api/documents/"+uploaded.DocumentID+"/status")
	assert.Equal(t, models.StatusQueued, decode[models.StatusResponse](t, resp).Status)
}
