package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentspecflow/internal/files"
	"github.com/Lllllllleong/documentspecflow/internal/gcp"
	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/services"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

var (
	pipeline *services.Pipeline
	once     sync.Once
	initErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// HandleIngest is called by the ingest workflow; IngestOnUpload is bound to
	// the uploads bucket's object-finalized trigger.
	functions.HTTP("HandleIngest", handleIngest)
	functions.CloudEvent("IngestOnUpload", ingestOnUpload)
}

func main() {
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", "HandleIngest")
	}
	if err := funcframework.Start(gcp.GetEnv("PORT", "8080")); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

func initPipeline() error {
	once.Do(func() {
		cfg, err := services.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		// Ingest runs here, so nothing is dispatched onward.
		cfg.IngestDispatch = "event"
		app, err := services.NewApp(context.Background(), cfg)
		if err != nil {
			initErr = err
			return
		}
		pipeline = app.Pipeline
	})
	return initErr
}

func handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := initPipeline(); err != nil {
		slog.Error("CRITICAL: Ingest worker initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := pipeline.Ingest(r.Context(), &req)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		// Already taken by another delivery; the workflow must not retry.
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not Found: unknown document", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func ingestOnUpload(ctx context.Context, e cloudevents.Event) error {
	if err := initPipeline(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	documentID, ok := files.DocumentIDFromObject(gcsEvent.Name)
	if !ok {
		slog.Warn("Object is not an upload. Ignoring.", "gcsObject", gcsEvent.Name)
		return nil
	}

	_, err := pipeline.Ingest(ctx, &models.IngestRequest{DocumentID: documentID, ExecutionID: e.ID()})
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
		// Redelivery, or an object no upload created. Not retryable.
		return nil
	}
	return err
}
