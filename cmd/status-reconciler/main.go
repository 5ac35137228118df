package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentspecflow/internal/gcp"
	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/services"
)

var (
	reconciler *services.Reconciler
	once       sync.Once
	initErr    error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleReconcile", handleReconcile)
}

func main() {
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", "HandleReconcile")
	}
	if err := funcframework.Start(gcp.GetEnv("PORT", "8080")); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

// handleReconcile runs one sweep per call. Cloud Scheduler drives it.
func handleReconcile(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := services.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		cfg.IngestDispatch = "event"
		app, err := services.NewApp(context.Background(), cfg)
		if err != nil {
			initErr = err
			return
		}
		reconciler = app.Reconciler
	})
	if initErr != nil {
		slog.Error("CRITICAL: Reconciler initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	moved, err := reconciler.Sweep(r.Context())
	if err != nil {
		slog.Error("Sweep failed", "error", err, "reconciled", moved)
		http.Error(w, "Internal Server Error: sweep failed", http.StatusInternalServerError)
		return
	}
	slog.Info("Sweep complete.", "reconciled", moved)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.ReconcileResponse{Status: "ok", Reconciled: moved}); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
