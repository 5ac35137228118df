package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentspecflow/internal/api"
	"github.com/Lllllllleong/documentspecflow/internal/gcp"
	"github.com/Lllllllleong/documentspecflow/internal/services"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("DocumentAPI", documentAPI)
}

// main starts a local server; in Cloud Functions the framework owns the process.
func main() {
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", "DocumentAPI")
	}
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

func documentAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := services.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		app, err := services.NewApp(context.Background(), cfg)
		if err != nil {
			initErr = err
			return
		}
		handler = api.NewHandler(app.Documents, app.Pipeline)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Document API initialization failed", "error", initErr)
		http.Error(w, `{"error":"service unavailable"}`, http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}
