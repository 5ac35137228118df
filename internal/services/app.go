package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentspecflow/internal/files"
	"github.com/Lllllllleong/documentspecflow/internal/gcp"
	"github.com/Lllllllleong/documentspecflow/internal/llm"
	"github.com/Lllllllleong/documentspecflow/internal/ocr"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// App holds the wired services of one process.
type App struct {
	Config     *Config
	Store      store.Store
	Files      files.Store
	Pipeline   *Pipeline
	Documents  *Documents
	Reconciler *Reconciler

	closers []func() error
}

// NewApp builds every component selected by cfg. On error, whatever was
// already opened is closed.
func NewApp(ctx context.Context, cfg *Config) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if app.Store, err = app.openStore(ctx); err != nil {
		return nil, err
	}
	if app.Files, err = app.openFiles(ctx); err != nil {
		return nil, err
	}
	engine := app.openOCR()
	gen, err := app.openGenerator(ctx)
	if err != nil {
		return nil, err
	}

	app.Pipeline = NewPipeline(app.Store, app.Files, engine, gen, PipelineConfig{
		BlockWriteConcurrency: cfg.BlockWriteConcurrency,
		VersionMaxAttempts:    cfg.VersionMaxAttempts,
	})
	dispatcher, err := app.openDispatcher(ctx)
	if err != nil {
		return nil, err
	}
	app.Documents = NewDocuments(app.Store, app.Files, dispatcher)
	app.Reconciler = NewReconciler(app.Store, cfg.StaleAfter)

	slog.Info("Services initialized.",
		"store", cfg.StoreBackend, "files", cfg.FileBackend, "ocr", cfg.OCREngine,
		"llm", cfg.LLMProvider, "dispatch", cfg.IngestDispatch)
	return app, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	switch a.Config.StoreBackend {
	case "duckdb":
		st, err := store.NewDuckStore(a.Config.DuckDBPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		client, err := gcp.NewFirestoreClient(ctx, a.Config.ProjectID, a.Config.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		st := store.NewFirestoreStore(client, a.Config.FirestoreCollection)
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
}

func (a *App) openFiles(ctx context.Context) (files.Store, error) {
	switch a.Config.FileBackend {
	case "local":
		return files.NewLocalStore(a.Config.LocalUploadDir)
	default:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return files.NewGCSStore(client, a.Config.UploadsBucket), nil
	}
}

func (a *App) openOCR() ocr.Engine {
	if a.Config.OCREngine == "tesseract" {
		return ocr.NewTesseractEngine(a.Config.OCRLanguages...)
	}
	return ocr.NewHTTPEngine(a.Config.OCRServiceURL, a.Config.OCRTimeout)
}

func (a *App) openGenerator(ctx context.Context) (llm.Generator, error) {
	switch a.Config.LLMProvider {
	case "claude":
		return llm.NewClaudeGenerator(a.Config.AnthropicAPIKey, a.Config.LLMModel, 0)
	case "ollama":
		return llm.NewOllamaGenerator(a.Config.OllamaURL, a.Config.LLMModel, a.Config.LLMTimeout), nil
	default:
		client, err := gcp.NewVertexClient(ctx, a.Config.ProjectID, a.Config.VertexAIRegion, a.Config.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		gen := llm.NewVertexGenerator(client)
		a.closers = append(a.closers, gen.Close)
		return gen, nil
	}
}

func (a *App) openDispatcher(ctx context.Context) (Dispatcher, error) {
	switch a.Config.IngestDispatch {
	case "workflow":
		d, err := NewWorkflowDispatcher(ctx, a.Config.ProjectID, a.Config.WorkflowLocation, a.Config.WorkflowID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		return d, nil
	case "event":
		return EventDispatcher{}, nil
	default:
		return NewInlineDispatcher(a.Pipeline), nil
	}
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
