package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/documentspecflow/internal/models"
	"github.com/Lllllllleong/documentspecflow/internal/store"
)

// InlineDispatcher runs the ingest in-process on a context detached from the
// upload request.
type InlineDispatcher struct {
	pipeline *Pipeline
	wg       sync.WaitGroup
}

func NewInlineDispatcher(pipeline *Pipeline) *InlineDispatcher {
	return &InlineDispatcher{pipeline: pipeline}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, documentID string) error {
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, err := d.pipeline.Ingest(bg, &models.IngestRequest{DocumentID: documentID, ExecutionID: "inline"})
		if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			slog.Error("Inline ingest failed", "documentId", documentID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched ingest has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// WorkflowDispatcher starts one Cloud Workflows execution per document. The
// workflow calls the HandleIngest function.
type WorkflowDispatcher struct {
	client *executions.Client
	parent string
}

func NewWorkflowDispatcher(ctx context.Context, projectID, location, workflowID string) (*WorkflowDispatcher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow executions client: %w", err)
	}
	return &WorkflowDispatcher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(map[string]string{"documentId": documentID})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := d.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    d.parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	})
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Workflow execution started.", "documentId", documentID, "execution", exec.GetName())
	return nil
}

func (d *WorkflowDispatcher) Close() error {
	return d.client.Close()
}

// EventDispatcher does nothing; the object-finalize event of the upload
// starts the ingest.
type EventDispatcher struct{}

func (EventDispatcher) Dispatch(context.Context, string) error { return nil }
