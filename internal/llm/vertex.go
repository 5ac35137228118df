package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/documentspecflow/internal/gcp"
)

// VertexGenerator calls Gemini through the shared Vertex AI client.
type VertexGenerator struct {
	client *gcp.VertexClient
}

func NewVertexGenerator(client *gcp.VertexClient) *VertexGenerator {
	return &VertexGenerator{client: client}
}

func (g *VertexGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	resp, err := g.client.ExtractorModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func (g *VertexGenerator) Close() error {
	return g.client.Close()
}
