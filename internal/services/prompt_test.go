package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	blocks := []models.OCRBlock{
		{Seq: 0, Text: "Hello World", X: 10, Y: 20, Width: 100, Height: 20},
		{Seq: 1, Text: "This is a test.", X: 15, Y: 50, Width: 200, Height: 25},
	}

	t.Run("without instruction", func(t *testing.T) {
		p := BuildPrompt(blocks, "")
		assert.True(t, strings.HasPrefix(p, ExtractionPreamble))
		assert.Contains(t, p, "Output only one valid JSON object, no surrounding text")
		assert.NotContains(t, p, "Instruction:")
		assert.Contains(t, p, `{"text":"Hello World","x":10,"y":20,"width":100,"height":20}`+"\n")
		assert.Less(t, strings.Index(p, "Hello World"), strings.Index(p, "This is a test."))
	})

	t.Run("with instruction", func(t *testing.T) {
		p := BuildPrompt(blocks, "  only the totals ")
		assert.Contains(t, p, "Instruction: only the totals\n")
		assert.Less(t, strings.Index(p, "Instruction:"), strings.Index(p, "Document blocks:"))
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, BuildPrompt(blocks, "x"), BuildPrompt(blocks, "x"))
	})

	t.Run("no blocks", func(t *testing.T) {
		p := BuildPrompt(nil, "")
		assert.True(t, strings.HasSuffix(p, "Document blocks:\n"))
	})
}
