package services

import (
	"encoding/json"
	"strings"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// ExtractionPreamble opens every generation prompt.
const ExtractionPreamble = `You are given the OCR text blocks of one scanned document, one JSON object per line with the block text and its position on the page.
Extract every meaningful field of the document (identifiers, parties, dates, amounts, line items, specifications) into a structured object.
Output only one valid JSON object, no surrounding text: no code fences, no comments, no explanations.`

// DefaultInstruction is used when a regeneration request carries none.
const DefaultInstruction = "Re-extract all fields from the document blocks and return the complete structured result."

// BuildPrompt renders the generation prompt. The same blocks and instruction
// always produce the same prompt. The instruction is inserted verbatim.
func BuildPrompt(blocks []models.OCRBlock, instruction string) string {
	var sb strings.Builder
	sb.WriteString(ExtractionPreamble)
	sb.WriteString("\n\n")

	if instruction = strings.TrimSpace(instruction); instruction != "" {
		sb.WriteString("Instruction: ")
		sb.WriteString(instruction)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Document blocks:\n")
	for _, b := range blocks {
		line, err := json.Marshal(b)
		if err != nil {
			// Only non-finite coordinates fail to encode; keep the text.
			line, _ = json.Marshal(models.OCRBlock{Text: b.Text})
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
