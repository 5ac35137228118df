// Package ocr adapts OCR providers to the pipeline's block model.
package ocr

import (
	"context"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// Engine turns a document's bytes into ordered text blocks. It returns either
// every block or an error, never a partial result. Returned blocks carry Seq
// but no DocumentID.
type Engine interface {
	Recognize(ctx context.Context, filename string, data []byte) ([]models.OCRBlock, error)
}

func numberBlocks(blocks []models.OCRBlock) []models.OCRBlock {
	for i := range blocks {
		blocks[i].Seq = i
	}
	return blocks
}
