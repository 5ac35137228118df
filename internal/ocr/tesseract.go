package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// TesseractEngine runs OCR in-process. Scanned PDFs are reduced to their
// embedded page images; image uploads are recognized directly.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine.
func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Recognize(ctx context.Context, filename string, data []byte) ([]models.OCRBlock, error) {
	images, err := pageImages(filename, data)
	if err != nil {
		return nil, err
	}

	var blocks []models.OCRBlock
	for i, img := range images {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		pageBlocks, err := e.recognizeImage(img)
		if err != nil {
			return nil, fmt.Errorf("recognize image %d: %w", i+1, err)
		}
		blocks = append(blocks, pageBlocks...)
	}
	return numberBlocks(blocks), nil
}

func (e *TesseractEngine) recognizeImage(img []byte) ([]models.OCRBlock, error) {
	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, fmt.Errorf("recognize blocks: %w", err)
	}

	blocks := make([]models.OCRBlock, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		blocks = append(blocks, models.OCRBlock{
			Text:       text,
			X:          float64(b.Box.Min.X),
			Y:          float64(b.Box.Min.Y),
			Width:      float64(b.Box.Dx()),
			Height:     float64(b.Box.Dy()),
			Confidence: b.Confidence / 100.0,
		})
	}
	return blocks, nil
}

// pageImages returns the images to OCR, in page order.
func pageImages(filename string, data []byte) ([][]byte, error) {
	if !isPDF(filename, data) {
		return [][]byte{data}, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page images: %w", err)
	}

	var images [][]byte
	for _, page := range pages {
		objNrs := make([]int, 0, len(page))
		for nr := range page {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			raw, err := io.ReadAll(page[nr])
			if err != nil {
				return nil, fmt.Errorf("failed to read page image: %w", err)
			}
			images = append(images, raw)
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("PDF contains no page images to recognize")
	}
	return images, nil
}

func isPDF(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}
