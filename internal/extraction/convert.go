package extraction

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// pdfToPNG renders a PDF to a PNG image of its first page. Receipts are
// almost always single page, and the vision models read a rendered page more
// reliably than raw PDF bytes.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// renderPNG prepares document bytes for the model. The upload validator only
// admits PDFs, so anything else here is already PNG (tests) and passes
// through untouched.
func renderPNG(data []byte, contentType string) ([]byte, error) {
	if strings.EqualFold(strings.TrimSpace(contentType), "application/pdf") {
		pngData, err := pdfToPNG(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	}
	return data, nil
}
