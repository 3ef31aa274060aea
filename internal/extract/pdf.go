package extract

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxPDFPages limits the number of pages to process
const MaxPDFPages = 500

// PDFHandler extracts per-page text from PDF documents.
type PDFHandler struct{}

func (h *PDFHandler) Name() string { return "pdf" }

// CanHandle claims files by extension; decoding problems surface in ReadText.
func (h *PDFHandler) CanHandle(info FileInfo, _ io.ReadSeeker) bool {
	return strings.ToLower(filepath.Ext(info.Filename)) == ".pdf" ||
		info.ContentType == "application/pdf"
}

// ReadText extracts each page's text and joins pages with newlines. Pages
// that fail to decode are logged and skipped; only a document where every
// page fails (or is empty) is an error.
func (h *PDFHandler) ReadText(info FileInfo, r io.ReadSeeker) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages > MaxPDFPages {
		totalPages = MaxPDFPages
	}

	var pages []string
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("⚠️  [EXTRACT] Skipping page %d of %s: %v", pageNum, info.Filename, err)
			continue
		}

		text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
		if text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("document produced no extractable text: %w", ErrUnsupported)
	}

	return strings.Join(pages, "\n"), nil
}
