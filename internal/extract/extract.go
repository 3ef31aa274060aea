// Package extract turns uploaded files into plain text for chunking and
// embedding. Dispatch walks a priority-ordered list of format handlers; the
// first handler that claims the file wins. The order is meaningful: probes go
// cheap to expensive, and the plain-text sniffer sits last because it accepts
// almost anything that decodes.
package extract

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnsupported is returned when no handler claims the file, or the claimed
// format produced no extractable text. Surfaces to callers as a 4xx.
var ErrUnsupported = errors.New("file format not supported")

// FileInfo carries the upload metadata handlers probe against.
type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Handler reads one document format.
//
// CanHandle must not move the stream position permanently; Extract rewinds
// after every probe, but handlers should only read, never write or close.
type Handler interface {
	Name() string
	CanHandle(info FileInfo, r io.ReadSeeker) bool
	ReadText(info FileInfo, r io.ReadSeeker) (string, error)
}

// handlers in probe order: extension checks first, content sniffing last.
var handlers = []Handler{
	&PDFHandler{},
	&WordHandler{},
	&SlidesHandler{},
	&SheetHandler{},
	&TextHandler{},
}

// Handlers returns the dispatch list in probe order.
func Handlers() []Handler {
	return handlers
}

// Extract classifies the file among the supported formats and returns its
// text. Returns ErrUnsupported when no handler claims the stream.
func Extract(info FileInfo, r io.ReadSeeker) (string, error) {
	for _, h := range handlers {
		claimed := h.CanHandle(info, r)
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to rewind stream after probe: %w", err)
		}
		if !claimed {
			continue
		}

		text, err := h.ReadText(info, r)
		if err != nil {
			return "", fmt.Errorf("%s handler: %w", h.Name(), err)
		}
		return text, nil
	}

	return "", ErrUnsupported
}
