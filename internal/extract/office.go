package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

const (
	contentTypeWord   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	contentTypeSlides = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingNS        = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

// WordHandler extracts paragraph text from DOCX documents.
type WordHandler struct{}

func (h *WordHandler) Name() string { return "docx" }

func (h *WordHandler) CanHandle(info FileInfo, _ io.ReadSeeker) bool {
	return strings.ToLower(filepath.Ext(info.Filename)) == ".docx" ||
		info.ContentType == contentTypeWord
}

// ReadText concatenates non-empty paragraphs with newline separators.
func (h *WordHandler) ReadText(info FileInfo, r io.ReadSeeker) (string, error) {
	zr, err := openOfficeArchive(r)
	if err != nil {
		return "", err
	}

	content, err := readArchiveFile(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("not a DOCX archive: %w", err)
	}

	paragraphs := collectElementText(content, "p", wordprocessingNS)
	return strings.Join(paragraphs, "\n"), nil
}

// SlidesHandler extracts shape text from PPTX presentations.
type SlidesHandler struct{}

func (h *SlidesHandler) Name() string { return "pptx" }

func (h *SlidesHandler) CanHandle(info FileInfo, _ io.ReadSeeker) bool {
	return strings.ToLower(filepath.Ext(info.Filename)) == ".pptx" ||
		info.ContentType == contentTypeSlides
}

// ReadText walks slides in order and concatenates each shape's non-empty
// text with newline separators.
func (h *SlidesHandler) ReadText(info FileInfo, r io.ReadSeeker) (string, error) {
	zr, err := openOfficeArchive(r)
	if err != nil {
		return "", err
	}

	var slideNames []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slideNames = append(slideNames, f.Name)
		}
	}
	if len(slideNames) == 0 {
		return "", fmt.Errorf("not a PPTX archive: no slides found")
	}
	sort.Strings(slideNames)

	var texts []string
	for _, name := range slideNames {
		content, err := readArchiveFile(zr, name)
		if err != nil {
			continue
		}
		texts = append(texts, collectElementText(content, "a:t", drawingNS)...)
	}

	return strings.Join(texts, "\n"), nil
}

func openOfficeArchive(r io.ReadSeeker) (*zip.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid ZIP archive: %w", err)
	}
	return zr, nil
}

func readArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("missing %s", name)
}

// collectElementText parses Office XML and returns the text enclosed by each
// occurrence of the named element, empty strings filtered. For DOCX the unit
// is the paragraph element "p"; for PPTX it is the text run "a:t" (matched on
// the local name "t" in the drawing namespace).
func collectElementText(xmlContent []byte, element, namespace string) []string {
	local := element
	if idx := strings.Index(element, ":"); idx != -1 {
		local = element[idx+1:]
	}

	decoder := xml.NewDecoder(bytes.NewReader(xmlContent))

	var texts []string
	depth := 0
	var current strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == local && t.Name.Space == namespace {
				if depth == 0 {
					current.Reset()
				}
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == local && t.Name.Space == namespace {
				depth--
				if depth == 0 {
					if s := strings.TrimSpace(current.String()); s != "" {
						texts = append(texts, s)
					}
				}
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		}
	}

	return texts
}
