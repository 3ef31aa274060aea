package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractPlainText(t *testing.T) {
	content := "Phishing is a social engineering attack.\nNever reuse passwords."
	info := FileInfo{Filename: "notes.txt", ContentType: "text/plain", Size: int64(len(content))}

	got, err := Extract(info, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != content {
		t.Errorf("expected %q, got %q", content, got)
	}
}

func TestExtractUTF16Text(t *testing.T) {
	// "Hi there" as UTF-16LE with BOM.
	raw := []byte{0xFF, 0xFE}
	for _, r := range "Hi there" {
		raw = append(raw, byte(r), 0x00)
	}
	info := FileInfo{Filename: "notes.txt", Size: int64(len(raw))}

	got, err := Extract(info, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("expected %q, got %q", "Hi there", got)
	}
}

func TestExtractUnsupportedBinary(t *testing.T) {
	// Latin-1 high bytes; decodes in no charset the text handler accepts.
	raw := bytes.Repeat([]byte{0xE9, 0xF1, 0xFC, 0xDF}, 64)
	info := FileInfo{Filename: "blob.bin", Size: int64(len(raw))}

	_, err := Extract(info, bytes.NewReader(raw))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func buildDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	doc := `<?xml version="1.0"?><w:document xmlns:w="` + wordprocessingNS + `"><w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := f.Write([]byte(doc)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocxParagraphs(t *testing.T) {
	raw := buildDocx(t, []string{"First paragraph", "Second paragraph"})
	info := FileInfo{Filename: "lesson.docx", Size: int64(len(raw))}

	got, err := Extract(info, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "First paragraph\nSecond paragraph" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestExtractPptxSlides(t *testing.T) {
	slide := func(texts ...string) string {
		var runs strings.Builder
		for _, s := range texts {
			runs.WriteString(`<a:t>` + s + `</a:t>`)
		}
		return `<?xml version="1.0"?><p:sld xmlns:a="` + drawingNS + `" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` + runs.String() + `</p:sld>`
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"ppt/slides/slide1.xml": slide("Title slide"),
		"ppt/slides/slide2.xml": slide("Second slide", "with a note"),
	} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	info := FileInfo{Filename: "deck.pptx", Size: int64(buf.Len())}
	got, err := Extract(info, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Title slide\nSecond slide\nwith a note" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestExtractXlsxRows(t *testing.T) {
	wb := excelize.NewFile()
	if err := wb.SetCellValue("Sheet1", "A1", "threat"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := wb.SetCellValue("Sheet1", "B1", "severity"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := wb.SetCellValue("Sheet1", "A2", "phishing"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := wb.SetCellValue("Sheet1", "B2", "high"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}

	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	info := FileInfo{Filename: "threats.xlsx", Size: int64(buf.Len())}
	got, err := Extract(info, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "threat severity\nphishing high" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestExtractDispatchPrefersExtensionOverSniffing(t *testing.T) {
	// A DOCX is a ZIP; the text sniffer must never claim it first.
	raw := buildDocx(t, []string{"content"})
	info := FileInfo{Filename: "lesson.docx", Size: int64(len(raw))}

	for _, h := range Handlers() {
		if h.CanHandle(info, bytes.NewReader(raw)) {
			if h.Name() != "docx" {
				t.Errorf("expected docx handler to claim the file first, got %s", h.Name())
			}
			return
		}
	}
	t.Fatal("no handler claimed the file")
}
