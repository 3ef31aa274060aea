package extract

import (
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffLimit bounds how much of the stream the charset probe reads.
const sniffLimit = 100 * 1024

// TextHandler accepts anything that sniffs as plain ASCII/UTF-8/UTF-16 text.
// It is the catch-all at the end of the dispatch list: the probe reads real
// content, so it is the most expensive CanHandle.
type TextHandler struct{}

func (h *TextHandler) Name() string { return "text" }

// CanHandle sniffs the first 100 KB with best-effort charset detection and
// accepts only ASCII, UTF-8 and UTF-16 encodings. The caller rewinds the
// stream after the probe.
func (h *TextHandler) CanHandle(info FileInfo, r io.ReadSeeker) bool {
	raw := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	raw = raw[:n]

	if len(raw) == 0 {
		return false
	}

	charset, ok := detectCharset(raw)
	if !ok {
		return false
	}

	return charset == "ASCII" || strings.HasPrefix(charset, "UTF-8") || strings.HasPrefix(charset, "UTF-16")
}

// ReadText decodes the whole stream with the sniffed codec. If the decode
// fails mid-read it falls back to naive UTF-8 with invalid bytes replaced.
func (h *TextHandler) ReadText(info FileInfo, r io.ReadSeeker) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}

	charset, _ := detectCharset(raw[:min(len(raw), sniffLimit)])

	switch {
	case strings.HasPrefix(charset, "UTF-16"):
		endianness := unicode.LittleEndian
		if strings.HasSuffix(charset, "BE") {
			endianness = unicode.BigEndian
		}
		decoder := unicode.UTF16(endianness, unicode.UseBOM).NewDecoder()
		decoded, err := io.ReadAll(transform.NewReader(strings.NewReader(string(raw)), decoder))
		if err != nil {
			log.Printf("⚠️  [EXTRACT] UTF-16 decode of %s failed, replacing invalid bytes: %v", info.Filename, err)
			return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
		}
		return string(decoded), nil
	default:
		// ASCII and UTF-8 are read as-is, invalid sequences replaced.
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
	}
}

// detectCharset names the encoding of raw. Pure 7-bit content is reported as
// ASCII directly; everything else goes through the statistical detector.
func detectCharset(raw []byte) (string, bool) {
	ascii := true
	for _, b := range raw {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return "ASCII", true
	}

	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil {
		return "", false
	}
	return result.Charset, true
}
