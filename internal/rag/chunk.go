// Package rag holds the chunking step of the ingestion pipeline.
package rag

// Chunkify splits the UTF-8 byte representation of text into sequential,
// non-overlapping slices of at most maxChunkBytes; the final chunk may be
// shorter. The split is byte-oriented and may cut a multi-byte sequence —
// the write path replaces invalid sequences per chunk rather than aborting
// the ingestion. Empty input yields no chunks.
func Chunkify(text string, maxChunkBytes int) [][]byte {
	data := []byte(text)
	if len(data) == 0 || maxChunkBytes <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+maxChunkBytes-1)/maxChunkBytes)
	for len(data) > 0 {
		n := maxChunkBytes
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
