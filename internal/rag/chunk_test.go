package rag

import (
	"bytes"
	"strings"
	"testing"
)

func TestChunkifySizes(t *testing.T) {
	tests := []struct {
		name      string
		inputLen  int
		chunkSize int
		wantSizes []int
	}{
		{
			name:      "600 bytes at 256",
			inputLen:  600,
			chunkSize: 256,
			wantSizes: []int{256, 256, 88},
		},
		{
			name:      "exact multiple",
			inputLen:  512,
			chunkSize: 256,
			wantSizes: []int{256, 256},
		},
		{
			name:      "shorter than chunk size",
			inputLen:  100,
			chunkSize: 256,
			wantSizes: []int{100},
		},
		{
			name:      "single byte chunks",
			inputLen:  3,
			chunkSize: 1,
			wantSizes: []int{1, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Repeat("a", tt.inputLen)
			chunks := Chunkify(input, tt.chunkSize)

			if len(chunks) != len(tt.wantSizes) {
				t.Fatalf("Expected %d chunks, got %d", len(tt.wantSizes), len(chunks))
			}
			for i, want := range tt.wantSizes {
				if len(chunks[i]) != want {
					t.Errorf("Chunk %d: expected %d bytes, got %d", i, want, len(chunks[i]))
				}
			}
		})
	}
}

func TestChunkifyConcatenatesBack(t *testing.T) {
	inputs := []string{
		"hello world",
		strings.Repeat("abc", 1000),
		"héllo wörld — multi-byte content 世界",
	}

	for _, input := range inputs {
		for _, size := range []int{1, 7, 64, 4096} {
			chunks := Chunkify(input, size)

			var joined bytes.Buffer
			for _, c := range chunks {
				if len(c) > size {
					t.Fatalf("Chunk exceeds %d bytes: %d", size, len(c))
				}
				joined.Write(c)
			}
			if joined.String() != input {
				t.Errorf("Chunks do not concatenate back to input (size %d)", size)
			}
		}
	}
}

func TestChunkifyEmptyInput(t *testing.T) {
	if chunks := Chunkify("", 256); len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestChunkifyMayCutMultiByteSequence(t *testing.T) {
	// A 3-byte rune split at 2 bytes: the cut is expected, the write path
	// repairs it.
	chunks := Chunkify("世", 2)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 1 {
		t.Errorf("Expected sizes [2 1], got [%d %d]", len(chunks[0]), len(chunks[1]))
	}
}
