package services

import (
	"testing"

	"cybersync/internal/models"
)

func strPtr(s string) *string { return &s }

func TestReembedRequired(t *testing.T) {
	tests := []struct {
		name    string
		memType string
		in      UpdateInput
		want    bool
	}{
		{
			name:    "text change on text memory",
			memType: models.MemoryTypeText,
			in:      UpdateInput{Text: strPtr("new body")},
			want:    true,
		},
		{
			name:    "title change on text memory",
			memType: models.MemoryTypeText,
			in:      UpdateInput{Title: strPtr("new title")},
			want:    true,
		},
		{
			name:    "title and text together",
			memType: models.MemoryTypeText,
			in:      UpdateInput{Title: strPtr("new title"), Text: strPtr("new body")},
			want:    true,
		},
		{
			name:    "tags only on text memory",
			memType: models.MemoryTypeText,
			in:      UpdateInput{Tags: []string{"phishing"}},
			want:    false,
		},
		{
			name:    "title change on file memory stays metadata-only",
			memType: models.MemoryTypeFile,
			in:      UpdateInput{Title: strPtr("new title")},
			want:    false,
		},
		{
			name:    "empty update",
			memType: models.MemoryTypeText,
			in:      UpdateInput{},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reembedRequired(tt.memType, tt.in); got != tt.want {
				t.Errorf("reembedRequired(%s, %+v) = %v, want %v", tt.memType, tt.in, got, tt.want)
			}
		})
	}
}
