package validation

import "fmt"

// ValidateUpload enforces the upload contract of the memory endpoint:
// exactly one file, non-empty and under the configured size limit.
func ValidateUpload(fileCount int, sizeBytes int64, limitMB int) *RuleError {
	if fileCount > 1 {
		return &RuleError{Field: "file", Message: "only one file may be uploaded per memory"}
	}
	if fileCount == 1 && sizeBytes == 0 {
		return &RuleError{Field: "file", Message: "uploaded file is empty"}
	}
	if limit := int64(limitMB) * 1024 * 1024; sizeBytes > limit {
		return &RuleError{Field: "file", Message: fmt.Sprintf("file exceeds the %d MB limit", limitMB)}
	}
	return nil
}
