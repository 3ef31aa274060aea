package validation

import "strings"

// ValidateUsername rejects usernames containing whitespace.
func ValidateUsername(username string) *RuleError {
	if username == "" {
		return &RuleError{Field: "username", Message: "must not be empty"}
	}
	if strings.ContainsAny(username, " \t\n") {
		return &RuleError{Field: "username", Message: "cannot contain any spaces"}
	}
	return nil
}
