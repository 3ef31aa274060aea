// Package validation holds the pure input rules shared by the HTTP layer.
// Every rule is a plain function returning a RuleError so handlers can map
// failures straight onto 422 responses.
package validation

// RuleError is a validation failure with the field it concerns.
type RuleError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *RuleError) Error() string {
	return e.Field + ": " + e.Message
}
