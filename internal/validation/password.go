package validation

// ValidatePassword enforces the account password policy: at least 8
// characters with at least one digit, one uppercase letter and one
// character that is neither a letter nor a digit.
func ValidatePassword(password string) *RuleError {
	if len(password) < 8 {
		return &RuleError{Field: "password", Message: "must be at least 8 characters"}
	}

	var digits, uppers, specials int
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'A' && r <= 'Z':
			uppers++
		case r >= 'a' && r <= 'z':
			// lowercase counts toward length only
		default:
			specials++
		}
	}

	if digits < 1 || uppers < 1 || specials < 1 {
		return &RuleError{Field: "password", Message: "must contain at least 1 number, 1 uppercase character and 1 special character"}
	}
	return nil
}
