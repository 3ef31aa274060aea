package validation

import "testing"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "Secur3Pa$s", false},
		{"too short", "S3cur$!", true},
		{"no digit", "Insecure$Pass", true},
		{"no uppercase", "insecure3$pass", true},
		{"no special character", "Insecure3Pass", true},
		{"all rules satisfied minimally", "aaaaaA1!", false},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"plain username", "analyst01", false},
		{"contains space", "analyst 01", true},
		{"contains tab", "analyst\t01", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		size    int64
		limitMB int
		wantErr bool
	}{
		{"single small file", 1, 1024, 10, false},
		{"no file at all", 0, 0, 10, false},
		{"two files", 2, 1024, 10, true},
		{"empty file", 1, 0, 10, true},
		{"over the limit", 1, 11 * 1024 * 1024, 10, true},
		{"exactly at the limit", 1, 10 * 1024 * 1024, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.count, tt.size, tt.limitMB)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUpload(%d, %d, %d) error = %v, wantErr %v", tt.count, tt.size, tt.limitMB, err, tt.wantErr)
			}
		})
	}
}
