package identity

import "testing"

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSymbol:  true,
		DenylistCommon: true,
	}

	tests := []struct {
		name     string
		password string
		wantOK   bool
	}{
		{"strong", "Str0ng!Pass", true},
		{"too short", "Ab1!xyz", false},
		{"no upper", "str0ng!pass", false},
		{"no lower", "STR0NG!PASS", false},
		{"no digit", "Strong!Pass", false},
		{"no symbol", "Str0ngPass1", false},
		{"common", "Password123", false},
		{"common mixed case", "QWERTY123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password)
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate(%q) error = %v, wantOK %v", tt.password, err, tt.wantOK)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email  string
		wantOK bool
	}{
		{"analyst@financeanalyst.com", true},
		{"a.b+tag@sub.example.co", true},
		{"", false},
		{"plainaddress", false},
		{"@missing-local.com", false},
		{"missing-domain@", false},
		{"spaces in@example.com", false},
	}
	for _, tt := range tests {
		err := ValidateEmail(tt.email)
		if (err == nil) != tt.wantOK {
			t.Errorf("ValidateEmail(%q) error = %v, wantOK %v", tt.email, err, tt.wantOK)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "Str0ng!Pass" {
		t.Fatal("HashPassword() returned the plaintext")
	}
	if !CheckPassword("Str0ng!Pass", hash) {
		t.Error("CheckPassword() rejected the correct password")
	}
	if CheckPassword("wrong", hash) {
		t.Error("CheckPassword() accepted a wrong password")
	}
}
