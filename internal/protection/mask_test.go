package protection

import (
	"strings"
	"testing"
)

func TestMaskData(t *testing.T) {
	record := map[string]any{
		"email":       "john.doe@example.com",
		"phone":       "555-123-4567",
		"card_number": "4111-1111-1111-1234",
		"password":    "secret123",
		"note":        "visible",
	}

	masked := MaskData(record, nil)

	if got := masked["email"].(string); !strings.HasSuffix(got, "@example.com") || strings.Contains(got, "john.doe") {
		t.Errorf("email mask = %q, want domain kept and local hidden", got)
	}
	if got := masked["phone"].(string); !strings.HasSuffix(got, "4567") || strings.Contains(got, "123") {
		t.Errorf("phone mask = %q, want only last 4 digits visible", got)
	}
	if got := masked["card_number"].(string); !strings.HasSuffix(got, "1234") || strings.Contains(got, "4111") {
		t.Errorf("card mask = %q, want only last 4 digits visible", got)
	}
	if got := masked["password"].(string); got != fixedMask {
		t.Errorf("password mask = %q, want %q", got, fixedMask)
	}
	if masked["note"] != "visible" {
		t.Errorf("note = %v, want untouched", masked["note"])
	}
}

func TestMaskDataExplicitFields(t *testing.T) {
	record := map[string]any{
		"email": "a@b.com",
		"phone": "555-123-4567",
	}
	masked := MaskData(record, []string{"phone"})
	if masked["email"] != "a@b.com" {
		t.Errorf("email = %v, want untouched when not listed", masked["email"])
	}
	if masked["phone"] == "555-123-4567" {
		t.Error("phone left unmasked")
	}
}

func TestMaskNeverLongerThanOriginal(t *testing.T) {
	records := []map[string]any{
		{"email": "a@b.co"},
		{"email": "longer.local.part@company.example.com"},
		{"phone": "5551234567"},
		{"card_number": "4111111111111234"},
		{"password": "secret123"},
		{"password": "abc"},
		{"account_number": "99"},
		{"ssn": "078-05-1120"},
	}
	for _, record := range records {
		masked := MaskData(record, nil)
		for field, original := range record {
			got := masked[field].(string)
			if len(got) > len(original.(string)) {
				t.Errorf("mask of %s grew: %q -> %q", field, original, got)
			}
		}
	}
}

func TestMaskKeepLast4ShortValues(t *testing.T) {
	// Four or fewer digits must be fully hidden.
	for _, v := range []string{"1234", "12", ""} {
		got := maskKeepLast4(v)
		if strings.ContainsAny(got, "0123456789") {
			t.Errorf("maskKeepLast4(%q) = %q, digits leaked", v, got)
		}
	}
}
