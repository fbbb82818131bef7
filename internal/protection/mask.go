package protection

import (
	"fmt"
	"strings"
	"unicode"
)

// fixedMask replaces credential fields entirely so their length leaks
// nothing.
const fixedMask = "********"

// credentialFields always take the fixed mask.
var credentialFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"access_token":  true,
	"refresh_token": true,
	"pin":           true,
}

// MaskData masks the named fields of a record with format-aware rules.
// With no field list every recognized sensitive, financial or
// credential field is masked. Unmatched names fall back to a full
// same-length mask; a mask is never longer than the original value.
func MaskData(record map[string]any, fields []string) map[string]any {
	targets := make(map[string]bool, len(fields))
	for _, f := range fields {
		targets[f] = true
	}

	out := make(map[string]any, len(record))
	for name, value := range record {
		normalized := normalizeField(name)
		maskable := matchesSet(normalized, credentialFields) ||
			matchesSet(normalized, sensitiveFields) ||
			matchesSet(normalized, financialFields)
		if len(fields) > 0 && !targets[name] {
			out[name] = value
			continue
		}
		if len(fields) == 0 && !maskable {
			out[name] = value
			continue
		}
		out[name] = maskValue(normalized, fmt.Sprintf("%v", value))
	}
	return out
}

func maskValue(normalized, value string) string {
	switch {
	case matchesSet(normalized, credentialFields):
		// A mask must not exceed the original value, so very short
		// credentials degrade to a same-length mask.
		if len(value) < len(fixedMask) {
			return strings.Repeat("*", len(value))
		}
		return fixedMask
	case strings.Contains(normalized, "email"):
		return maskEmail(value)
	case strings.Contains(normalized, "phone") || strings.Contains(normalized, "mobile"),
		strings.Contains(normalized, "card"),
		strings.Contains(normalized, "account"),
		strings.Contains(normalized, "iban"),
		strings.Contains(normalized, "routing"):
		return maskKeepLast4(value)
	default:
		return strings.Repeat("*", len(value))
	}
}

// maskEmail hides the local part but keeps the domain as a format cue.
func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return strings.Repeat("*", len(value))
	}
	local, domain := value[:at], value[at:]
	if len(local) == 1 {
		return "*" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + domain
}

// maskKeepLast4 stars all digits except the final four, preserving
// separators so the shape of the number survives.
func maskKeepLast4(value string) string {
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits <= 4 {
		return strings.Repeat("*", len(value))
	}

	toMask := digits - 4
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) && toMask > 0 {
			b.WriteByte('*')
			toMask--
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
