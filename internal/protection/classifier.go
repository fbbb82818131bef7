package protection

import (
	"sort"
	"strings"

	"github.com/financeanalyst/securecore/internal/models"
)

// sensitiveFields are field names that mark a record as personal data.
var sensitiveFields = map[string]bool{
	"ssn":             true,
	"social_security": true,
	"email":           true,
	"phone":           true,
	"mobile":          true,
	"dob":             true,
	"date_of_birth":   true,
	"birthdate":       true,
	"address":         true,
	"passport":        true,
	"tax_id":          true,
	"national_id":     true,
	"drivers_license": true,
	"first_name":      true,
	"last_name":       true,
	"full_name":       true,
}

// financialFields mark a record as confidential financial data when no
// personal identifiers are present.
var financialFields = map[string]bool{
	"account_number": true,
	"routing_number": true,
	"iban":           true,
	"card_number":    true,
	"credit_card":    true,
	"balance":        true,
	"portfolio":      true,
	"holdings":       true,
	"transaction":    true,
	"transactions":   true,
	"amount":         true,
	"income":         true,
	"salary":         true,
	"net_worth":      true,
	"credit_score":   true,
}

// publicFields never raise the classification on their own.
var publicFields = map[string]bool{
	"id":         true,
	"ticker":     true,
	"symbol":     true,
	"currency":   true,
	"exchange":   true,
	"created_at": true,
	"updated_at": true,
}

// ClassifyData assigns a classification by scanning field names only.
// Any sensitive field makes the record personal; financial indicators
// without personal identifiers make it confidential; anything else is
// internal, or public when every field is a known public one. The scan
// iterates sorted field names, so permuting the record changes nothing.
func ClassifyData(record map[string]any) ClassificationResult {
	fields := make([]string, 0, len(record))
	for name := range record {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var matchedSensitive, matchedFinancial []string
	allPublic := len(fields) > 0

	for _, name := range fields {
		normalized := normalizeField(name)
		switch {
		case matchesSet(normalized, sensitiveFields):
			matchedSensitive = append(matchedSensitive, name)
			allPublic = false
		case matchesSet(normalized, financialFields):
			matchedFinancial = append(matchedFinancial, name)
			allPublic = false
		case !publicFields[normalized]:
			allPublic = false
		}
	}

	switch {
	case len(matchedSensitive) > 0:
		return ClassificationResult{
			Level:         models.ClassificationPersonal,
			Score:         100,
			Policy:        policyFor(models.ClassificationPersonal),
			MatchedFields: matchedSensitive,
		}
	case len(matchedFinancial) > 0:
		return ClassificationResult{
			Level:         models.ClassificationConfidential,
			Score:         70,
			Policy:        policyFor(models.ClassificationConfidential),
			MatchedFields: matchedFinancial,
		}
	case allPublic:
		return ClassificationResult{
			Level:  models.ClassificationPublic,
			Score:  0,
			Policy: policyFor(models.ClassificationPublic),
		}
	default:
		return ClassificationResult{
			Level:  models.ClassificationInternal,
			Score:  30,
			Policy: policyFor(models.ClassificationInternal),
		}
	}
}

// policyFor returns the handling policy for a classification level.
func policyFor(level models.Classification) Policy {
	switch level {
	case models.ClassificationPersonal:
		return Policy{EncryptionRequired: true, RetentionDays: 730, AccessModel: "restricted"}
	case models.ClassificationRestricted:
		return Policy{EncryptionRequired: true, RetentionDays: 2555, AccessModel: "need_to_know"}
	case models.ClassificationConfidential:
		return Policy{EncryptionRequired: true, RetentionDays: 2555, AccessModel: "role_based"}
	case models.ClassificationInternal:
		return Policy{EncryptionRequired: false, RetentionDays: 365, AccessModel: "authenticated"}
	default:
		return Policy{EncryptionRequired: false, RetentionDays: 90, AccessModel: "open"}
	}
}

// normalizeField lowercases a field name and unifies separators so
// "dateOfBirth", "date-of-birth" and "date_of_birth" compare equal.
func normalizeField(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := name[i-1]
				if prev >= 'a' && prev <= 'z' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchesSet reports whether the normalized field name matches a set
// entry exactly or as a trailing component ("user_email" matches
// "email").
func matchesSet(normalized string, set map[string]bool) bool {
	if set[normalized] {
		return true
	}
	for key := range set {
		if strings.HasSuffix(normalized, "_"+key) {
			return true
		}
	}
	return false
}
