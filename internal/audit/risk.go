package audit

import (
	"fmt"

	"github.com/financeanalyst/securecore/internal/models"
)

// baseRisk is the deterministic lookup table for event risk. Events not
// listed default to low.
var baseRisk = map[models.EventType]models.RiskLevel{
	models.EventAccountLocked:     models.RiskCritical,
	models.EventSecurityViolation: models.RiskCritical,
	models.EventBruteForceAttempt: models.RiskCritical,

	models.EventLoginFailed:      models.RiskHigh,
	models.EventAccessDenied:     models.RiskHigh,
	models.EventSuspiciousIP:     models.RiskHigh,
	models.EventPermissionDenied: models.RiskHigh,

	models.EventSensitiveDataAccess: models.RiskMedium,
	models.EventDataDeleted:         models.RiskMedium,
	models.EventExportRequested:     models.RiskMedium,
	models.EventPasswordChanged:     models.RiskMedium,
	models.EventMFADisabled:         models.RiskMedium,
	models.EventConfigChanged:       models.RiskMedium,
}

// riskFor assigns the risk level for an event. A failed login with more
// than three recorded attempts escalates to high regardless of the base
// entry; the table already puts login_failed at high, so the escalation
// matters only if the table is tuned down.
func riskFor(eventType models.EventType, metadata models.JSONB) models.RiskLevel {
	risk, ok := baseRisk[eventType]
	if !ok {
		risk = models.RiskLow
	}

	if eventType == models.EventLoginFailed {
		if attempts, ok := intMetadata(metadata, "attempts"); ok && attempts > 3 {
			if models.RiskHigh.Rank() > risk.Rank() {
				risk = models.RiskHigh
			}
		}
	}
	return risk
}

// annotationsFor produces the per-framework structured notes attached
// to every audit event. Notes are aggregation hooks, not verdicts.
func annotationsFor(eventType models.EventType) []models.ComplianceAnnotation {
	notes := make([]models.ComplianceAnnotation, 0, 4)
	for _, framework := range models.Frameworks() {
		notes = append(notes, models.ComplianceAnnotation{
			Framework: framework,
			Note:      annotationNote(framework, eventType),
		})
	}
	return notes
}

func annotationNote(framework models.Framework, eventType models.EventType) string {
	switch framework {
	case models.FrameworkGDPR:
		switch eventType {
		case models.EventDataAccessed, models.EventSensitiveDataAccess:
			return "personal data processing activity"
		case models.EventDataDeleted:
			return "erasure activity, retain proof of deletion"
		case models.EventExportRequested:
			return "data portability or access request"
		}
		return "activity logged for accountability"
	case models.FrameworkSOX:
		switch eventType {
		case models.EventDataModified, models.EventConfigChanged, models.EventRoleChanged:
			return "change affecting financial reporting controls"
		}
		return "access control evidence"
	case models.FrameworkPCI:
		switch eventType {
		case models.EventSensitiveDataAccess:
			return "cardholder data environment access"
		case models.EventLoginFailed, models.EventAccountLocked, models.EventBruteForceAttempt:
			return "authentication control evidence"
		}
		return "monitored per requirement 10"
	case models.FrameworkFINRA:
		switch eventType {
		case models.EventExportRequested, models.EventAuditReport:
			return "books and records artifact"
		}
		return "supervisory review trail"
	}
	return fmt.Sprintf("logged for %s", framework)
}

func intMetadata(metadata models.JSONB, key string) (int, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
