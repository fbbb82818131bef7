package compliance

import (
	"fmt"

	"github.com/financeanalyst/securecore/internal/models"
)

// defaultFrameworks builds the rule registry. Each check is a predicate
// over recent audit events and protection state.
func defaultFrameworks() map[models.Framework][]Rule {
	return map[models.Framework][]Rule{
		models.FrameworkGDPR:  gdprRules(),
		models.FrameworkSOX:   soxRules(),
		models.FrameworkPCI:   pciRules(),
		models.FrameworkFINRA: finraRules(),
	}
}

func gdprRules() []Rule {
	return []Rule{
		{
			Name: "data_subject_rights",
			Checks: []RequirementCheck{
				{
					Name:        "erasure_within_grace",
					Severity:    models.SeverityCritical,
					Remediation: "Purge subjects whose erasure grace period has lapsed",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						if ctx.OverdueErasures > 0 {
							return models.CheckFailed, fmt.Sprintf("%d erasure requests past their purge date", ctx.OverdueErasures)
						}
						return models.CheckPassed, "no overdue erasure requests"
					},
				},
				{
					Name:        "access_requests_served",
					Severity:    models.SeverityMedium,
					Remediation: "Investigate failing subject access exports",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						exports := countEvents(ctx.Events, models.EventExportRequested)
						return models.CheckPassed, fmt.Sprintf("%d export requests served", exports)
					},
				},
			},
		},
		{
			Name: "breach_detection",
			Checks: []RequirementCheck{
				{
					Name:        "no_unhandled_violations",
					Severity:    models.SeverityCritical,
					Remediation: "Triage open security violations within 72 hours",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						violations := countEvents(ctx.Events, models.EventSecurityViolation)
						if violations > 0 {
							return models.CheckFailed, fmt.Sprintf("%d security violations in window", violations)
						}
						return models.CheckPassed, "no security violations in window"
					},
				},
				{
					Name:        "processing_logged",
					Severity:    models.SeverityMedium,
					Remediation: "Route all personal data reads through the access log",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						sensitive := countEvents(ctx.Events, models.EventSensitiveDataAccess)
						if sensitive > 0 && ctx.AccessEvents == 0 {
							return models.CheckFailed, "sensitive access events without access-log entries"
						}
						return models.CheckPassed, "processing activity is logged"
					},
				},
			},
		},
	}
}

func soxRules() []Rule {
	return []Rule{
		{
			Name: "access_controls",
			Checks: []RequirementCheck{
				{
					Name:        "denials_enforced",
					Severity:    models.SeverityHigh,
					Remediation: "Review role assignments for users generating repeated denials",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						denied := countEvents(ctx.Events, models.EventPermissionDenied) +
							countEvents(ctx.Events, models.EventAccessDenied)
						accessed := countEvents(ctx.Events, models.EventDataAccessed)
						if accessed > 0 && denied == 0 && accessed > 100 {
							return models.CheckError, "high access volume with zero denials, enforcement unverifiable"
						}
						return models.CheckPassed, fmt.Sprintf("%d denials recorded", denied)
					},
				},
				{
					Name:        "privileged_changes_attributed",
					Severity:    models.SeverityCritical,
					Remediation: "Require an authenticated actor on every configuration change",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						for _, evt := range ctx.Events {
							if (evt.Type == models.EventConfigChanged || evt.Type == models.EventRoleChanged) && evt.ActorID == "" {
								return models.CheckFailed, "configuration change without an attributed actor"
							}
						}
						return models.CheckPassed, "all privileged changes attributed"
					},
				},
			},
		},
		{
			Name: "audit_trail",
			Checks: []RequirementCheck{
				{
					Name:        "trail_active",
					Severity:    models.SeverityHigh,
					Remediation: "Verify the audit engine subscription to the event bus",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						if len(ctx.Events) == 0 {
							return models.CheckError, "no audit events in window"
						}
						return models.CheckPassed, fmt.Sprintf("%d events in window", len(ctx.Events))
					},
				},
			},
		},
	}
}

func pciRules() []Rule {
	return []Rule{
		{
			Name: "authentication",
			Checks: []RequirementCheck{
				{
					Name:        "no_brute_force_activity",
					Severity:    models.SeverityCritical,
					Remediation: "Block offending origins and force credential resets",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						attempts := countEvents(ctx.Events, models.EventBruteForceAttempt)
						if attempts > 0 {
							return models.CheckFailed, fmt.Sprintf("%d brute-force indicators in window", attempts)
						}
						return models.CheckPassed, "no brute-force indicators"
					},
				},
				{
					Name:        "mfa_adoption",
					Severity:    models.SeverityMedium,
					Remediation: "Require MFA enrollment for all active users",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						if ctx.TotalUsers == 0 {
							return models.CheckPassed, "no users provisioned"
						}
						ratio := float64(ctx.MFAEnabledUsers) / float64(ctx.TotalUsers)
						if ratio < 0.5 {
							return models.CheckFailed, fmt.Sprintf("MFA enabled for %d of %d users", ctx.MFAEnabledUsers, ctx.TotalUsers)
						}
						return models.CheckPassed, fmt.Sprintf("MFA enabled for %d of %d users", ctx.MFAEnabledUsers, ctx.TotalUsers)
					},
				},
			},
		},
		{
			Name: "data_protection",
			Checks: []RequirementCheck{
				{
					Name:        "cardholder_data_encrypted",
					Severity:    models.SeverityCritical,
					Remediation: "Encrypt confidential records before persistence",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						sensitive := countEvents(ctx.Events, models.EventSensitiveDataAccess)
						if sensitive > 0 && ctx.EncryptionOps == 0 {
							return models.CheckFailed, "sensitive data in use but no encryption operations recorded"
						}
						return models.CheckPassed, fmt.Sprintf("%d encryption operations", ctx.EncryptionOps)
					},
				},
				{
					Name:        "display_masking",
					Severity:    models.SeverityMedium,
					Remediation: "Mask card and account numbers in every rendered view",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						return models.CheckPassed, fmt.Sprintf("%d records masked", ctx.MaskedRecords)
					},
				},
			},
		},
	}
}

func finraRules() []Rule {
	return []Rule{
		{
			Name: "books_and_records",
			Checks: []RequirementCheck{
				{
					Name:        "activity_retained",
					Severity:    models.SeverityHigh,
					Remediation: "Restore audit snapshot persistence",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						if len(ctx.Events) == 0 {
							return models.CheckError, "no retained activity to examine"
						}
						return models.CheckPassed, fmt.Sprintf("%d retained events", len(ctx.Events))
					},
				},
			},
		},
		{
			Name: "supervision",
			Checks: []RequirementCheck{
				{
					Name:        "alerts_reviewed",
					Severity:    models.SeverityHigh,
					Remediation: "Resolve or escalate open alerts within the review SLA",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						if ctx.ActiveAlerts > 10 {
							return models.CheckFailed, fmt.Sprintf("%d alerts awaiting review", ctx.ActiveAlerts)
						}
						return models.CheckPassed, fmt.Sprintf("%d alerts awaiting review", ctx.ActiveAlerts)
					},
				},
				{
					Name:        "suspicious_activity_escalated",
					Severity:    models.SeverityCritical,
					Remediation: "File a review for every suspicious-origin detection",
					Check: func(ctx *CheckContext) (models.CheckOutcome, string) {
						suspicious := countEvents(ctx.Events, models.EventSuspiciousIP)
						if suspicious > 0 && ctx.ActiveAlerts == 0 {
							return models.CheckFailed, "suspicious origins detected without open alerts"
						}
						return models.CheckPassed, "suspicious activity escalation in place"
					},
				},
			},
		},
	}
}

// defaultRegulatoryDates lists the recurring annual deadlines the alert
// check watches.
func defaultRegulatoryDates() []RegulatoryDate {
	return []RegulatoryDate{
		{Name: "Annual SOX 404 attestation", Framework: models.FrameworkSOX, Month: 12, Day: 31},
		{Name: "PCI DSS annual self-assessment", Framework: models.FrameworkPCI, Month: 6, Day: 30},
		{Name: "FINRA annual compliance certification", Framework: models.FrameworkFINRA, Month: 4, Day: 1},
		{Name: "GDPR records of processing review", Framework: models.FrameworkGDPR, Month: 5, Day: 25},
	}
}

func countEvents(events []*models.AuditEvent, eventType models.EventType) int {
	count := 0
	for _, evt := range events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}
