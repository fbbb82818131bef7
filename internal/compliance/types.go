package compliance

import (
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// CheckContext is the state a requirement check predicate evaluates:
// recent audit events plus read-only aggregates from the other
// services.
type CheckContext struct {
	Events          []*models.AuditEvent
	ActiveAlerts    int
	EncryptionOps   int
	DecryptionOps   int
	MaskedRecords   int
	PendingErasures int
	OverdueErasures int
	AccessEvents    int
	MFAEnabledUsers int
	TotalUsers      int
	Now             time.Time
}

// RequirementCheck is one predicate within a rule. The check returns
// its outcome and a human-readable detail.
type RequirementCheck struct {
	Name        string
	Severity    models.Severity
	Remediation string
	Check       func(ctx *CheckContext) (models.CheckOutcome, string)
}

// Rule groups ordered requirement checks under one named control.
type Rule struct {
	Name   string
	Checks []RequirementCheck
}

// Finding is the result of one requirement check at one point in time.
type Finding struct {
	ID          string               `json:"id"`
	Framework   models.Framework     `json:"framework"`
	Rule        string               `json:"rule"`
	Check       string               `json:"check"`
	Outcome     models.CheckOutcome  `json:"outcome"`
	Severity    models.Severity      `json:"severity"`
	Detail      string               `json:"detail,omitempty"`
	Remediation string               `json:"remediation,omitempty"`
	CheckedAt   time.Time            `json:"checked_at"`
}

// Report is the per-framework score generated on the configured
// cadence.
type Report struct {
	Framework       models.Framework        `json:"framework"`
	Score           float64                 `json:"score"`
	Status          models.ComplianceStatus `json:"status"`
	Passed          int                     `json:"passed"`
	Failed          int                     `json:"failed"`
	Errored         int                     `json:"errored"`
	SampleSize      int                     `json:"sample_size"`
	Recommendations []string                `json:"recommendations,omitempty"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// FrameworkRisk is one framework's posture within a risk assessment.
type FrameworkRisk struct {
	Framework models.Framework `json:"framework"`
	Score     float64          `json:"score"`
	Level     models.RiskLevel `json:"level"`
	Failures  int              `json:"failures"`
}

// RiskAssessment rolls per-framework risks into one overall level.
type RiskAssessment struct {
	Frameworks  []FrameworkRisk  `json:"frameworks"`
	Overall     models.RiskLevel `json:"overall"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// RegulatoryDate is a known recurring regulatory deadline (annual,
// month/day).
type RegulatoryDate struct {
	Name      string           `json:"name"`
	Framework models.Framework `json:"framework"`
	Month     time.Month       `json:"month"`
	Day       int              `json:"day"`
}

// Metrics is the read-only aggregate for presentation code.
type Metrics struct {
	OverallScore    float64                     `json:"overall_score"`
	Frameworks      map[models.Framework]*Trend `json:"frameworks"`
	OverallRisk     models.RiskLevel            `json:"overall_risk"`
	ActiveAlerts    int                         `json:"active_alerts"`
	RecentFindings  int                         `json:"recent_findings"`
	LastCheckAt     time.Time                   `json:"last_check_at"`
	LastReportAt    time.Time                   `json:"last_report_at"`
}

// Trend is the latest score plus its direction against the previous
// report.
type Trend struct {
	Score     float64                 `json:"score"`
	Status    models.ComplianceStatus `json:"status"`
	Direction string                  `json:"direction"`
}
