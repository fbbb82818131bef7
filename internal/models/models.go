package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

// EventType identifies the kind of security event. Names are stable and
// shared with the audit log and the compliance rule checks.
type EventType string

const (
	EventUserLogin           EventType = "user_login"
	EventUserLogout          EventType = "user_logout"
	EventLoginFailed         EventType = "login_failed"
	EventPasswordChanged     EventType = "password_changed"
	EventMFAEnabled          EventType = "mfa_enabled"
	EventMFADisabled         EventType = "mfa_disabled"
	EventAccountLocked       EventType = "account_locked"
	EventAccountUnlocked     EventType = "account_unlocked"
	EventPermissionGranted   EventType = "permission_granted"
	EventPermissionDenied    EventType = "permission_denied"
	EventRoleChanged         EventType = "role_changed"
	EventAccessDenied        EventType = "access_denied"
	EventDataAccessed        EventType = "data_accessed"
	EventDataModified        EventType = "data_modified"
	EventDataDeleted         EventType = "data_deleted"
	EventSensitiveDataAccess EventType = "sensitive_data_accessed"
	EventExportRequested     EventType = "export_requested"
	EventConfigChanged       EventType = "config_changed"
	EventSecurityViolation   EventType = "security_violation"
	EventSuspiciousIP        EventType = "suspicious_ip"
	EventBruteForceAttempt   EventType = "brute_force_attempt"
	EventComplianceCheck     EventType = "compliance_check"
	EventAuditReport         EventType = "audit_report"
	EventRegulatoryAlert     EventType = "regulatory_alert"
)

// RiskLevel is the coarse risk tag assigned to audit events.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels for comparisons; unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Severity is used for findings and alerts.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities; unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Classification is the sensitivity tier assigned to a data record.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
	ClassificationPersonal     Classification = "personal"
)

// Framework identifies a regulatory compliance framework.
type Framework string

const (
	FrameworkGDPR  Framework = "gdpr"
	FrameworkSOX   Framework = "sox"
	FrameworkPCI   Framework = "pci_dss"
	FrameworkFINRA Framework = "finra"
)

// Frameworks lists every framework the compliance monitor tracks.
func Frameworks() []Framework {
	return []Framework{FrameworkGDPR, FrameworkSOX, FrameworkPCI, FrameworkFINRA}
}

// ComplianceStatus classifies a framework score.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusConditional  ComplianceStatus = "conditional"
	StatusNonCompliant ComplianceStatus = "non_compliant"
)

// CheckOutcome is the result of one requirement check.
type CheckOutcome string

const (
	CheckPassed CheckOutcome = "passed"
	CheckFailed CheckOutcome = "failed"
	CheckError  CheckOutcome = "error"
)

// AlertStatus tracks alert lifecycle; alerts are resolved externally.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// JSONB stores free-form metadata as a PostgreSQL jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// SecurityEvent is the payload published on the event bus by the
// identity and data protection services and consumed by the audit
// engine. It carries no computed fields; risk is assigned at log time.
type SecurityEvent struct {
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  JSONB     `json:"metadata,omitempty"`
}

// ComplianceAnnotation is a per-framework structured note attached to an
// audit event at log time, supporting later aggregation. It is not a
// pass/fail verdict.
type ComplianceAnnotation struct {
	Framework Framework `json:"framework"`
	Note      string    `json:"note"`
}

// AuditEvent is an immutable logged security event with its computed
// risk level and compliance annotations. Purged only by retention.
type AuditEvent struct {
	ID          string                 `json:"id" db:"id"`
	Type        EventType              `json:"type" db:"event_type"`
	ActorID     string                 `json:"actor_id,omitempty" db:"actor_id"`
	Email       string                 `json:"email,omitempty" db:"email"`
	SessionID   string                 `json:"session_id,omitempty" db:"session_id"`
	IP          string                 `json:"ip,omitempty" db:"ip"`
	UserAgent   string                 `json:"user_agent,omitempty" db:"user_agent"`
	Resource    string                 `json:"resource,omitempty" db:"resource"`
	Timestamp   time.Time              `json:"timestamp" db:"occurred_at"`
	Risk        RiskLevel              `json:"risk" db:"risk"`
	Annotations []ComplianceAnnotation `json:"annotations,omitempty" db:"-"`
	Metadata    JSONB                  `json:"metadata,omitempty" db:"metadata"`
}

// Alert is raised by the audit engine or the compliance monitor.
type Alert struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	Severity   Severity    `json:"severity"`
	Title      string      `json:"title"`
	Payload    JSONB       `json:"payload,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Status     AlertStatus `json:"status"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}
