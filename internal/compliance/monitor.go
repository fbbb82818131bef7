package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/identity"
	"github.com/financeanalyst/securecore/internal/ids"
	"github.com/financeanalyst/securecore/internal/models"
	"github.com/financeanalyst/securecore/internal/protection"
)

// checkWindow is how far back PerformComplianceChecks looks at the
// audit log.
const checkWindow = 24 * time.Hour

// AuditSource is what the monitor reads from the audit engine.
type AuditSource interface {
	EventsSince(cutoff time.Time) []*models.AuditEvent
	Alerts(activeOnly bool) []models.Alert
	RaiseAlert(alertType string, severity models.Severity, title string, payload models.JSONB) models.Alert
}

// ProtectionSource is what the monitor reads from the protection
// engine.
type ProtectionSource interface {
	GetStats() protection.Stats
	PendingErasures() []protection.PendingErasure
}

// IdentitySource is what the monitor reads from the identity service.
type IdentitySource interface {
	GetStats(ctx context.Context) (*identity.Stats, error)
}

// Monitor runs framework rule checks on a schedule and aggregates the
// outcomes into scores, reports and risk assessments.
type Monitor struct {
	config     config.ComplianceConfig
	frameworks map[models.Framework][]Rule
	dates      []RegulatoryDate
	audit      AuditSource
	protection ProtectionSource
	identity   IdentitySource
	bus        *events.Bus
	logger     *slog.Logger
	now        func() time.Time

	mu              sync.RWMutex
	findings        []Finding
	reports         map[models.Framework][]*Report
	lastAssessment  *RiskAssessment
	raisedDeadlines map[string]bool
	lastCheckAt     time.Time
	lastReportAt    time.Time
}

type MonitorOption func(*Monitor)

func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithMonitorClock overrides the time source (useful for tests).
func WithMonitorClock(fn func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithFrameworks replaces the default rule registry.
func WithFrameworks(frameworks map[models.Framework][]Rule) MonitorOption {
	return func(m *Monitor) { m.frameworks = frameworks }
}

// WithRegulatoryDates replaces the default deadline calendar.
func WithRegulatoryDates(dates []RegulatoryDate) MonitorOption {
	return func(m *Monitor) { m.dates = dates }
}

func NewMonitor(cfg config.ComplianceConfig, auditSrc AuditSource, protectionSrc ProtectionSource, identitySrc IdentitySource, bus *events.Bus, opts ...MonitorOption) *Monitor {
	if cfg.RecentFindings == 0 {
		cfg.RecentFindings = 100
	}
	if cfg.AlertLookahead == 0 {
		cfg.AlertLookahead = 30 * 24 * time.Hour
	}
	if cfg.RiskThresholds.Medium == 0 {
		cfg.RiskThresholds = config.RiskThresholds{Medium: 25, High: 50, Critical: 75}
	}

	m := &Monitor{
		config:          cfg,
		frameworks:      defaultFrameworks(),
		dates:           defaultRegulatoryDates(),
		audit:           auditSrc,
		protection:      protectionSrc,
		identity:        identitySrc,
		bus:             bus,
		logger:          slog.Default(),
		now:             time.Now,
		reports:         make(map[models.Framework][]*Report),
		raisedDeadlines: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// buildContext gathers the state the requirement checks evaluate.
func (m *Monitor) buildContext(ctx context.Context) *CheckContext {
	now := m.now()
	cc := &CheckContext{Now: now}

	if m.audit != nil {
		cc.Events = m.audit.EventsSince(now.Add(-checkWindow))
		cc.ActiveAlerts = len(m.audit.Alerts(true))
	}
	if m.protection != nil {
		stats := m.protection.GetStats()
		cc.EncryptionOps = stats.EncryptionOps
		cc.DecryptionOps = stats.DecryptionOps
		cc.MaskedRecords = stats.MaskedRecords
		cc.AccessEvents = stats.AccessEvents
		cc.PendingErasures = stats.PendingErasures
		for _, erasure := range m.protection.PendingErasures() {
			if now.After(erasure.PurgeAt) {
				cc.OverdueErasures++
			}
		}
	}
	if m.identity != nil {
		if stats, err := m.identity.GetStats(ctx); err == nil {
			cc.MFAEnabledUsers = stats.MFAEnabledUsers
			cc.TotalUsers = stats.TotalUsers
		} else {
			m.logger.Warn("identity stats unavailable for compliance checks", "error", err)
		}
	}
	return cc
}

// PerformComplianceChecks runs every framework's rule checks, records
// the findings and raises a regulatory alert for any critical failure.
func (m *Monitor) PerformComplianceChecks(ctx context.Context) []Finding {
	cc := m.buildContext(ctx)
	now := m.now()
	var run []Finding

	for _, framework := range models.Frameworks() {
		for _, rule := range m.frameworks[framework] {
			for _, check := range rule.Checks {
				outcome, detail := check.Check(cc)
				finding := Finding{
					ID:        ids.New(),
					Framework: framework,
					Rule:      rule.Name,
					Check:     check.Name,
					Outcome:   outcome,
					Severity:  check.Severity,
					Detail:    detail,
					CheckedAt: now,
				}
				if outcome != models.CheckPassed {
					finding.Remediation = check.Remediation
				}
				run = append(run, finding)

				if outcome == models.CheckFailed && check.Severity == models.SeverityCritical && m.audit != nil {
					m.audit.RaiseAlert("regulatory", models.SeverityCritical,
						fmt.Sprintf("Critical %s compliance failure: %s", framework, check.Name),
						models.JSONB{
							"framework": string(framework),
							"rule":      rule.Name,
							"check":     check.Name,
							"detail":    detail,
						})
					if m.bus != nil {
						m.bus.Publish(models.SecurityEvent{
							Type:      models.EventRegulatoryAlert,
							Resource:  string(framework),
							Timestamp: now,
							Metadata:  models.JSONB{"check": check.Name},
						})
					}
				}
			}
		}
	}

	m.mu.Lock()
	m.findings = append(m.findings, run...)
	// Keep the window of findings bounded per framework.
	maxFindings := m.config.RecentFindings * len(m.frameworks) * 4
	if over := len(m.findings) - maxFindings; over > 0 {
		m.findings = append([]Finding(nil), m.findings[over:]...)
	}
	m.lastCheckAt = now
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(models.SecurityEvent{
			Type:      models.EventComplianceCheck,
			Timestamp: now,
			Metadata:  models.JSONB{"findings": len(run)},
		})
	}
	m.logger.Info("compliance checks completed", "findings", len(run))
	return run
}

// recentFindings returns the newest findings for one framework, capped
// at the configured sample size. Callers hold m.mu.
func (m *Monitor) recentFindingsLocked(framework models.Framework) []Finding {
	var out []Finding
	for i := len(m.findings) - 1; i >= 0 && len(out) < m.config.RecentFindings; i-- {
		if m.findings[i].Framework == framework {
			out = append(out, m.findings[i])
		}
	}
	return out
}

// GenerateComplianceReports scores each framework over its most recent
// findings. A framework with no findings scores 100.
func (m *Monitor) GenerateComplianceReports() []*Report {
	now := m.now()
	var generated []*Report

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, framework := range models.Frameworks() {
		sample := m.recentFindingsLocked(framework)
		report := &Report{
			Framework:   framework,
			SampleSize:  len(sample),
			GeneratedAt: now,
		}

		for _, finding := range sample {
			switch finding.Outcome {
			case models.CheckPassed:
				report.Passed++
			case models.CheckFailed:
				report.Failed++
			default:
				report.Errored++
			}
		}

		if report.SampleSize == 0 {
			report.Score = 100
		} else {
			report.Score = float64(report.Passed) / float64(report.SampleSize) * 100
		}

		switch {
		case report.Score >= 95:
			report.Status = models.StatusCompliant
		case report.Score >= 80:
			report.Status = models.StatusConditional
		default:
			report.Status = models.StatusNonCompliant
		}

		if report.Status != models.StatusCompliant {
			report.Recommendations = recommendationsFor(framework, sample)
		}

		m.reports[framework] = append(m.reports[framework], report)
		if len(m.reports[framework]) > 12 {
			m.reports[framework] = m.reports[framework][1:]
		}
		generated = append(generated, report)
	}

	m.lastReportAt = now
	m.logger.Info("compliance reports generated", "frameworks", len(generated))
	return generated
}

// recommendationsFor deduplicates the remediations of failing findings,
// most severe first.
func recommendationsFor(framework models.Framework, sample []Finding) []string {
	type rec struct {
		text string
		rank int
	}
	seen := make(map[string]bool)
	var recs []rec
	for _, finding := range sample {
		if finding.Outcome == models.CheckPassed || finding.Remediation == "" {
			continue
		}
		if seen[finding.Remediation] {
			continue
		}
		seen[finding.Remediation] = true
		recs = append(recs, rec{text: finding.Remediation, rank: finding.Severity.Rank()})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].rank > recs[j].rank })

	out := make([]string, 0, len(recs)+1)
	for _, r := range recs {
		out = append(out, r.text)
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("Review recent %s check errors", framework))
	}
	return out
}

// severityWeight converts a finding severity into a risk weight.
func severityWeight(severity models.Severity) float64 {
	switch severity {
	case models.SeverityCritical:
		return 10
	case models.SeverityHigh:
		return 5
	case models.SeverityMedium:
		return 3
	case models.SeverityLow:
		return 1
	default:
		return 0.5
	}
}

// PerformRiskAssessment converts recent failing checks into weighted
// per-framework risk scores and rolls them up worst-of.
func (m *Monitor) PerformRiskAssessment() *RiskAssessment {
	now := m.now()
	assessment := &RiskAssessment{GeneratedAt: now, Overall: models.RiskLow}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, framework := range models.Frameworks() {
		sample := m.recentFindingsLocked(framework)
		risk := FrameworkRisk{Framework: framework, Level: models.RiskLow}

		if len(sample) > 0 {
			var weighted float64
			for _, finding := range sample {
				if finding.Outcome == models.CheckPassed {
					continue
				}
				risk.Failures++
				weighted += severityWeight(finding.Severity)
			}
			// Normalize by the worst case for the sample size so the
			// score lands in [0,100].
			risk.Score = weighted / (float64(len(sample)) * severityWeight(models.SeverityCritical)) * 100
		}

		thresholds := m.config.RiskThresholds
		switch {
		case risk.Score >= thresholds.Critical:
			risk.Level = models.RiskCritical
		case risk.Score >= thresholds.High:
			risk.Level = models.RiskHigh
		case risk.Score >= thresholds.Medium:
			risk.Level = models.RiskMedium
		}

		assessment.Frameworks = append(assessment.Frameworks, risk)
		if risk.Level.Rank() > assessment.Overall.Rank() {
			assessment.Overall = risk.Level
		}
	}

	m.lastAssessment = assessment
	m.logger.Info("risk assessment completed", "overall", assessment.Overall)
	return assessment
}

// CheckRegulatoryAlerts raises a deadline reminder when a recurring
// regulatory date falls within the look-ahead window. Each occurrence
// alerts once.
func (m *Monitor) CheckRegulatoryAlerts() []models.Alert {
	now := m.now()
	var raised []models.Alert

	for _, date := range m.dates {
		next := time.Date(now.Year(), date.Month, date.Day, 0, 0, 0, 0, now.Location())
		if next.Before(now) {
			next = next.AddDate(1, 0, 0)
		}
		until := next.Sub(now)
		if until > m.config.AlertLookahead {
			continue
		}

		key := fmt.Sprintf("%s-%d", date.Name, next.Year())
		m.mu.Lock()
		already := m.raisedDeadlines[key]
		if !already {
			m.raisedDeadlines[key] = true
		}
		m.mu.Unlock()
		if already || m.audit == nil {
			continue
		}

		alert := m.audit.RaiseAlert("regulatory_deadline", models.SeverityMedium,
			fmt.Sprintf("Upcoming deadline: %s", date.Name), models.JSONB{
				"framework": string(date.Framework),
				"due":       next.Format("2006-01-02"),
				"days_left": int(until.Hours() / 24),
			})
		raised = append(raised, alert)

		if m.bus != nil {
			m.bus.Publish(models.SecurityEvent{
				Type:      models.EventRegulatoryAlert,
				Resource:  string(date.Framework),
				Timestamp: now,
				Metadata:  models.JSONB{"deadline": date.Name},
			})
		}
	}
	return raised
}

// GetComplianceMetrics returns the read-only aggregate consumed by
// presentation code.
func (m *Monitor) GetComplianceMetrics() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := &Metrics{
		Frameworks:     make(map[models.Framework]*Trend),
		OverallRisk:    models.RiskLow,
		RecentFindings: len(m.findings),
		LastCheckAt:    m.lastCheckAt,
		LastReportAt:   m.lastReportAt,
	}

	var total float64
	var count int
	for _, framework := range models.Frameworks() {
		history := m.reports[framework]
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		trend := &Trend{Score: latest.Score, Status: latest.Status, Direction: "stable"}
		if len(history) > 1 {
			previous := history[len(history)-2]
			switch {
			case latest.Score > previous.Score:
				trend.Direction = "improving"
			case latest.Score < previous.Score:
				trend.Direction = "declining"
			}
		}
		metrics.Frameworks[framework] = trend
		total += latest.Score
		count++
	}
	if count > 0 {
		metrics.OverallScore = total / float64(count)
	}

	if m.lastAssessment != nil {
		metrics.OverallRisk = m.lastAssessment.Overall
	}
	if m.audit != nil {
		metrics.ActiveAlerts = len(m.audit.Alerts(true))
	}
	return metrics
}

// Findings returns a copy of the retained findings, newest last.
func (m *Monitor) Findings() []Finding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Finding(nil), m.findings...)
}

// LatestReports returns the newest report per framework.
func (m *Monitor) LatestReports() []*Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Report
	for _, framework := range models.Frameworks() {
		if history := m.reports[framework]; len(history) > 0 {
			cp := *history[len(history)-1]
			out = append(out, &cp)
		}
	}
	return out
}

// LastAssessment returns the most recent risk assessment.
func (m *Monitor) LastAssessment() *RiskAssessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastAssessment == nil {
		return nil
	}
	cp := *m.lastAssessment
	return &cp
}
