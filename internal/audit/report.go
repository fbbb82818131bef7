package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// SecurityReport summarizes activity over a window.
type SecurityReport struct {
	Window           time.Duration  `json:"window"`
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalEvents      int            `json:"total_events"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	TopEventTypes    []EventCount   `json:"top_event_types"`
	UniqueActors     int            `json:"unique_actors"`
	UniqueOrigins    int            `json:"unique_origins"`
	FailedLogins     int            `json:"failed_logins"`
	Recommendations  []string       `json:"recommendations"`
}

type EventCount struct {
	Type  models.EventType `json:"type"`
	Count int              `json:"count"`
}

// GenerateSecurityReport summarizes events within the window and
// produces prioritized recommendations.
func (e *Engine) GenerateSecurityReport(window time.Duration) *SecurityReport {
	now := e.now()
	cutoff := now.Add(-window)

	report := &SecurityReport{
		Window:           window,
		GeneratedAt:      now,
		RiskDistribution: make(map[string]int),
	}

	typeCounts := make(map[models.EventType]int)
	actors := make(map[string]bool)
	origins := make(map[string]bool)
	criticalCount := 0

	e.mu.RLock()
	for _, entry := range e.log {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		report.TotalEvents++
		report.RiskDistribution[string(entry.Risk)]++
		typeCounts[entry.Type]++
		if entry.ActorID != "" {
			actors[entry.ActorID] = true
		}
		if entry.IP != "" {
			origins[entry.IP] = true
		}
		if entry.Risk == models.RiskCritical {
			criticalCount++
		}
		if entry.Type == models.EventLoginFailed {
			report.FailedLogins++
		}
	}
	e.mu.RUnlock()

	report.UniqueActors = len(actors)
	report.UniqueOrigins = len(origins)

	for eventType, count := range typeCounts {
		report.TopEventTypes = append(report.TopEventTypes, EventCount{Type: eventType, Count: count})
	}
	sort.Slice(report.TopEventTypes, func(i, j int) bool {
		if report.TopEventTypes[i].Count != report.TopEventTypes[j].Count {
			return report.TopEventTypes[i].Count > report.TopEventTypes[j].Count
		}
		return report.TopEventTypes[i].Type < report.TopEventTypes[j].Type
	})
	if len(report.TopEventTypes) > 10 {
		report.TopEventTypes = report.TopEventTypes[:10]
	}

	// Recommendations, highest priority first.
	if criticalCount > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Address %d critical security events", criticalCount))
	}
	if report.TotalEvents > 0 && report.FailedLogins*5 > report.TotalEvents {
		report.Recommendations = append(report.Recommendations,
			"High failed-login volume detected, consider enforcing MFA")
	}
	if report.UniqueOrigins > report.UniqueActors*3 && report.UniqueActors > 0 {
		report.Recommendations = append(report.Recommendations,
			"Many origins per actor, review session hijacking controls")
	}
	if len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations,
			"No elevated activity, maintain current monitoring")
	}

	if e.bus != nil {
		e.bus.Publish(models.SecurityEvent{
			Type:      models.EventAuditReport,
			Timestamp: now,
			Metadata: models.JSONB{
				"window":       window.String(),
				"total_events": report.TotalEvents,
			},
		})
	}
	return report
}
