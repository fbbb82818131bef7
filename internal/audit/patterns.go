package audit

import (
	"math"
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// Baselines are rolling averages over a trailing window, used to
// contextualize anomalies rather than as hard thresholds.
type Baselines struct {
	WindowDays         int       `json:"window_days"`
	AvgDailyLogins     float64   `json:"avg_daily_logins"`
	StdDevLogins       float64   `json:"stddev_logins"`
	AvgFailedLogins    float64   `json:"avg_failed_logins"`
	StdDevFailedLogins float64   `json:"stddev_failed_logins"`
	AvgAccessVolume    float64   `json:"avg_access_volume"`
	StdDevAccessVolume float64   `json:"stddev_access_volume"`
	AvgSessionDuration float64   `json:"avg_session_duration_minutes"`
	ComputedAt         time.Time `json:"computed_at"`
}

// PatternFinding is one detected burst or volume anomaly.
type PatternFinding struct {
	Kind      string       `json:"kind"`
	Subject   string       `json:"subject"`
	Count     int          `json:"count"`
	Threshold int          `json:"threshold"`
	Deviation float64      `json:"deviation,omitempty"`
	Details   models.JSONB `json:"details,omitempty"`
}

// PatternReport is the output of one AnalyzePatterns run.
type PatternReport struct {
	AnalyzedAt time.Time        `json:"analyzed_at"`
	Findings   []PatternFinding `json:"findings"`
	Baselines  *Baselines       `json:"baselines,omitempty"`
}

// AnalyzePatterns groups recent events by origin and actor to find
// bursts, recomputes the rolling baselines and raises alerts for
// findings above hard thresholds. Intended to run every few minutes.
func (e *Engine) AnalyzePatterns() *PatternReport {
	now := e.now()
	report := &PatternReport{AnalyzedAt: now}

	hourCutoff := now.Add(-time.Hour)
	dayCutoff := now.Add(-24 * time.Hour)

	loginsByOrigin := make(map[string]int)
	accessByActor := make(map[string]int)

	e.mu.RLock()
	for _, entry := range e.log {
		switch entry.Type {
		case models.EventUserLogin, models.EventLoginFailed:
			if entry.IP != "" && !entry.Timestamp.Before(hourCutoff) {
				loginsByOrigin[entry.IP]++
			}
		case models.EventDataAccessed, models.EventSensitiveDataAccess:
			if entry.ActorID != "" && !entry.Timestamp.Before(dayCutoff) {
				accessByActor[entry.ActorID]++
			}
		}
	}
	e.mu.RUnlock()

	for origin, count := range loginsByOrigin {
		if count <= e.config.LoginBurstThreshold {
			continue
		}
		report.Findings = append(report.Findings, PatternFinding{
			Kind:      "login_burst",
			Subject:   origin,
			Count:     count,
			Threshold: e.config.LoginBurstThreshold,
			Details:   models.JSONB{"window": time.Hour.String()},
		})
		e.raiseAlert("login_burst", models.SeverityHigh,
			"Login burst from single origin", models.JSONB{
				"origin": origin,
				"logins": count,
			})
		if e.bus != nil {
			e.bus.Publish(models.SecurityEvent{
				Type:      models.EventSuspiciousIP,
				IP:        origin,
				Timestamp: now,
				Metadata:  models.JSONB{"logins": count},
			})
		}
	}

	for actor, count := range accessByActor {
		if count <= e.config.AccessVolumeThreshold {
			continue
		}
		report.Findings = append(report.Findings, PatternFinding{
			Kind:      "access_volume",
			Subject:   actor,
			Count:     count,
			Threshold: e.config.AccessVolumeThreshold,
			Details:   models.JSONB{"window": (24 * time.Hour).String()},
		})
		e.raiseAlert("access_volume", models.SeverityHigh,
			"Unusual data access volume for one user", models.JSONB{
				"actor_id": actor,
				"accesses": count,
			})
	}

	baselines := e.computeBaselines(now)
	report.Baselines = baselines

	// Annotate findings with how far they sit from baseline. Baseline
	// comparison stays informational for these lower-priority signals.
	for i := range report.Findings {
		f := &report.Findings[i]
		switch f.Kind {
		case "login_burst":
			if baselines.StdDevLogins > 0 {
				f.Deviation = (float64(f.Count) - baselines.AvgDailyLogins) / baselines.StdDevLogins
			}
		case "access_volume":
			if baselines.StdDevAccessVolume > 0 {
				f.Deviation = (float64(f.Count) - baselines.AvgAccessVolume) / baselines.StdDevAccessVolume
			}
		}
	}

	e.mu.Lock()
	e.baselines = baselines
	e.mu.Unlock()
	return report
}

// CurrentBaselines returns the last computed rolling baselines.
func (e *Engine) CurrentBaselines() *Baselines {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baselines == nil {
		return nil
	}
	cp := *e.baselines
	return &cp
}

// computeBaselines builds daily averages over the trailing window.
func (e *Engine) computeBaselines(now time.Time) *Baselines {
	cutoff := now.Add(-time.Duration(e.config.BaselineWindowDays) * 24 * time.Hour)

	type daily struct {
		logins  int
		failed  int
		access  int
	}
	days := make(map[string]*daily)
	sessionStart := make(map[string]time.Time)
	var sessionMinutes []float64

	e.mu.RLock()
	for _, entry := range e.log {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		day := entry.Timestamp.Format("2006-01-02")
		d := days[day]
		if d == nil {
			d = &daily{}
			days[day] = d
		}
		switch entry.Type {
		case models.EventUserLogin:
			d.logins++
			if entry.SessionID != "" {
				sessionStart[entry.SessionID] = entry.Timestamp
			}
		case models.EventLoginFailed:
			d.failed++
		case models.EventDataAccessed, models.EventSensitiveDataAccess:
			d.access++
		case models.EventUserLogout:
			if start, ok := sessionStart[entry.SessionID]; ok {
				sessionMinutes = append(sessionMinutes, entry.Timestamp.Sub(start).Minutes())
			}
		}
	}
	e.mu.RUnlock()

	var logins, failed, access []float64
	for _, d := range days {
		logins = append(logins, float64(d.logins))
		failed = append(failed, float64(d.failed))
		access = append(access, float64(d.access))
	}

	return &Baselines{
		WindowDays:         e.config.BaselineWindowDays,
		AvgDailyLogins:     mean(logins),
		StdDevLogins:       stdDev(logins),
		AvgFailedLogins:    mean(failed),
		StdDevFailedLogins: stdDev(failed),
		AvgAccessVolume:    mean(access),
		StdDevAccessVolume: stdDev(access),
		AvgSessionDuration: mean(sessionMinutes),
		ComputedAt:         now,
	}
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func stdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	m := mean(data)
	var sum float64
	for _, v := range data {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(data)-1))
}
