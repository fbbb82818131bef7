package protection

import "time"

// CheckRetention evaluates every configured retention schedule and
// purges erased subjects whose grace period has lapsed. Record
// disposal under a schedule is the owning store's job; the engine only
// computes cutoffs and reports.
func (e *Engine) CheckRetention() *RetentionReport {
	now := e.now()
	report := &RetentionReport{CheckedAt: now}

	for _, schedule := range e.config.Retention {
		report.Schedules = append(report.Schedules, RetentionStatus{
			Schedule: schedule.Name,
			Cutoff:   now.Add(-time.Duration(schedule.RetentionDays) * 24 * time.Hour),
			Disposal: schedule.Disposal,
		})
	}

	e.mu.Lock()
	for subjectID, erasure := range e.erasures {
		if now.Before(erasure.PurgeAt) {
			continue
		}
		delete(e.erasures, subjectID)
		report.Purged = append(report.Purged, subjectID)
	}
	e.mu.Unlock()

	if len(report.Purged) > 0 {
		e.logger.Info("erasure grace period lapsed", "purged", len(report.Purged))
	}
	return report
}

// PendingErasures returns the erasures awaiting permanent purge.
func (e *Engine) PendingErasures() []PendingErasure {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]PendingErasure, 0, len(e.erasures))
	for _, erasure := range e.erasures {
		out = append(out, *erasure)
	}
	return out
}
