package protection

import (
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// accessWindow is the sliding window over which suspicious-activity
// checks run.
const accessWindow = time.Hour

// RecordAccess logs one read or write of a protected resource and runs
// the sliding-window suspicion checks for the actor.
func (e *Engine) RecordAccess(actor, resource, action, origin string, sensitive bool, metadata models.JSONB) {
	now := e.now()

	e.mu.Lock()
	e.accessLog = append(e.accessLog, AccessRecord{
		Actor:     actor,
		Resource:  resource,
		Action:    action,
		Origin:    origin,
		Sensitive: sensitive,
		Timestamp: now,
		Metadata:  metadata,
	})
	e.trimAccessLogLocked(now)

	sensitiveCount := 0
	origins := make(map[string]bool)
	cutoff := now.Add(-accessWindow)
	for _, rec := range e.accessLog {
		if rec.Actor != actor || rec.Timestamp.Before(cutoff) {
			continue
		}
		if rec.Sensitive {
			sensitiveCount++
		}
		if rec.Origin != "" {
			origins[rec.Origin] = true
		}
	}

	var suspicious models.JSONB
	if sensitiveCount >= e.config.SensitiveAccessThreshold {
		suspicious = models.JSONB{
			"reason":          "sensitive_access_volume",
			"sensitive_count": sensitiveCount,
			"window":          accessWindow.String(),
		}
	} else if len(origins) > e.config.DistinctOriginThreshold {
		suspicious = models.JSONB{
			"reason":         "distinct_origins",
			"distinct_count": len(origins),
			"window":         accessWindow.String(),
		}
	}
	if suspicious != nil {
		e.stats.SuspiciousSignals++
	}
	e.mu.Unlock()

	eventType := models.EventDataAccessed
	if sensitive {
		eventType = models.EventSensitiveDataAccess
	}
	if e.bus != nil {
		e.bus.Publish(models.SecurityEvent{
			Type:      eventType,
			ActorID:   actor,
			IP:        origin,
			Resource:  resource,
			Timestamp: now,
			Metadata:  metadata,
		})
		if suspicious != nil {
			e.bus.Publish(models.SecurityEvent{
				Type:      models.EventSecurityViolation,
				ActorID:   actor,
				IP:        origin,
				Resource:  resource,
				Timestamp: now,
				Metadata:  suspicious,
			})
			e.logger.Warn("suspicious data access", "actor", actor, "reason", suspicious["reason"])
		}
	}
}

// AccessHistory returns the retained access records for an actor.
func (e *Engine) AccessHistory(actor string) []AccessRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []AccessRecord
	for _, rec := range e.accessLog {
		if rec.Actor == actor {
			out = append(out, rec)
		}
	}
	return out
}

// trimAccessLogLocked drops records older than a day; the suspicion
// window only needs an hour, the extra headroom serves the right of
// access history export.
func (e *Engine) trimAccessLogLocked(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	idx := 0
	for idx < len(e.accessLog) && e.accessLog[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		e.accessLog = append([]AccessRecord(nil), e.accessLog[idx:]...)
	}
}
