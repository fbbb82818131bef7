package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/ids"
	"github.com/financeanalyst/securecore/internal/models"
)

// SnapshotStore persists the tail of the audit log so restarts keep
// recent history. Implementations may be absent entirely.
type SnapshotStore interface {
	SaveEvents(ctx context.Context, events []*models.AuditEvent) error
	LoadRecent(ctx context.Context, limit int) ([]*models.AuditEvent, error)
}

// AlertSink receives alerts raised by the engine.
type AlertSink func(alert models.Alert)

// Engine is the audit and risk service: it logs security events with a
// computed risk level, keeps the log bounded, raises alerts and answers
// search, report and pattern queries.
type Engine struct {
	config   config.AuditConfig
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time
	snapshot SnapshotStore
	sinks    []AlertSink

	mu        sync.RWMutex
	log       []*models.AuditEvent
	alerts    map[uuid.UUID]*models.Alert
	baselines *Baselines
	startedAt time.Time
}

type EngineOption func(*Engine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithEngineClock overrides the time source (useful for tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithSnapshotStore enables write-through persistence of the log tail.
func WithSnapshotStore(store SnapshotStore) EngineOption {
	return func(e *Engine) { e.snapshot = store }
}

// WithAlertSink registers a destination for raised alerts.
func WithAlertSink(sink AlertSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sinks = append(e.sinks, sink)
		}
	}
}

func NewEngine(cfg config.AuditConfig, bus *events.Bus, opts ...EngineOption) *Engine {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 365
	}
	if cfg.SnapshotEntries == 0 {
		cfg.SnapshotEntries = 1000
	}
	if cfg.FailedLoginThreshold == 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.LoginBurstThreshold == 0 {
		cfg.LoginBurstThreshold = 20
	}
	if cfg.AccessVolumeThreshold == 0 {
		cfg.AccessVolumeThreshold = 500
	}
	if cfg.BaselineWindowDays == 0 {
		cfg.BaselineWindowDays = 7
	}
	if cfg.SearchResultLimit == 0 {
		cfg.SearchResultLimit = 100
	}

	e := &Engine{
		config: cfg,
		bus:    bus,
		logger: slog.Default(),
		now:    time.Now,
		alerts: make(map[uuid.UUID]*models.Alert),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.startedAt = e.now()
	return e
}

// Restore reloads the snapshot tail into the in-memory log. Called once
// at startup, before Run.
func (e *Engine) Restore(ctx context.Context) error {
	if e.snapshot == nil {
		return nil
	}
	restored, err := e.snapshot.LoadRecent(ctx, e.config.SnapshotEntries)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.log = append(restored, e.log...)
	e.trimLocked()
	e.mu.Unlock()
	if len(restored) > 0 {
		e.logger.Info("audit log restored from snapshot", "events", len(restored))
	}
	return nil
}

// Run consumes the event bus until the context ends.
func (e *Engine) Run(ctx context.Context) {
	if e.bus == nil {
		return
	}
	ch := e.bus.Subscribe(ctx)
	for evt := range ch {
		e.LogSecurityEvent(ctx, evt)
	}
}

// LogSecurityEvent assigns risk and compliance annotations, appends to
// the bounded log and runs the immediate alert checks.
func (e *Engine) LogSecurityEvent(ctx context.Context, evt models.SecurityEvent) *models.AuditEvent {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now()
	}

	entry := &models.AuditEvent{
		ID:          ids.New(),
		Type:        evt.Type,
		ActorID:     evt.ActorID,
		Email:       evt.Email,
		SessionID:   evt.SessionID,
		IP:          evt.IP,
		UserAgent:   evt.UserAgent,
		Resource:    evt.Resource,
		Timestamp:   evt.Timestamp,
		Risk:        riskFor(evt.Type, evt.Metadata),
		Annotations: annotationsFor(evt.Type),
		Metadata:    evt.Metadata,
	}

	e.mu.Lock()
	e.log = append(e.log, entry)
	e.trimLocked()
	e.mu.Unlock()

	e.checkImmediateAlerts(entry)

	if e.snapshot != nil {
		if err := e.snapshot.SaveEvents(ctx, []*models.AuditEvent{entry}); err != nil {
			e.logger.Warn("audit snapshot write failed", "error", err)
		}
	}
	return entry
}

// trimLocked enforces the FIFO bound; callers hold e.mu.
func (e *Engine) trimLocked() {
	if over := len(e.log) - e.config.MaxEntries; over > 0 {
		e.log = append([]*models.AuditEvent(nil), e.log[over:]...)
	}
}

// TrimRetention drops events older than the retention window. Run on a
// schedule.
func (e *Engine) TrimRetention() int {
	cutoff := e.now().Add(-time.Duration(e.config.RetentionDays) * 24 * time.Hour)
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.log[:0]
	dropped := 0
	for _, entry := range e.log {
		if entry.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, entry)
	}
	e.log = kept
	if dropped > 0 {
		e.logger.Info("audit retention trim", "dropped", dropped)
	}
	return dropped
}

// checkImmediateAlerts raises alerts that must not wait for the pattern
// scan: any critical event, and a failed-login burst for one user
// within the last hour.
func (e *Engine) checkImmediateAlerts(entry *models.AuditEvent) {
	if entry.Risk == models.RiskCritical {
		e.raiseAlert("critical_event", models.SeverityCritical,
			"Critical security event: "+string(entry.Type), models.JSONB{
				"event_id":   entry.ID,
				"event_type": string(entry.Type),
				"actor_id":   entry.ActorID,
				"ip":         entry.IP,
			})
	}

	if entry.Type != models.EventLoginFailed || entry.ActorID == "" {
		return
	}
	cutoff := entry.Timestamp.Add(-time.Hour)
	count := 0
	e.mu.RLock()
	for _, logged := range e.log {
		if logged.Type == models.EventLoginFailed && logged.ActorID == entry.ActorID &&
			!logged.Timestamp.Before(cutoff) {
			count++
		}
	}
	e.mu.RUnlock()

	if count >= e.config.FailedLoginThreshold {
		e.raiseAlert("brute_force", models.SeverityCritical,
			"Possible brute-force attack", models.JSONB{
				"actor_id":      entry.ActorID,
				"email":         entry.Email,
				"failed_logins": count,
				"window":        time.Hour.String(),
			})
		if e.bus != nil {
			e.bus.Publish(models.SecurityEvent{
				Type:      models.EventBruteForceAttempt,
				ActorID:   entry.ActorID,
				Email:     entry.Email,
				IP:        entry.IP,
				Timestamp: e.now(),
				Metadata:  models.JSONB{"failed_logins": count},
			})
		}
	}
}

// RaiseAlert records an externally produced alert (the compliance
// monitor uses this) and fans it out to the sinks.
func (e *Engine) RaiseAlert(alertType string, severity models.Severity, title string, payload models.JSONB) models.Alert {
	return e.raiseAlert(alertType, severity, title, payload)
}

func (e *Engine) raiseAlert(alertType string, severity models.Severity, title string, payload models.JSONB) models.Alert {
	alert := models.Alert{
		ID:        uuid.New(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Payload:   payload,
		CreatedAt: e.now(),
		Status:    models.AlertActive,
	}

	e.mu.Lock()
	e.alerts[alert.ID] = &alert
	e.mu.Unlock()

	e.logger.Warn("alert raised", "type", alertType, "severity", severity, "title", title)
	for _, sink := range e.sinks {
		sink(alert)
	}
	return alert
}

// ResolveAlert marks an alert resolved. Resolution always comes from
// outside the engine.
func (e *Engine) ResolveAlert(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[id]
	if !ok || alert.Status == models.AlertResolved {
		return false
	}
	now := e.now()
	alert.Status = models.AlertResolved
	alert.ResolvedAt = &now
	return true
}

// Alerts returns a copy of all alerts, optionally only active ones.
func (e *Engine) Alerts(activeOnly bool) []models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		if activeOnly && alert.Status != models.AlertActive {
			continue
		}
		out = append(out, *alert)
	}
	return out
}

// Stats is the read-only aggregate for presentation code.
type Stats struct {
	TotalLogs        int            `json:"total_logs"`
	CriticalEvents   int            `json:"critical_events"`
	HighRiskEvents   int            `json:"high_risk_events"`
	ActiveAlerts     int            `json:"active_alerts"`
	TotalAlerts      int            `json:"total_alerts"`
	EventsPerDay     float64        `json:"average_events_per_day"`
	RiskDistribution map[string]int `json:"risk_distribution"`
}

// GetStats summarizes the current log and alert state.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		TotalLogs:        len(e.log),
		TotalAlerts:      len(e.alerts),
		RiskDistribution: make(map[string]int),
	}
	for _, entry := range e.log {
		stats.RiskDistribution[string(entry.Risk)]++
		switch entry.Risk {
		case models.RiskCritical:
			stats.CriticalEvents++
		case models.RiskHigh:
			stats.HighRiskEvents++
		}
	}
	for _, alert := range e.alerts {
		if alert.Status == models.AlertActive {
			stats.ActiveAlerts++
		}
	}

	days := e.now().Sub(e.startedAt).Hours() / 24
	if len(e.log) > 0 {
		if oldest := e.log[0].Timestamp; e.startedAt.After(oldest) {
			days = e.now().Sub(oldest).Hours() / 24
		}
	}
	if days < 1 {
		days = 1
	}
	stats.EventsPerDay = float64(len(e.log)) / days
	return stats
}

// Events returns a copy of the audit log, oldest first. The compliance
// monitor reads it through this accessor.
func (e *Engine) Events() []*models.AuditEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.AuditEvent, len(e.log))
	for i, entry := range e.log {
		cp := *entry
		out[i] = &cp
	}
	return out
}

// EventsSince returns events at or after the cutoff, oldest first.
func (e *Engine) EventsSince(cutoff time.Time) []*models.AuditEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*models.AuditEvent
	for _, entry := range e.log {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out
}
