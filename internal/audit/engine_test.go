package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testAuditConfig() config.AuditConfig {
	return config.AuditConfig{
		MaxEntries:            50,
		RetentionDays:         365,
		SnapshotEntries:       10,
		FailedLoginThreshold:  5,
		LoginBurstThreshold:   10,
		AccessVolumeThreshold: 20,
		BaselineWindowDays:    7,
		SearchResultLimit:     25,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewEngine(testAuditConfig(), nil, WithEngineClock(clock.Now)), clock
}

func TestRiskAssignmentDeterministic(t *testing.T) {
	tests := []struct {
		eventType models.EventType
		metadata  models.JSONB
		want      models.RiskLevel
	}{
		{models.EventAccountLocked, nil, models.RiskCritical},
		{models.EventSecurityViolation, nil, models.RiskCritical},
		{models.EventBruteForceAttempt, nil, models.RiskCritical},
		{models.EventLoginFailed, nil, models.RiskHigh},
		{models.EventLoginFailed, models.JSONB{"attempts": 4}, models.RiskHigh},
		{models.EventAccessDenied, nil, models.RiskHigh},
		{models.EventSuspiciousIP, nil, models.RiskHigh},
		{models.EventSensitiveDataAccess, nil, models.RiskMedium},
		{models.EventUserLogin, nil, models.RiskLow},
		{models.EventUserLogout, nil, models.RiskLow},
		{models.EventDataAccessed, nil, models.RiskLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			// Same input, same output, every time.
			for i := 0; i < 3; i++ {
				if got := riskFor(tt.eventType, tt.metadata); got != tt.want {
					t.Fatalf("riskFor(%s) = %s, want %s", tt.eventType, got, tt.want)
				}
			}
		})
	}
}

func TestLogSecurityEventAnnotations(t *testing.T) {
	e, _ := newTestEngine(t)
	entry := e.LogSecurityEvent(context.Background(), models.SecurityEvent{
		Type:    models.EventSensitiveDataAccess,
		ActorID: "user-1",
	})

	if len(entry.Annotations) != len(models.Frameworks()) {
		t.Fatalf("annotations = %d, want one per framework", len(entry.Annotations))
	}
	seen := make(map[models.Framework]bool)
	for _, a := range entry.Annotations {
		if a.Note == "" {
			t.Errorf("empty note for %s", a.Framework)
		}
		seen[a.Framework] = true
	}
	for _, framework := range models.Frameworks() {
		if !seen[framework] {
			t.Errorf("missing annotation for %s", framework)
		}
	}
}

func TestLogBoundedFIFO(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		e.LogSecurityEvent(ctx, models.SecurityEvent{
			Type:     models.EventUserLogin,
			ActorID:  fmt.Sprintf("user-%d", i),
			Metadata: models.JSONB{"seq": i},
		})
		clock.Advance(time.Second)
	}

	events := e.Events()
	if len(events) != 50 {
		t.Fatalf("log length = %d, want max entries 50", len(events))
	}
	// Oldest entries were dropped first.
	if events[0].ActorID != "user-10" {
		t.Errorf("oldest surviving actor = %s, want user-10", events[0].ActorID)
	}
	if events[len(events)-1].ActorID != "user-59" {
		t.Errorf("newest actor = %s, want user-59", events[len(events)-1].ActorID)
	}
}

func TestCriticalEventRaisesImmediateAlert(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	var sunk []models.Alert
	e := NewEngine(testAuditConfig(), nil,
		WithEngineClock(clock.Now),
		WithAlertSink(func(a models.Alert) { sunk = append(sunk, a) }))

	e.LogSecurityEvent(context.Background(), models.SecurityEvent{
		Type:    models.EventSecurityViolation,
		ActorID: "user-1",
	})

	alerts := e.Alerts(true)
	if len(alerts) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", alerts[0].Severity)
	}
	if len(sunk) != 1 {
		t.Errorf("sink received %d alerts, want 1", len(sunk))
	}
}

func TestBruteForceAlert(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e.LogSecurityEvent(ctx, models.SecurityEvent{
			Type:    models.EventLoginFailed,
			ActorID: "user-1",
			IP:      "10.0.0.1",
		})
		clock.Advance(time.Minute)
	}

	var found bool
	for _, alert := range e.Alerts(true) {
		if alert.Type == "brute_force" {
			found = true
		}
	}
	if !found {
		t.Error("no brute_force alert after threshold failed logins")
	}
}

func TestBruteForceWindowExcludesOldFailures(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventLoginFailed, ActorID: "user-1"})
	}
	clock.Advance(2 * time.Hour)
	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventLoginFailed, ActorID: "user-1"})

	for _, alert := range e.Alerts(true) {
		if alert.Type == "brute_force" {
			t.Fatal("brute_force alert raised across expired window")
		}
	}
}

func TestTrimRetention(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventUserLogin, ActorID: "old"})
	clock.Advance(366 * 24 * time.Hour)
	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventUserLogin, ActorID: "new"})

	if dropped := e.TrimRetention(); dropped != 1 {
		t.Fatalf("TrimRetention() = %d, want 1", dropped)
	}
	events := e.Events()
	if len(events) != 1 || events[0].ActorID != "new" {
		t.Errorf("surviving events = %d, want only the recent one", len(events))
	}
}

func TestResolveAlert(t *testing.T) {
	e, _ := newTestEngine(t)
	alert := e.RaiseAlert("test", models.SeverityHigh, "t", nil)

	if !e.ResolveAlert(alert.ID) {
		t.Fatal("ResolveAlert() = false for active alert")
	}
	if e.ResolveAlert(alert.ID) {
		t.Error("ResolveAlert() = true for already-resolved alert")
	}
	if got := e.Alerts(true); len(got) != 0 {
		t.Errorf("active alerts = %d, want 0", len(got))
	}
}

func TestSearchLogs(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventUserLogin, ActorID: "alice", IP: "10.0.0.1"})
	clock.Advance(time.Minute)
	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventLoginFailed, ActorID: "bob", IP: "10.0.0.2"})
	clock.Advance(time.Minute)
	e.LogSecurityEvent(ctx, models.SecurityEvent{
		Type: models.EventDataAccessed, ActorID: "alice", IP: "10.0.0.1",
		Resource: "portfolio-42",
	})

	t.Run("by actor", func(t *testing.T) {
		got := e.SearchLogs(SearchQuery{ActorID: "alice"})
		if len(got) != 2 {
			t.Fatalf("results = %d, want 2", len(got))
		}
		// Newest first.
		if got[0].Type != models.EventDataAccessed {
			t.Errorf("first result = %s, want data_accessed", got[0].Type)
		}
	})

	t.Run("by type and risk", func(t *testing.T) {
		got := e.SearchLogs(SearchQuery{Type: models.EventLoginFailed, Risk: models.RiskHigh})
		if len(got) != 1 || got[0].ActorID != "bob" {
			t.Fatalf("results = %+v, want bob's failed login", got)
		}
	})

	t.Run("by origin", func(t *testing.T) {
		if got := e.SearchLogs(SearchQuery{Origin: "10.0.0.2"}); len(got) != 1 {
			t.Fatalf("results = %d, want 1", len(got))
		}
	})

	t.Run("free text", func(t *testing.T) {
		got := e.SearchLogs(SearchQuery{Text: "portfolio-42"})
		if len(got) != 1 || got[0].Resource != "portfolio-42" {
			t.Fatalf("results = %d, want the portfolio access", len(got))
		}
	})

	t.Run("time range", func(t *testing.T) {
		from := clock.Now().Add(-90 * time.Second)
		if got := e.SearchLogs(SearchQuery{From: from}); len(got) != 2 {
			t.Fatalf("results = %d, want 2 within range", len(got))
		}
	})

	t.Run("limit", func(t *testing.T) {
		if got := e.SearchLogs(SearchQuery{Limit: 1}); len(got) != 1 {
			t.Fatalf("results = %d, want limit applied", len(got))
		}
	})
}

func TestGenerateSecurityReport(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventSecurityViolation, ActorID: "mallory"})
	for i := 0; i < 8; i++ {
		e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventLoginFailed, ActorID: "mallory", IP: "10.0.0.9"})
	}
	e.LogSecurityEvent(ctx, models.SecurityEvent{Type: models.EventUserLogin, ActorID: "alice", IP: "10.0.0.1"})

	report := e.GenerateSecurityReport(24 * time.Hour)
	if report.TotalEvents != 10 {
		t.Errorf("TotalEvents = %d, want 10", report.TotalEvents)
	}
	if report.UniqueActors != 2 {
		t.Errorf("UniqueActors = %d, want 2", report.UniqueActors)
	}
	if report.RiskDistribution[string(models.RiskCritical)] < 1 {
		t.Error("critical events missing from risk distribution")
	}
	if len(report.TopEventTypes) == 0 || report.TopEventTypes[0].Type != models.EventLoginFailed {
		t.Errorf("top event type = %+v, want login_failed first", report.TopEventTypes)
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("no recommendations")
	}
	// Critical events come first in priority order.
	if want := "Address"; len(report.Recommendations[0]) < len(want) || report.Recommendations[0][:len(want)] != want {
		t.Errorf("first recommendation = %q, want critical-events advice first", report.Recommendations[0])
	}
}

func TestRunConsumesBus(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(testAuditConfig(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// Give the subscriber a moment to register before publishing.
	waitFor(t, func() bool { return bus.Subscribers() == 1 })
	bus.Publish(models.SecurityEvent{Type: models.EventUserLogin, ActorID: "alice"})
	waitFor(t, func() bool { return e.GetStats().TotalLogs == 1 })

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
