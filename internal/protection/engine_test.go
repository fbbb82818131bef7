package protection

import (
	"errors"
	"testing"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
)

func testProtectionConfig() config.ProtectionConfig {
	return config.ProtectionConfig{
		MasterKey:                "test-master-secret",
		ErasureGraceDays:         30,
		SensitiveAccessThreshold: 5,
		DistinctOriginThreshold:  2,
		Retention: []config.RetentionSchedule{
			{Name: "user data", RetentionDays: 730, Disposal: "secure_delete"},
			{Name: "audit logs", RetentionDays: 365, Disposal: "archive"},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewEngine(testProtectionConfig(), nil, WithEngineClock(clock.Now)), clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRightOfErasureRemovesSubjectImmediately(t *testing.T) {
	e, _ := newTestEngine(t)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com", "name": "A"})

	erasure, err := e.RightOfErasure("user-1")
	if err != nil {
		t.Fatalf("RightOfErasure() error = %v", err)
	}
	wantPurge := erasure.RequestedAt.Add(30 * 24 * time.Hour)
	if !erasure.PurgeAt.Equal(wantPurge) {
		t.Errorf("PurgeAt = %v, want %v", erasure.PurgeAt, wantPurge)
	}

	export := e.RightOfAccess("user-1")
	if len(export.PersonalData) != 0 {
		t.Errorf("PersonalData after erasure = %v, want empty", export.PersonalData)
	}

	if _, err := e.RightOfErasure("user-1"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("second erasure error = %v, want ErrSubjectNotFound", err)
	}
}

func TestErasurePurgeAfterGracePeriod(t *testing.T) {
	e, clock := newTestEngine(t)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com"})
	if _, err := e.RightOfErasure("user-1"); err != nil {
		t.Fatalf("RightOfErasure() error = %v", err)
	}

	report := e.CheckRetention()
	if len(report.Purged) != 0 {
		t.Errorf("Purged before grace period = %v, want none", report.Purged)
	}

	clock.Advance(31 * 24 * time.Hour)
	report = e.CheckRetention()
	if len(report.Purged) != 1 || report.Purged[0] != "user-1" {
		t.Errorf("Purged = %v, want [user-1]", report.Purged)
	}
	if len(e.PendingErasures()) != 0 {
		t.Error("pending erasures remain after purge")
	}
}

func TestRightOfRectification(t *testing.T) {
	e, _ := newTestEngine(t)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com", "city": "Austin"})

	if err := e.RightOfRectification("nobody", map[string]any{"city": "Dallas"}); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("unknown subject error = %v, want ErrSubjectNotFound", err)
	}
	if err := e.RightOfRectification("user-1", map[string]any{"city": "Dallas"}); err != nil {
		t.Fatalf("RightOfRectification() error = %v", err)
	}

	export := e.RightOfAccess("user-1")
	if export.PersonalData["city"] != "Dallas" {
		t.Errorf("city = %v, want Dallas", export.PersonalData["city"])
	}
}

func TestRightOfRestrictionBlocksProcessing(t *testing.T) {
	e, _ := newTestEngine(t)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com", "salary": 90000})

	if err := e.RightOfRestriction("user-1", []string{"salary"}); err != nil {
		t.Fatalf("RightOfRestriction() error = %v", err)
	}
	if err := e.RightOfRectification("user-1", map[string]any{"salary": 1}); !errors.Is(err, ErrFieldRestricted) {
		t.Errorf("rectification of restricted field error = %v, want ErrFieldRestricted", err)
	}

	bundle, err := e.RightOfPortability("user-1")
	if err != nil {
		t.Fatalf("RightOfPortability() error = %v", err)
	}
	if _, ok := bundle.Data["salary"]; ok {
		t.Error("restricted field exported in portability bundle")
	}
	if bundle.Data["email"] != "a@b.com" {
		t.Errorf("email = %v, want exported", bundle.Data["email"])
	}
}

func TestRightOfObjectionWithdrawsConsent(t *testing.T) {
	e, _ := newTestEngine(t)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com"})
	if err := e.RecordConsent("user-1", "marketing", true); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}
	if err := e.RightOfObjection("user-1", "marketing"); err != nil {
		t.Fatalf("RightOfObjection() error = %v", err)
	}

	export := e.RightOfAccess("user-1")
	consent, ok := export.Consents["marketing"]
	if !ok || consent.Granted {
		t.Errorf("marketing consent = %+v, want withdrawn", consent)
	}
}

func TestAccessLogSuspicionSignals(t *testing.T) {
	e, _ := newTestEngine(t)

	// Sensitive-volume threshold is 5 in the test config.
	for i := 0; i < 5; i++ {
		e.RecordAccess("analyst-1", "portfolio-9", "read", "10.0.0.1", true, nil)
	}
	stats := e.GetStats()
	if stats.SuspiciousSignals != 1 {
		t.Errorf("SuspiciousSignals = %d, want 1 after sensitive burst", stats.SuspiciousSignals)
	}

	// Distinct-origin threshold is 2: a third origin trips it.
	for i, origin := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		e.RecordAccess("analyst-2", "portfolio-9", "read", origin, false, nil)
		stats = e.GetStats()
		want := 1
		if i == 2 {
			want = 2
		}
		if stats.SuspiciousSignals != want {
			t.Errorf("after origin %d: SuspiciousSignals = %d, want %d", i+1, stats.SuspiciousSignals, want)
		}
	}
}

func TestAccessLogWindowSlides(t *testing.T) {
	e, clock := newTestEngine(t)

	for i := 0; i < 4; i++ {
		e.RecordAccess("analyst-1", "r", "read", "10.0.0.1", true, nil)
	}
	clock.Advance(2 * time.Hour)
	e.RecordAccess("analyst-1", "r", "read", "10.0.0.1", true, nil)

	if stats := e.GetStats(); stats.SuspiciousSignals != 0 {
		t.Errorf("SuspiciousSignals = %d, want 0 when burst spans windows", stats.SuspiciousSignals)
	}
}

func TestAnonymize(t *testing.T) {
	e, clock := newTestEngine(t)
	record := map[string]any{
		"name":     "John Doe",
		"age":      47,
		"dob":      "1978-03-14",
		"salary":   92500.0,
		"location": "Austin, TX, USA",
	}

	got := e.Anonymize(record, AnonymizeOptions{
		RemoveFields:     []string{"name"},
		GeneralizeFields: []string{"age", "dob", "salary", "location"},
	})

	if _, ok := got["name"]; ok {
		t.Error("removed field survived anonymization")
	}
	if got["age"] != "40-49" {
		t.Errorf("age = %v, want 40-49", got["age"])
	}
	if got["dob"] != "1978" {
		t.Errorf("dob = %v, want 1978", got["dob"])
	}
	if got["location"] != "USA" {
		t.Errorf("location = %v, want USA", got["location"])
	}
	if got["salary"] != "92000-92999" {
		t.Errorf("salary = %v, want 92000-92999", got["salary"])
	}
	if got["_anonymized"] != true {
		t.Error("result missing anonymized tag")
	}
	if got["_anonymized_at"] != clock.Now().UTC().Format(time.RFC3339) {
		t.Errorf("_anonymized_at = %v", got["_anonymized_at"])
	}
	if _, ok := record["_anonymized"]; ok {
		t.Error("source record mutated")
	}
}

func TestEngineStats(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Classify(map[string]any{"email": "a@b.com"})
	if _, err := e.Encrypt([]byte("x"), "personal"); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	e.Mask(map[string]any{"password": "secret123"}, nil)
	e.UpsertSubject("user-1", map[string]any{"email": "a@b.com"})

	stats := e.GetStats()
	if stats.ClassifiedRecords != 1 || stats.EncryptionOps != 1 || stats.MaskedRecords != 1 {
		t.Errorf("stats = %+v, want one of each op", stats)
	}
	if stats.Subjects != 1 {
		t.Errorf("Subjects = %d, want 1", stats.Subjects)
	}
}
