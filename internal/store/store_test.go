package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/ids"
	"github.com/financeanalyst/securecore/internal/models"
)

func testDatabaseConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		Host:         "localhost",
		Port:         5432,
		User:         "securecore",
		Password:     "securecore_password",
		Database:     "securecore_test",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
	if host := os.Getenv("TEST_DATABASE_HOST"); host != "" {
		cfg.Host = host
	}
	return cfg
}

// skipIfNoTestDB skips the test when no database is reachable.
func skipIfNoTestDB(t *testing.T) *Store {
	t.Helper()

	store, err := New(testDatabaseConfig())
	if err != nil {
		t.Skipf("Skipping test, database not available: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		t.Skipf("Skipping test, database not reachable: %v", err)
		return nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	return store
}

func sampleEvent(eventType models.EventType, actorID string, at time.Time) *models.AuditEvent {
	return &models.AuditEvent{
		ID:        ids.New(),
		Type:      eventType,
		ActorID:   actorID,
		IP:        "10.0.0.1",
		Timestamp: at,
		Risk:      models.RiskLow,
		Annotations: []models.ComplianceAnnotation{
			{Framework: models.FrameworkSOX, Note: "activity logged"},
		},
		Metadata: models.JSONB{"source": "test"},
	}
}

func TestStoreSaveAndLoadEvents(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	events := []*models.AuditEvent{
		sampleEvent(models.EventUserLogin, "alice", base.Add(-2*time.Minute)),
		sampleEvent(models.EventDataAccessed, "alice", base.Add(-time.Minute)),
		sampleEvent(models.EventUserLogout, "alice", base),
	}
	if err := store.SaveEvents(ctx, events); err != nil {
		t.Fatalf("SaveEvents failed: %v", err)
	}

	loaded, err := store.LoadRecent(ctx, 100)
	if err != nil {
		t.Fatalf("LoadRecent failed: %v", err)
	}
	if len(loaded) < 3 {
		t.Fatalf("LoadRecent returned %d events, want at least 3", len(loaded))
	}

	// Chronological order, oldest first.
	for i := 1; i < len(loaded); i++ {
		if loaded[i].Timestamp.Before(loaded[i-1].Timestamp) {
			t.Errorf("events out of order at %d: %v before %v", i, loaded[i].Timestamp, loaded[i-1].Timestamp)
		}
	}

	var found *models.AuditEvent
	for _, evt := range loaded {
		if evt.ID == events[1].ID {
			found = evt
		}
	}
	if found == nil {
		t.Fatal("saved event missing from LoadRecent")
	}
	if found.Type != models.EventDataAccessed || found.ActorID != "alice" {
		t.Errorf("loaded event = %+v, want data_accessed by alice", found)
	}
	if len(found.Annotations) != 1 || found.Annotations[0].Framework != models.FrameworkSOX {
		t.Errorf("annotations not round-tripped: %+v", found.Annotations)
	}
	if found.Metadata["source"] != "test" {
		t.Errorf("metadata not round-tripped: %+v", found.Metadata)
	}
}

func TestStoreSaveEventsIgnoresReplayedIDs(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()
	evt := sampleEvent(models.EventUserLogin, "bob", time.Now().UTC())

	if err := store.SaveEvents(ctx, []*models.AuditEvent{evt}); err != nil {
		t.Fatalf("first SaveEvents failed: %v", err)
	}
	before, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}

	if err := store.SaveEvents(ctx, []*models.AuditEvent{evt}); err != nil {
		t.Fatalf("replayed SaveEvents failed: %v", err)
	}
	after, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if after != before {
		t.Errorf("replay changed count from %d to %d", before, after)
	}
}

func TestStoreDeleteEventsBefore(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()
	old := sampleEvent(models.EventUserLogin, "carol", time.Now().UTC().Add(-48*time.Hour))
	recent := sampleEvent(models.EventUserLogin, "carol", time.Now().UTC())

	if err := store.SaveEvents(ctx, []*models.AuditEvent{old, recent}); err != nil {
		t.Fatalf("SaveEvents failed: %v", err)
	}

	deleted, err := store.DeleteEventsBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteEventsBefore failed: %v", err)
	}
	if deleted < 1 {
		t.Errorf("deleted = %d, want at least 1", deleted)
	}

	loaded, err := store.LoadRecent(ctx, 1000)
	if err != nil {
		t.Fatalf("LoadRecent failed: %v", err)
	}
	for _, evt := range loaded {
		if evt.ID == old.ID {
			t.Error("old event still present after retention delete")
		}
	}
}
