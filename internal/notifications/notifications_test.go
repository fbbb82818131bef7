package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/models"
)

func sampleAlert(severity models.Severity) models.Alert {
	return models.Alert{
		Type:      "brute_force",
		Severity:  severity,
		Title:     "Repeated failed logins",
		Payload:   models.JSONB{"actor_id": "demo@financeanalyst.com"},
		CreatedAt: time.Now(),
	}
}

func TestDeliverSkipsBelowMinSeverity(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	s := NewService(config.NotificationsConfig{
		MinSeverity: models.SeverityHigh,
		Slack:       config.SlackNotifyConfig{Enabled: true, WebhookURL: server.URL},
	}, nil)

	if err := s.Deliver(context.Background(), sampleAlert(models.SeverityLow)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("low-severity alert reached the webhook %d times", calls)
	}

	if err := s.Deliver(context.Background(), sampleAlert(models.SeverityCritical)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("critical alert delivered %d times, want 1", calls)
	}
}

func TestDeliverSlackPayload(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshaling webhook payload: %v", err)
		}
	}))
	defer server.Close()

	s := NewService(config.NotificationsConfig{
		MinSeverity: models.SeverityLow,
		Slack:       config.SlackNotifyConfig{Enabled: true, WebhookURL: server.URL, Channel: "#security"},
	}, nil)

	if err := s.Deliver(context.Background(), sampleAlert(models.SeverityHigh)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if received.Channel != "#security" {
		t.Errorf("Channel = %q, want #security", received.Channel)
	}
	if len(received.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(received.Attachments))
	}
	attachment := received.Attachments[0]
	if attachment.Title != "Repeated failed logins" {
		t.Errorf("Title = %q", attachment.Title)
	}
	if attachment.Color != "#FFA500" {
		t.Errorf("Color = %q, want orange for high severity", attachment.Color)
	}

	var hasActor bool
	for _, field := range attachment.Fields {
		if field.Title == "actor_id" && field.Value == "demo@financeanalyst.com" {
			hasActor = true
		}
	}
	if !hasActor {
		t.Error("payload field missing from attachment")
	}
}

func TestDeliverReportsWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewService(config.NotificationsConfig{
		MinSeverity: models.SeverityLow,
		Slack:       config.SlackNotifyConfig{Enabled: true, WebhookURL: server.URL},
	}, nil)

	err := s.Deliver(context.Background(), sampleAlert(models.SeverityHigh))
	if err == nil {
		t.Fatal("webhook failure not reported")
	}
	if !strings.Contains(err.Error(), "slack") {
		t.Errorf("error = %v, want slack channel named", err)
	}
}
