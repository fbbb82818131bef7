package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/compliance"
	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/identity"
	"github.com/financeanalyst/securecore/internal/protection"
	"github.com/financeanalyst/securecore/internal/reports"
	"github.com/financeanalyst/securecore/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			CORSAllowOrigin: "https://dashboard.financeanalyst.test",
		},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 6000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *identity.Service) {
	t.Helper()

	bus := events.NewBus()
	logger := discardLogger()

	identityService := identity.NewService(identity.Config{
		JWTSecret:          "test-secret-0123456789abcdef0123456789",
		Issuer:             "securecore-test",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		SessionExpiry:      24 * time.Hour,
		MaxLoginAttempts:   5,
		LockoutDuration:    time.Minute,
		Password:           identity.PasswordPolicy{MinLength: 8},
	}, identity.NewMemoryStore(), bus, identity.WithLogger(logger))

	protectionEngine := protection.NewEngine(config.ProtectionConfig{
		MasterKey:                "0123456789abcdef0123456789abcdef",
		ErasureGraceDays:         30,
		SensitiveAccessThreshold: 100,
		DistinctOriginThreshold:  10,
	}, bus, protection.WithEngineLogger(logger))

	auditEngine := audit.NewEngine(config.AuditConfig{
		MaxEntries:            1000,
		RetentionDays:         30,
		SnapshotEntries:       100,
		FailedLoginThreshold:  5,
		LoginBurstThreshold:   20,
		AccessVolumeThreshold: 50,
		BaselineWindowDays:    7,
		SearchResultLimit:     100,
	}, bus, audit.WithEngineLogger(logger))

	monitor := compliance.NewMonitor(config.ComplianceConfig{
		ReportFrequency: "daily",
		RecentFindings:  100,
		AlertLookahead:  30 * 24 * time.Hour,
		RiskThresholds:  config.RiskThresholds{Medium: 25, High: 50, Critical: 75},
	}, auditEngine, protectionEngine, identityService, bus,
		compliance.WithMonitorLogger(logger))

	server := NewServer(cfg, Services{
		Identity:   identityService,
		Protection: protectionEngine,
		Audit:      auditEngine,
		Compliance: monitor,
		Reports:    reports.NewGenerator(),
		Scheduler:  scheduler.New(logger),
	}, WithLogger(logger))

	return server, identityService
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// activeUserToken registers and activates a user directly through the
// service, then logs in and returns the access token.
func activeUserToken(t *testing.T, svc *identity.Service, email, role string) string {
	t.Helper()

	ctx := context.Background()
	user, err := svc.Register(ctx, identity.Registration{
		Email:    email,
		Username: strings.Split(email, "@")[0],
		Password: "Sup3rSecret!",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.Activate(ctx, user.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	result, err := svc.Login(ctx, identity.Credentials{Email: email, Password: "Sup3rSecret!"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result.Tokens.AccessToken
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t, testServerConfig())

	if rec := doRequest(t, server.Handler(), "GET", "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, server.Handler(), "GET", "/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /ready = %d, want 200", rec.Code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	server, _ := newTestServer(t, testServerConfig())

	rec := doRequest(t, server.Handler(), "GET", "/api/v1/audit/stats", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, server.Handler(), "GET", "/api/v1/audit/stats", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: status = %d, want 401", rec.Code)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	h := server.Handler()

	rec := doRequest(t, h, "POST", "/api/v1/auth/register", "", map[string]string{
		"email":    "analyst@financeanalyst.com",
		"username": "analyst",
		"password": "Sup3rSecret!",
		"role":     "analyst",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data identity.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if err := svc.Activate(context.Background(), created.Data.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	rec = doRequest(t, h, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "analyst@financeanalyst.com",
		"password": "Sup3rSecret!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var login struct {
		Data identity.LoginResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if login.Data.Tokens == nil || login.Data.Tokens.AccessToken == "" {
		t.Fatal("login response carries no access token")
	}

	rec = doRequest(t, h, "GET", "/api/v1/auth/me", login.Data.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	var me struct {
		Data identity.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decoding me response: %v", err)
	}
	if me.Data.Email != "analyst@financeanalyst.com" {
		t.Errorf("me email = %q", me.Data.Email)
	}
}

func TestLoginWithBadPasswordIsOpaque(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	activeUserToken(t, svc, "victim@financeanalyst.com", "viewer")

	rec := doRequest(t, server.Handler(), "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "victim@financeanalyst.com",
		"password": "WrongPassword1!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	recUnknown := doRequest(t, server.Handler(), "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "nobody@financeanalyst.com",
		"password": "WrongPassword1!",
	})
	if recUnknown.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status = %d, want 401", recUnknown.Code)
	}
	if rec.Body.String() != recUnknown.Body.String() {
		t.Error("bad password and unknown email produce distinguishable responses")
	}
}

func TestPermissionEnforcement(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	h := server.Handler()

	viewerToken := activeUserToken(t, svc, "viewer@financeanalyst.com", "viewer")
	adminToken := activeUserToken(t, svc, "admin@financeanalyst.com", "admin")

	if rec := doRequest(t, h, "GET", "/api/v1/identity/stats", viewerToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("viewer stats: status = %d, want 403", rec.Code)
	}
	if rec := doRequest(t, h, "GET", "/api/v1/identity/stats", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("admin stats: status = %d, want 200", rec.Code)
	}
}

func TestAuditLogAndSearch(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	h := server.Handler()
	adminToken := activeUserToken(t, svc, "admin@financeanalyst.com", "admin")

	rec := doRequest(t, h, "POST", "/api/v1/audit/events", adminToken, map[string]interface{}{
		"type":     "data_accessed",
		"actor_id": "admin@financeanalyst.com",
		"resource": "portfolio/123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("log event: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, "GET", "/api/v1/audit/events?type=data_accessed", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d", rec.Code)
	}
	var search struct {
		Data []json.RawMessage `json:"data"`
		Meta *apiMeta          `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &search); err != nil {
		t.Fatalf("decoding search response: %v", err)
	}
	if len(search.Data) == 0 {
		t.Error("search returned no events")
	}
}

func TestResolveAlertValidation(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	h := server.Handler()
	adminToken := activeUserToken(t, svc, "admin@financeanalyst.com", "admin")

	rec := doRequest(t, h, "POST", "/api/v1/audit/alerts/not-a-uuid/resolve", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad UUID: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, "POST", "/api/v1/audit/alerts/"+uuid.NewString()+"/resolve", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert: status = %d, want 404", rec.Code)
	}
}

func TestExportComplianceCSV(t *testing.T) {
	server, svc := newTestServer(t, testServerConfig())
	h := server.Handler()
	adminToken := activeUserToken(t, svc, "admin@financeanalyst.com", "admin")

	rec := doRequest(t, h, "GET", "/api/v1/exports/compliance?format=csv", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Content-Disposition header missing")
	}

	rec = doRequest(t, h, "GET", "/api/v1/exports/compliance?format=xlsx", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported format: status = %d, want 400", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2}
	server, _ := newTestServer(t, cfg)
	h := server.Handler()

	var limited bool
	for i := 0; i < 3; i++ {
		rec := doRequest(t, h, "GET", "/api/v1/audit/stats", "", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("burst of requests was never rate limited")
	}
}
