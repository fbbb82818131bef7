package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/compliance"
	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/identity"
	"github.com/financeanalyst/securecore/internal/obs"
	"github.com/financeanalyst/securecore/internal/protection"
	"github.com/financeanalyst/securecore/internal/reports"
	"github.com/financeanalyst/securecore/internal/scheduler"
	"github.com/financeanalyst/securecore/internal/store"
)

// Services are the wired subsystems the HTTP layer exposes. Store is
// optional and used only for readiness probing.
type Services struct {
	Identity   *identity.Service
	Protection *protection.Engine
	Audit      *audit.Engine
	Compliance *compliance.Monitor
	Reports    *reports.Generator
	Scheduler  *scheduler.Scheduler
	Store      *store.Store
}

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	http   *http.Server
	logger *slog.Logger

	identity   *identity.Service
	protection *protection.Engine
	audit      *audit.Engine
	compliance *compliance.Monitor
	reports    *reports.Generator
	scheduler  *scheduler.Scheduler
	store      *store.Store

	limiter *clientLimiter
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, svc Services, opts ...ServerOption) *Server {
	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		logger:     slog.Default(),
		identity:   svc.Identity,
		protection: svc.Protection,
		audit:      svc.Audit,
		compliance: svc.Compliance,
		reports:    svc.Reports,
		scheduler:  svc.Scheduler,
		store:      svc.Store,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.limiter = newClientLimiter(cfg.RateLimit)

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(obs.Instrument)
	s.router.Use(s.corsMiddleware())
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)
	s.router.Method("GET", "/metrics", obs.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.getCurrentUser)
			r.Get("/auth/validate", s.validateToken)
			r.Post("/auth/password", s.changePassword)
			r.Post("/auth/mfa/enable", s.enableMFA)
			r.Post("/auth/mfa/disable", s.disableMFA)
			r.Get("/auth/permissions/{permission}", s.checkPermission)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(identity.PermUsersManage))
				r.Get("/identity/stats", s.getIdentityStats)

				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", s.listJobs)
					r.Get("/history", s.getJobHistory)
					r.Post("/{name}/run", s.runJobNow)
				})
			})

			r.Route("/protection", func(r chi.Router) {
				r.With(s.requirePermission(identity.PermDataClassify)).Post("/classify", s.classifyData)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(identity.PermDataProtect))

					r.Post("/encrypt", s.encryptData)
					r.Post("/decrypt", s.decryptData)
					r.Post("/mask", s.maskData)
					r.Post("/anonymize", s.anonymizeData)
					r.Get("/stats", s.getProtectionStats)
					r.Get("/retention", s.getRetentionReport)

					r.Post("/access-log", s.recordAccess)
					r.Get("/access-log/{actor}", s.getAccessHistory)

					r.Route("/subjects/{subjectID}", func(r chi.Router) {
						r.Put("/", s.upsertSubject)
						r.Patch("/", s.rectifySubject)
						r.Delete("/", s.eraseSubject)
						r.Post("/consent", s.recordConsent)
						r.Get("/access", s.subjectAccessExport)
						r.Post("/restriction", s.restrictSubject)
						r.Get("/portability", s.subjectPortability)
						r.Post("/objection", s.subjectObjection)
					})
				})
			})

			r.Route("/audit", func(r chi.Router) {
				r.Use(s.requirePermission(identity.PermAuditView))

				r.Post("/events", s.logSecurityEvent)
				r.With(s.requirePermission(identity.PermAuditSearch)).Get("/events", s.searchLogs)
				r.Get("/report", s.getSecurityReport)
				r.Get("/stats", s.getAuditStats)
				r.Get("/alerts", s.listAlerts)
				r.Post("/alerts/{alertID}/resolve", s.resolveAlert)
				r.Get("/patterns", s.getPatternReport)
				r.Get("/baselines", s.getBaselines)
			})

			r.Route("/compliance", func(r chi.Router) {
				r.Use(s.requirePermission(identity.PermComplianceView))

				r.Get("/findings", s.getComplianceFindings)
				r.Get("/reports", s.getComplianceReports)
				r.Get("/risk", s.getRiskAssessment)
				r.Get("/metrics", s.getComplianceMetrics)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(identity.PermComplianceManage))
					r.Post("/checks", s.runComplianceChecks)
					r.Post("/reports", s.generateComplianceReports)
					r.Post("/risk", s.runRiskAssessment)
				})
			})

			r.Route("/exports", func(r chi.Router) {
				r.Use(s.requirePermission(identity.PermReportsExport))
				r.Get("/security", s.exportSecurityReport)
				r.Get("/compliance", s.exportComplianceReports)
			})
		})
	})
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	s.scheduler.Start()

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		<-s.scheduler.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total int `json:"total,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

// respondServiceError maps domain errors to HTTP statuses. Anything
// unrecognized becomes an opaque 500 so internals never leak.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var validation *identity.ValidationError
	var locked *identity.LockedError
	var unsupported *reports.UnsupportedFormatError

	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(locked.RetryAfter.Seconds())))
		respondError(w, http.StatusLocked, "account_locked", locked.Error())
	case errors.As(err, &unsupported):
		respondError(w, http.StatusBadRequest, "unsupported_format", unsupported.Error())
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrTokenExpired),
		errors.Is(err, identity.ErrInvalidMFACode):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, identity.ErrAccountInactive),
		errors.Is(err, identity.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, identity.ErrConflict),
		errors.Is(err, protection.ErrFieldRestricted):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, protection.ErrSubjectNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
