package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/financeanalyst/securecore/internal/api"
	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/compliance"
	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/identity"
	"github.com/financeanalyst/securecore/internal/models"
	"github.com/financeanalyst/securecore/internal/notifications"
	"github.com/financeanalyst/securecore/internal/obs"
	"github.com/financeanalyst/securecore/internal/protection"
	"github.com/financeanalyst/securecore/internal/queue"
	"github.com/financeanalyst/securecore/internal/reports"
	"github.com/financeanalyst/securecore/internal/scheduler"
	"github.com/financeanalyst/securecore/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	obs.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	identityService := identity.NewService(identityConfig(cfg.Identity), identity.NewMemoryStore(), bus,
		identity.WithLogger(logger))
	protectionEngine := protection.NewEngine(cfg.Protection, bus,
		protection.WithEngineLogger(logger))

	notifier := notifications.NewService(cfg.Notifications, logger)

	var alertQueue *queue.Queue
	var worker *queue.Worker
	if cfg.Redis.Enabled {
		alertQueue, err = queue.New(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer alertQueue.Close()

		worker = queue.NewWorker(alertQueue, notifier, logger)
	}

	auditOpts := []audit.EngineOption{
		audit.WithEngineLogger(logger),
		audit.WithAlertSink(alertSink(alertQueue, notifier, logger)),
	}

	var snapshots *store.Store
	if cfg.Database.Enabled {
		snapshots, err = store.New(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer snapshots.Close()

		if err := snapshots.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare database schema: %v", err)
		}
		auditOpts = append(auditOpts, audit.WithSnapshotStore(snapshots))
	}

	auditEngine := audit.NewEngine(cfg.Audit, bus, auditOpts...)
	if err := auditEngine.Restore(ctx); err != nil {
		logger.Error("failed to restore audit log from snapshot", "error", err)
	}
	go auditEngine.Run(ctx)

	monitor := compliance.NewMonitor(cfg.Compliance, auditEngine, protectionEngine, identityService, bus,
		compliance.WithMonitorLogger(logger))

	generator := reports.NewGenerator()

	jobs := scheduler.New(logger)
	registerJobs(jobs, cfg, logger, identityService, protectionEngine, auditEngine, monitor, snapshots)

	if worker != nil {
		if err := worker.Start(ctx); err != nil {
			log.Fatalf("Failed to start alert worker: %v", err)
		}
		defer worker.Stop()
	}

	server := api.NewServer(cfg, api.Services{
		Identity:   identityService,
		Protection: protectionEngine,
		Audit:      auditEngine,
		Compliance: monitor,
		Reports:    generator,
		Scheduler:  jobs,
		Store:      snapshots,
	}, api.WithLogger(logger))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting securecore", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func identityConfig(cfg config.IdentityConfig) identity.Config {
	return identity.Config{
		JWTSecret:          cfg.JWTSecret,
		Issuer:             cfg.Issuer,
		AccessTokenExpiry:  cfg.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.RefreshTokenExpiry,
		SessionExpiry:      cfg.SessionExpiry,
		MaxLoginAttempts:   cfg.MaxLoginAttempts,
		LockoutDuration:    cfg.LockoutDuration,
		Password: identity.PasswordPolicy{
			MinLength:      cfg.Password.MinLength,
			RequireUpper:   cfg.Password.RequireUpper,
			RequireLower:   cfg.Password.RequireLower,
			RequireDigit:   cfg.Password.RequireDigit,
			RequireSymbol:  cfg.Password.RequireSymbol,
			DenylistCommon: cfg.Password.DenylistCommon,
		},
	}
}

// alertSink routes raised alerts to the redis queue when available and
// falls back to direct delivery otherwise.
func alertSink(alertQueue *queue.Queue, notifier *notifications.Service, logger *slog.Logger) audit.AlertSink {
	return func(alert models.Alert) {
		obs.RecordAlert(string(alert.Severity))

		if alertQueue != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alertQueue.EnqueueAlert(ctx, alert); err != nil {
				logger.Error("failed to enqueue alert", "alert", alert.Type, "error", err)
			}
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := notifier.Deliver(ctx, alert); err != nil {
				logger.Error("alert delivery failed", "alert", alert.Type, "error", err)
			}
		}()
	}
}

func registerJobs(jobs *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger,
	identityService *identity.Service, protectionEngine *protection.Engine,
	auditEngine *audit.Engine, monitor *compliance.Monitor, snapshots *store.Store) {

	register := func(name, schedule string, run scheduler.JobFunc) {
		if err := jobs.Register(scheduler.Job{Name: name, Schedule: schedule, Run: run}); err != nil {
			log.Fatalf("Failed to register job %s: %v", name, err)
		}
	}

	register("session_sweep", "*/10 * * * *", func(ctx context.Context) error {
		return identityService.SweepSessions(ctx)
	})

	register("token_sweep", "*/30 * * * *", func(ctx context.Context) error {
		return identityService.SweepExpiringTokens(ctx, 24*time.Hour)
	})

	register("pattern_analysis", "*/5 * * * *", func(ctx context.Context) error {
		report := auditEngine.AnalyzePatterns()
		if len(report.Findings) > 0 {
			logger.Info("pattern analysis finished", "findings", len(report.Findings))
		}
		return nil
	})

	register("compliance_checks", "0 * * * *", func(ctx context.Context) error {
		monitor.PerformComplianceChecks(ctx)
		return nil
	})

	register("compliance_reports", reportSchedule(cfg.Compliance.ReportFrequency), func(ctx context.Context) error {
		monitor.GenerateComplianceReports()
		return nil
	})

	register("risk_assessment", "0 7 * * *", func(ctx context.Context) error {
		monitor.PerformRiskAssessment()
		return nil
	})

	register("regulatory_alerts", "0 8 * * *", func(ctx context.Context) error {
		monitor.CheckRegulatoryAlerts()
		return nil
	})

	register("retention_check", "0 2 * * *", func(ctx context.Context) error {
		trimmed := auditEngine.TrimRetention()
		if trimmed > 0 {
			logger.Info("trimmed expired audit events", "count", trimmed)
		}
		protectionEngine.CheckRetention()

		if snapshots != nil {
			cutoff := time.Now().AddDate(0, 0, -cfg.Audit.RetentionDays)
			deleted, err := snapshots.DeleteEventsBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("deleted expired snapshot events", "count", deleted)
			}
		}
		return nil
	})
}

func reportSchedule(frequency string) string {
	switch frequency {
	case "weekly":
		return "0 6 * * 1"
	case "monthly":
		return "0 6 1 * *"
	default:
		return "0 6 * * *"
	}
}
