package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/financeanalyst/securecore/internal/models"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Identity      IdentityConfig      `yaml:"identity"`
	Protection    ProtectionConfig    `yaml:"protection"`
	Audit         AuditConfig         `yaml:"audit"`
	Compliance    ComplianceConfig    `yaml:"compliance"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

// DatabaseConfig configures the optional audit snapshot store. When
// Enabled is false the audit log is purely in-memory.
type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig configures the optional alert delivery queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type IdentityConfig struct {
	JWTSecret          string          `yaml:"jwt_secret"`
	Issuer             string          `yaml:"issuer"`
	AccessTokenExpiry  time.Duration   `yaml:"access_token_expiry"`
	RefreshTokenExpiry time.Duration   `yaml:"refresh_token_expiry"`
	SessionExpiry      time.Duration   `yaml:"session_expiry"`
	MaxLoginAttempts   int             `yaml:"max_login_attempts"`
	LockoutDuration    time.Duration   `yaml:"lockout_duration"`
	Password           PasswordConfig  `yaml:"password"`
}

type PasswordConfig struct {
	MinLength      int  `yaml:"min_length"`
	RequireUpper   bool `yaml:"require_upper"`
	RequireLower   bool `yaml:"require_lower"`
	RequireDigit   bool `yaml:"require_digit"`
	RequireSymbol  bool `yaml:"require_symbol"`
	DenylistCommon bool `yaml:"denylist_common"`
}

type ProtectionConfig struct {
	MasterKey                string              `yaml:"master_key"`
	ErasureGraceDays         int                 `yaml:"erasure_grace_days"`
	SensitiveAccessThreshold int                 `yaml:"sensitive_access_threshold"`
	DistinctOriginThreshold  int                 `yaml:"distinct_origin_threshold"`
	Retention                []RetentionSchedule `yaml:"retention"`
}

type RetentionSchedule struct {
	Name          string `yaml:"name"`
	RetentionDays int    `yaml:"retention_days"`
	Disposal      string `yaml:"disposal"` // secure_delete or archive
}

type AuditConfig struct {
	MaxEntries             int `yaml:"max_entries"`
	RetentionDays          int `yaml:"retention_days"`
	SnapshotEntries        int `yaml:"snapshot_entries"`
	FailedLoginThreshold   int `yaml:"failed_login_threshold"`
	LoginBurstThreshold    int `yaml:"login_burst_threshold"`
	AccessVolumeThreshold  int `yaml:"access_volume_threshold"`
	BaselineWindowDays     int `yaml:"baseline_window_days"`
	SearchResultLimit      int `yaml:"search_result_limit"`
}

type ComplianceConfig struct {
	ReportFrequency  string         `yaml:"report_frequency"` // daily, weekly, monthly
	RecentFindings   int            `yaml:"recent_findings"`
	AlertLookahead   time.Duration  `yaml:"alert_lookahead"`
	RiskThresholds   RiskThresholds `yaml:"risk_thresholds"`
}

// RiskThresholds map a weighted risk score in [0,100] to a level.
// A score at or above each bound takes that level.
type RiskThresholds struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

type NotificationsConfig struct {
	MinSeverity models.Severity   `yaml:"min_severity"`
	Slack       SlackNotifyConfig `yaml:"slack"`
	Email       EmailNotifyConfig `yaml:"email"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type EmailNotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Identity.JWTSecret == "" {
		c.Identity.JWTSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default JWT secret. Set identity.jwt_secret in production!")
	}
	if c.Identity.Issuer == "" {
		c.Identity.Issuer = "securecore"
	}
	if c.Identity.AccessTokenExpiry == 0 {
		c.Identity.AccessTokenExpiry = 15 * time.Minute
	}
	if c.Identity.RefreshTokenExpiry == 0 {
		c.Identity.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	if c.Identity.SessionExpiry == 0 {
		c.Identity.SessionExpiry = 24 * time.Hour
	}
	if c.Identity.MaxLoginAttempts == 0 {
		c.Identity.MaxLoginAttempts = 5
	}
	if c.Identity.LockoutDuration == 0 {
		c.Identity.LockoutDuration = 15 * time.Minute
	}
	if c.Identity.Password.MinLength == 0 {
		c.Identity.Password.MinLength = 8
		c.Identity.Password.RequireUpper = true
		c.Identity.Password.RequireLower = true
		c.Identity.Password.RequireDigit = true
		c.Identity.Password.DenylistCommon = true
	}

	if c.Protection.MasterKey == "" {
		c.Protection.MasterKey = "change-me-32-byte-master-secret!"

		fmt.Println("WARNING: Using default master key. Set protection.master_key in production!")
	}
	if c.Protection.ErasureGraceDays == 0 {
		c.Protection.ErasureGraceDays = 30
	}
	if c.Protection.SensitiveAccessThreshold == 0 {
		c.Protection.SensitiveAccessThreshold = 50
	}
	if c.Protection.DistinctOriginThreshold == 0 {
		c.Protection.DistinctOriginThreshold = 3
	}
	if len(c.Protection.Retention) == 0 {
		c.Protection.Retention = []RetentionSchedule{
			{Name: "user data", RetentionDays: 365 * 2, Disposal: "secure_delete"},
			{Name: "financial data", RetentionDays: 365 * 7, Disposal: "archive"},
			{Name: "audit logs", RetentionDays: 365, Disposal: "archive"},
		}
	}

	if c.Audit.MaxEntries == 0 {
		c.Audit.MaxEntries = 10000
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 365
	}
	if c.Audit.SnapshotEntries == 0 {
		c.Audit.SnapshotEntries = 1000
	}
	if c.Audit.FailedLoginThreshold == 0 {
		c.Audit.FailedLoginThreshold = 5
	}
	if c.Audit.LoginBurstThreshold == 0 {
		c.Audit.LoginBurstThreshold = 20
	}
	if c.Audit.AccessVolumeThreshold == 0 {
		c.Audit.AccessVolumeThreshold = 500
	}
	if c.Audit.BaselineWindowDays == 0 {
		c.Audit.BaselineWindowDays = 7
	}
	if c.Audit.SearchResultLimit == 0 {
		c.Audit.SearchResultLimit = 100
	}

	if c.Compliance.ReportFrequency == "" {
		c.Compliance.ReportFrequency = "daily"
	}
	if c.Compliance.RecentFindings == 0 {
		c.Compliance.RecentFindings = 100
	}
	if c.Compliance.AlertLookahead == 0 {
		c.Compliance.AlertLookahead = 30 * 24 * time.Hour
	}
	if c.Compliance.RiskThresholds.Medium == 0 {
		c.Compliance.RiskThresholds.Medium = 25
	}
	if c.Compliance.RiskThresholds.High == 0 {
		c.Compliance.RiskThresholds.High = 50
	}
	if c.Compliance.RiskThresholds.Critical == 0 {
		c.Compliance.RiskThresholds.Critical = 75
	}

	if c.Notifications.MinSeverity == "" {
		c.Notifications.MinSeverity = models.SeverityHigh
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}

	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 60
	}
}
