package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/financeanalyst/securecore/internal/events"
	"github.com/financeanalyst/securecore/internal/models"
)

// Config holds identity service configuration.
type Config struct {
	JWTSecret          string
	Issuer             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	SessionExpiry      time.Duration
	MaxLoginAttempts   int
	LockoutDuration    time.Duration
	Password           PasswordPolicy
}

// Service owns users, roles, sessions and tokens, and emits lifecycle
// events on the bus.
type Service struct {
	config Config
	store  Store
	roles  map[string]Role
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(config Config, store Store, bus *events.Bus, opts ...ServiceOption) *Service {
	if config.AccessTokenExpiry == 0 {
		config.AccessTokenExpiry = 15 * time.Minute
	}
	if config.RefreshTokenExpiry == 0 {
		config.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	if config.SessionExpiry == 0 {
		config.SessionExpiry = 24 * time.Hour
	}
	if config.MaxLoginAttempts == 0 {
		config.MaxLoginAttempts = 5
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = 15 * time.Minute
	}
	if config.Issuer == "" {
		config.Issuer = "securecore"
	}
	if config.Password.MinLength == 0 {
		config.Password.MinLength = 8
	}

	s := &Service{
		config: config,
		store:  store,
		roles:  DefaultRoles(),
		bus:    bus,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registration holds the input to Register.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Register creates an inactive, unverified user after validating email
// shape, uniqueness and password strength.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	reg.Username = strings.TrimSpace(reg.Username)

	if err := ValidateEmail(reg.Email); err != nil {
		return nil, err
	}
	if reg.Username == "" {
		return nil, &ValidationError{Field: "username", Reason: "required"}
	}
	if err := s.config.Password.Validate(reg.Password); err != nil {
		return nil, err
	}

	role := reg.Role
	if role == "" {
		role = "viewer"
	}
	if _, ok := s.roles[role]; !ok {
		return nil, &ValidationError{Field: "role", Reason: "unknown role"}
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:           uuid.New().String(),
		Email:        reg.Email,
		Username:     reg.Username,
		PasswordHash: hash,
		Role:         role,
		Active:       false,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", role)
	return user, nil
}

// Activate marks a user active and verified. Exposed for account
// verification flows; tests use it to move registrations into play.
func (s *Service) Activate(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.Active = true
	user.Verified = true
	user.UpdatedAt = s.now()
	return s.store.UpdateUser(ctx, user)
}

// Credentials holds the input to Login.
type Credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfa_code,omitempty"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// Login authenticates credentials. Account state is checked before the
// password; lockout responses carry only the remaining wait time.
func (s *Service) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	now := s.now()

	user, err := s.store.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		// Same error as a bad password so callers cannot probe for
		// registered addresses.
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		s.publish(models.EventLoginFailed, user, "", creds.IP, creds.UserAgent,
			models.JSONB{"reason": "account_inactive"})
		return nil, ErrAccountInactive
	}

	if user.Locked(now) {
		remaining := user.LockedUntil.Sub(now)
		s.publish(models.EventLoginFailed, user, "", creds.IP, creds.UserAgent,
			models.JSONB{"reason": "account_locked"})
		return nil, &LockedError{RetryAfter: remaining}
	}
	if user.LockedUntil != nil {
		// Lockout elapsed; clear it before proceeding.
		user.LockedUntil = nil
		s.publish(models.EventAccountUnlocked, user, "", creds.IP, creds.UserAgent, nil)
	}

	if !CheckPassword(creds.Password, user.PasswordHash) {
		user.FailedAttempts++
		locked := false
		if user.FailedAttempts >= s.config.MaxLoginAttempts {
			until := now.Add(s.config.LockoutDuration)
			user.LockedUntil = &until
			user.FailedAttempts = 0
			locked = true
		}
		user.UpdatedAt = now
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, err
		}

		s.publish(models.EventLoginFailed, user, "", creds.IP, creds.UserAgent,
			models.JSONB{"attempts": user.FailedAttempts})
		if locked {
			s.publish(models.EventAccountLocked, user, "", creds.IP, creds.UserAgent,
				models.JSONB{"lockout_duration": s.config.LockoutDuration.String()})
		}
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if creds.MFACode == "" {
			return &LoginResult{MFARequired: true}, nil
		}
		if !VerifyTOTP(user.MFASecret, creds.MFACode, now) {
			s.publish(models.EventLoginFailed, user, "", creds.IP, creds.UserAgent,
				models.JSONB{"reason": "invalid_mfa_code"})
			return nil, ErrInvalidMFACode
		}
	}

	user.FailedAttempts = 0
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	session := &Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Active:       true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.SessionExpiry),
		LastActivity: now,
		IP:           creds.IP,
		UserAgent:    creds.UserAgent,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	pair, err := s.mintTokens(ctx, user, session)
	if err != nil {
		return nil, err
	}

	s.publish(models.EventUserLogin, user, session.ID, creds.IP, creds.UserAgent, nil)
	return &LoginResult{Tokens: pair, User: user}, nil
}

// ValidateToken verifies an access token and fails closed: malformed
// or expired tokens, missing or inactive sessions, and inactive users
// all yield ErrInvalidToken. A valid token touches session activity.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !session.Active || s.now().After(session.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil || !user.Active {
		return nil, ErrInvalidToken
	}

	session.LastActivity = s.now()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshToken redeems a refresh token for a fresh pair. The old token
// is revoked at redemption (rotation).
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	record, err := s.store.GetRefreshToken(ctx, tokenID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	if !hashMatches(record.TokenHash, secret) {
		record.Revoked = true
		_ = s.store.UpdateRefreshToken(ctx, record)
		return nil, ErrInvalidToken
	}

	session, err := s.store.GetSession(ctx, record.SessionID)
	if err != nil || !session.Active {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUser(ctx, record.UserID)
	if err != nil || !user.Active {
		return nil, ErrInvalidToken
	}

	record.Revoked = true
	if err := s.store.UpdateRefreshToken(ctx, record); err != nil {
		return nil, err
	}

	return s.mintTokens(ctx, user, session)
}

// Logout invalidates the owning session. It is idempotent: invalid or
// already-expired tokens are ignored.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil
	}
	if session.Active {
		session.Active = false
		session.EndedReason = EndedLoggedOut
		if err := s.store.UpdateSession(ctx, session); err != nil {
			return err
		}
	}
	if err := s.store.RevokeRefreshTokensBySession(ctx, session.ID); err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err == nil {
		s.publish(models.EventUserLogout, user, session.ID, session.IP, session.UserAgent, nil)
	}
	return nil
}

// CheckPermission reports whether the user's role grants the exact
// permission. Denials are published for the audit log.
func (s *Service) CheckPermission(ctx context.Context, userID, permission string) (bool, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range s.UserPermissions(user) {
		if p == permission {
			return true, nil
		}
	}
	s.publish(models.EventPermissionDenied, user, "", "", "",
		models.JSONB{"permission": permission})
	return false, nil
}

// UserPermissions returns the permission list of the user's role.
func (s *Service) UserPermissions(user *User) []string {
	role, ok := s.roles[user.Role]
	if !ok {
		return nil
	}
	return role.Permissions
}

// Roles returns the fixed role set.
func (s *Service) Roles() map[string]Role {
	return s.roles
}

// ChangePassword verifies the current password, applies the policy to
// the new one, and invalidates every active session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.config.Password.Validate(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	if err := s.endUserSessions(ctx, userID, EndedPasswordChange); err != nil {
		return err
	}
	if err := s.store.RevokeRefreshTokensByUser(ctx, userID); err != nil {
		return err
	}

	s.publish(models.EventPasswordChanged, user, "", "", "", nil)
	return nil
}

// EnableMFA generates and stores a TOTP secret for the user. The
// secret is returned once for enrollment.
func (s *Service) EnableMFA(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	secret, err := GenerateMFASecret()
	if err != nil {
		return "", err
	}
	user.MFAEnabled = true
	user.MFASecret = secret
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", err
	}
	s.publish(models.EventMFAEnabled, user, "", "", "", nil)
	return secret, nil
}

func (s *Service) DisableMFA(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.MFAEnabled = false
	user.MFASecret = ""
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.publish(models.EventMFADisabled, user, "", "", "", nil)
	return nil
}

// SweepSessions removes sessions that are past expiry or already
// terminal. Per-session failures are logged and skipped.
func (s *Service) SweepSessions(ctx context.Context) error {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	removed := 0
	for _, session := range sessions {
		expired := now.After(session.ExpiresAt)
		if !expired && session.Active {
			continue
		}
		if expired && session.Active {
			session.Active = false
			session.EndedReason = EndedExpired
			if err := s.store.UpdateSession(ctx, session); err != nil {
				s.logger.Warn("session sweep: update failed", "session_id", session.ID, "error", err)
				continue
			}
			_ = s.store.RevokeRefreshTokensBySession(ctx, session.ID)
		}
		if err := s.store.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("session sweep: delete failed", "session_id", session.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("session sweep completed", "removed", removed)
	}
	return nil
}

// SweepExpiringTokens extends refresh tokens nearing expiry for
// sessions that are still active. A failure on one token does not
// abort the sweep for the others.
func (s *Service) SweepExpiringTokens(ctx context.Context, within time.Duration) error {
	tokens, err := s.store.ListRefreshTokens(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, token := range tokens {
		if token.Revoked {
			continue
		}
		if now.After(token.ExpiresAt) {
			if err := s.store.DeleteRefreshToken(ctx, token.ID); err != nil {
				s.logger.Warn("token sweep: delete failed", "token_id", token.ID, "error", err)
			}
			continue
		}
		if token.ExpiresAt.Sub(now) > within {
			continue
		}
		session, err := s.store.GetSession(ctx, token.SessionID)
		if err != nil || !session.Active {
			continue
		}
		token.ExpiresAt = now.Add(s.config.RefreshTokenExpiry)
		if err := s.store.UpdateRefreshToken(ctx, token); err != nil {
			s.logger.Warn("token sweep: extend failed", "token_id", token.ID, "error", err)
		}
	}
	return nil
}

// GetStats returns the read-only aggregate for presentation code.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stats := &Stats{TotalUsers: len(users)}
	for _, u := range users {
		if u.Active {
			stats.ActiveUsers++
		}
		if u.Verified {
			stats.VerifiedUsers++
		}
		if u.Locked(now) {
			stats.LockedAccounts++
		}
		if u.MFAEnabled {
			stats.MFAEnabledUsers++
		}
	}
	for _, sess := range sessions {
		if sess.Active && now.Before(sess.ExpiresAt) {
			stats.ActiveSessions++
		}
	}
	return stats, nil
}

// GetUser exposes a read-only user lookup for other components.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.GetUser(ctx, id)
}

// RemoveUser deletes the user and all associated sessions and tokens.
// Used by the data protection engine's right of erasure.
func (s *Service) RemoveUser(ctx context.Context, userID string) error {
	if err := s.endUserSessions(ctx, userID, EndedLoggedOut); err != nil {
		return err
	}
	if err := s.store.RevokeRefreshTokensByUser(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

func (s *Service) endUserSessions(ctx context.Context, userID, reason string) error {
	sessions, err := s.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if !session.Active {
			continue
		}
		session.Active = false
		session.EndedReason = reason
		if err := s.store.UpdateSession(ctx, session); err != nil {
			s.logger.Warn("ending session failed", "session_id", session.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) mintTokens(ctx context.Context, user *User, session *Session) (*TokenPair, error) {
	now := s.now()
	accessExpiry := now.Add(s.config.AccessTokenExpiry)

	claims := &Claims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		SessionID:   session.ID,
		Permissions: s.UserPermissions(user),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
		},
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessTokenString, err := accessToken.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshString, record, err := s.generateRefreshToken(user.ID, session.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshString,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, nil
}

func (s *Service) generateRefreshToken(userID, sessionID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	record := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}
	return record.ID + "." + secret, record, nil
}

func (s *Service) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) publish(eventType models.EventType, user *User, sessionID, ip, userAgent string, metadata models.JSONB) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(models.SecurityEvent{
		Type:      eventType,
		ActorID:   user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		IP:        ip,
		UserAgent: userAgent,
		Timestamp: s.now(),
		Metadata:  metadata,
	})
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashMatches(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:]) == expectedHash
}
