package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an account on the platform. Users are never physically
// deleted except through the right of erasure.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	Active         bool       `json:"active"`
	Verified       bool       `json:"verified"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	MFAEnabled     bool       `json:"mfa_enabled"`
	MFASecret      string     `json:"-"`
	FailedAttempts int        `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Locked reports whether the account is locked at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Role groups permissions. The set is fixed and loaded at startup; the
// numeric level is used for display ordering only, never enforcement.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Level       int      `json:"level"`
}

// Session state machine: created -> active -> (expired | logged_out |
// password_change). Terminal states are never reused.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Active       bool      `json:"active"`
	EndedReason  string    `json:"ended_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// Session end reasons.
const (
	EndedExpired        = "expired"
	EndedLoggedOut      = "logged_out"
	EndedPasswordChange = "password_change"
)

// RefreshToken is the persisted half of an opaque refresh token. The
// wire form is "<id>.<secret>"; only the secret's hash is stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// Claims are embedded in access tokens. The permission list is a
// snapshot taken at mint time.
type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	SessionID   string   `json:"session_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenPair is returned on successful authentication, mirroring an
// OAuth2 token response.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// LoginResult is either a token pair or an MFA challenge.
type LoginResult struct {
	MFARequired bool       `json:"mfa_required"`
	Tokens      *TokenPair `json:"tokens,omitempty"`
	User        *User      `json:"user,omitempty"`
}

// Stats is the read-only aggregate consumed by presentation code.
type Stats struct {
	TotalUsers      int `json:"total_users"`
	ActiveUsers     int `json:"active_users"`
	VerifiedUsers   int `json:"verified_users"`
	ActiveSessions  int `json:"active_sessions"`
	LockedAccounts  int `json:"locked_accounts"`
	MFAEnabledUsers int `json:"mfa_enabled_users"`
}
