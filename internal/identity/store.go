package identity

import "context"

// Store describes persistence required by the identity service.
// Implementations must return ErrNotFound for missing records and
// ErrConflict for duplicate users.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]*Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*Session, error)

	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	UpdateRefreshToken(ctx context.Context, t *RefreshToken) error
	DeleteRefreshToken(ctx context.Context, id string) error
	ListRefreshTokens(ctx context.Context) ([]*RefreshToken, error)
	RevokeRefreshTokensByUser(ctx context.Context, userID string) error
	RevokeRefreshTokensBySession(ctx context.Context, sessionID string) error
}
