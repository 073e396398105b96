package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vkazarin/tokenguard/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
)

type Storage interface {
	UserRepository
	SessionRepository
}

// UserRepository is the credential-store collaborator. Password hashes never
// leave the repository: verification happens behind VerifyPassword.
type UserRepository interface {
	CreateUser(ctx context.Context, email, username, password, role string) (*models.User, error)
	FindByEmailOrUsername(ctx context.Context, identity string) (*models.User, error)
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
}

// SessionRepository maintains the per-user list of outstanding refresh
// sessions. RemoveSession is compare-and-delete: it reports
// ErrSessionNotFound when the entry was already consumed, which is what
// makes refresh rotation single-use. The removed session is returned so
// revocation can be driven by the stored record rather than by anything
// the client presented.
type SessionRepository interface {
	AppendSession(ctx context.Context, session models.Session) error
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	RemoveSession(ctx context.Context, userID, tokenID string) (*models.Session, error)
	ClearSessions(ctx context.Context, userID string) ([]models.Session, error)
}

// RevocationBackend is a shared key/TTL store used as the blacklist primary.
type RevocationBackend interface {
	Add(ctx context.Context, key string, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Close() error
}

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}
