package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/storage"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db storage.DBTX
}

func NewUserRepository(db storage.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, email, username, password, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user models.User
	query := `INSERT INTO users (id, email, username, password_hash, role) VALUES ($1, $2, $3, $4, $5) RETURNING id, email, username, role`
	err = r.db.QueryRowContext(ctx, query, uuid.NewString(), email, username, string(hash), role).
		Scan(&user.ID, &user.Email, &user.Username, &user.Role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, storage.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, identity string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, username, role FROM users WHERE email = $1 OR username = $1`
	err := r.db.QueryRowContext(ctx, query, identity).Scan(&user.ID, &user.Email, &user.Username, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by identity: %w", err)
	}
	return &user, nil
}

// VerifyPassword keeps the hash inside the repository; callers only learn
// whether the password matched.
func (r *UserRepository) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	var hash string
	query := `SELECT password_hash FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, storage.ErrUserNotFound
		}
		return false, fmt.Errorf("get password hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
