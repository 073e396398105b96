package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/storage"
)

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) AppendSession(ctx context.Context, session models.Session) error {
	query := `INSERT INTO sessions (token_id, refresh_token, user_id, user_agent, client_ip, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.TokenID,
		session.RefreshToken,
		session.UserID,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	query := `SELECT token_id, refresh_token, user_id, user_agent, client_ip, created_at, expires_at FROM sessions WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.TokenID, &s.RefreshToken, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RemoveSession is compare-and-delete: the DELETE either consumes the row
// or reports ErrSessionNotFound, so two concurrent rotations of the same
// token cannot both pass. The consumed row is returned.
func (r *SessionRepository) RemoveSession(ctx context.Context, userID, tokenID string) (*models.Session, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 AND token_id = $2 RETURNING token_id, refresh_token, user_id, user_agent, client_ip, created_at, expires_at`
	var s models.Session
	err := r.db.QueryRowContext(ctx, query, userID, tokenID).
		Scan(&s.TokenID, &s.RefreshToken, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) ClearSessions(ctx context.Context, userID string) ([]models.Session, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 RETURNING token_id, refresh_token, user_id, user_agent, client_ip, created_at, expires_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("delete user sessions: %w", err)
	}
	defer rows.Close()

	var removed []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.TokenID, &s.RefreshToken, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan removed session: %w", err)
		}
		removed = append(removed, s)
	}
	return removed, rows.Err()
}
