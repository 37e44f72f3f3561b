package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cvreview/pkg/logger"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is a signed-in reviewer and the OAuth credentials of their
// sign-in.
type Session struct {
	UserID          string
	Name            string
	Email           string
	Picture         string
	CredentialsJSON string
	ExpiresAt       time.Time
}

// Active reports whether the session is still valid at now.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Upsert(ctx context.Context, s Session) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_sessions (user_id, name, email, picture, credentials_json, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET name = $2, email = $3, picture = $4, credentials_json = $5, expires_at = $6, updated_at = NOW()`,
		s.UserID, s.Name, s.Email, s.Picture, s.CredentialsJSON, s.ExpiresAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to store session for %s: %v", s.UserID, err)
	}
	return err
}

func (r *SessionRepository) Get(ctx context.Context, userID string) (Session, error) {
	s := Session{UserID: userID}
	err := r.DB.QueryRowContext(ctx, `SELECT name, email, picture, credentials_json, expires_at FROM user_sessions WHERE user_id = $1`,
		userID).Scan(&s.Name, &s.Email, &s.Picture, &s.CredentialsJSON, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get session for %s: %v", userID, err)
		return Session{}, err
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete session for %s: %v", userID, err)
	}
	return err
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, now)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete expired sessions: %v", err)
		return 0, err
	}
	return result.RowsAffected()
}
