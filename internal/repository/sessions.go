package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLSessionStore хранит идентификаторы действующих токенов в таблице valid_tokens.
type SQLSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLSessionStore создаёт хранилище сессий поверх db.
func NewSQLSessionStore(db *sql.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db, now: time.Now}
}

// Add регистрирует токен владельца owner до момента expiresAt.
func (s *SQLSessionStore) Add(ctx context.Context, jti, owner string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO valid_tokens (jti, owner, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (jti) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at`,
		jti, owner, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("add session: %w", err)
	}
	return nil
}

// Contains сообщает, действует ли токен.
func (s *SQLSessionStore) Contains(ctx context.Context, jti string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM valid_tokens WHERE jti = $1 AND expires_at > $2)`,
		jti, s.now().UTC(),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return ok, nil
}

// Remove отзывает токен.
func (s *SQLSessionStore) Remove(ctx context.Context, jti string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM valid_tokens WHERE jti = $1`, jti); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// RemoveOwner отзывает все токены владельца.
func (s *SQLSessionStore) RemoveOwner(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM valid_tokens WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("remove owner sessions: %w", err)
	}
	return nil
}

// PurgeExpired удаляет истёкшие токены и возвращает их количество.
func (s *SQLSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM valid_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}
