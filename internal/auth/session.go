package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/carrental-system/internal/model"
)

const defaultStoreTimeout = 3 * time.Second

// SessionStore хранит список разрешённых сессий.
// owner связывает сессию с её владельцем (Subject.Key) для массового отзыва.
type SessionStore interface {
	Add(ctx context.Context, jti, owner string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
	Remove(ctx context.Context, jti string) error
	RemoveOwner(ctx context.Context, owner string) error
}

// Manager объединяет выпуск токенов и список разрешённых сессий.
// Каждое обращение к хранилищу ограничено timeout, сбой хранилища
// возвращается как model.ErrTransient.
type Manager struct {
	tokens  *TokenManager
	store   SessionStore
	timeout time.Duration
}

// NewManager создаёт менеджер сессий. timeout <= 0 заменяется значением по умолчанию.
func NewManager(tokens *TokenManager, store SessionStore, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Manager{tokens: tokens, store: store, timeout: timeout}
}

// Issue выпускает токен и регистрирует сессию.
func (m *Manager) Issue(ctx context.Context, subject Subject) (string, time.Time, error) {
	token, jti, expiresAt, err := m.tokens.Generate(subject)
	if err != nil {
		return "", time.Time{}, err
	}
	err = m.call(ctx, "store session", func(ctx context.Context) error {
		return m.store.Add(ctx, jti, subject.Key(), expiresAt)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Resolve проверяет токен и наличие сессии в списке разрешённых.
func (m *Manager) Resolve(ctx context.Context, token string) (Subject, error) {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return Subject{}, err
	}

	var ok bool
	err = m.call(ctx, "check session", func(ctx context.Context) error {
		var err error
		ok, err = m.store.Contains(ctx, claims.ID)
		return err
	})
	if err != nil {
		return Subject{}, err
	}
	if !ok {
		return Subject{}, fmt.Errorf("%w: token has been invalidated", model.ErrUnauthorized)
	}

	return SubjectOf(claims)
}

// Revoke удаляет сессию токена из списка разрешённых.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return err
	}
	return m.call(ctx, "remove session", func(ctx context.Context) error {
		return m.store.Remove(ctx, claims.ID)
	})
}

// RevokeSubject удаляет все сессии владельца.
func (m *Manager) RevokeSubject(ctx context.Context, subject Subject) error {
	return m.call(ctx, "remove subject sessions", func(ctx context.Context) error {
		return m.store.RemoveOwner(ctx, subject.Key())
	})
}

func (m *Manager) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrTransient) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrTransient, op, err)
}
