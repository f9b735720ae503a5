// Package auth выдаёт и проверяет токены сессий.
// Токен — JWT (HS256), действительный только пока его идентификатор (jti)
// находится в списке разрешённых сессий.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/carrental-system/internal/model"
)

// SubjectKind различает владельцев токена.
type SubjectKind string

const (
	SubjectUser     SubjectKind = "user"
	SubjectProvider SubjectKind = "provider"
)

// Subject — владелец сессии.
type Subject struct {
	Kind SubjectKind
	ID   int64
}

// Key возвращает строковый идентификатор владельца, например "user:5".
func (s Subject) Key() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Claims содержит утверждения токена сессии.
type Claims struct {
	Type SubjectKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager подписывает и разбирает токены.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт TokenManager с указанным ключом и сроком жизни токена.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate выпускает токен и возвращает его вместе с jti и моментом истечения.
func (m *TokenManager) Generate(subject Subject) (token string, jti string, expiresAt time.Time, err error) {
	now := m.now()
	expiresAt = now.Add(m.ttl)
	jti = uuid.NewString()

	claims := Claims{
		Type: subject.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject.ID, 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, jti, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", model.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", model.ErrUnauthorized)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, fmt.Errorf("%w: invalid token", model.ErrUnauthorized)
	}
	return claims, nil
}

// SubjectOf извлекает владельца из утверждений.
func SubjectOf(c *Claims) (Subject, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: invalid token subject", model.ErrUnauthorized)
	}

	kind := c.Type
	switch kind {
	case SubjectProvider:
	case SubjectUser, "":
		kind = SubjectUser
	default:
		return Subject{}, fmt.Errorf("%w: unknown token type %q", model.ErrUnauthorized, c.Type)
	}

	return Subject{Kind: kind, ID: id}, nil
}
