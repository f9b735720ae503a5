package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/validation"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid credentials", model.ErrUnauthorized)

// RegisterUserInput содержит данные регистрации пользователя.
type RegisterUserInput struct {
	Name            string `validate:"required"`
	TelephoneNumber string `validate:"required,telephone"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6,max=72"`
	Role            string `validate:"omitempty,oneof=user admin"`
}

// RegisterProviderInput содержит данные регистрации провайдера.
type RegisterProviderInput struct {
	Name            string `validate:"required"`
	Address         string `validate:"required"`
	TelephoneNumber string `validate:"required,telephone"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6,max=72"`
}

// Session описывает выданный токен.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	role := model.RoleUser
	if in.Role != "" {
		role = model.Role(in.Role)
	}

	return s.store.CreateUser(ctx, &model.User{
		Name:            in.Name,
		TelephoneNumber: in.TelephoneNumber,
		Email:           normalizeEmail(in.Email),
		PasswordHash:    hash,
		Role:            role,
	})
}

// RegisterProvider регистрирует нового провайдера.
func (s *Service) RegisterProvider(ctx context.Context, in RegisterProviderInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	return s.store.CreateProvider(ctx, &model.Provider{
		Name:            in.Name,
		Address:         in.Address,
		TelephoneNumber: in.TelephoneNumber,
		Email:           normalizeEmail(in.Email),
		PasswordHash:    hash,
	})
}

// LoginUser проверяет email и пароль пользователя и выдаёт токен сессии.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return s.issue(ctx, auth.Subject{Kind: auth.SubjectUser, ID: u.ID})
}

// LoginProvider проверяет email и пароль провайдера и выдаёт токен сессии.
func (s *Service) LoginProvider(ctx context.Context, email, password string) (*Session, error) {
	p, err := s.store.GetProviderByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return s.issue(ctx, auth.Subject{Kind: auth.SubjectProvider, ID: p.ID})
}

// Logout отзывает токен сессии.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ResolveActor определяет инициатора запроса по токену сессии.
func (s *Service) ResolveActor(ctx context.Context, token string) (model.Actor, error) {
	subject, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return model.Actor{}, err
	}

	switch subject.Kind {
	case auth.SubjectUser:
		u, err := s.store.GetUserByID(ctx, subject.ID)
		if err != nil {
			return model.Actor{}, subjectLookupError(err, "user")
		}
		return model.UserActor(u.ID, u.Role), nil
	case auth.SubjectProvider:
		p, err := s.store.GetProviderByID(ctx, subject.ID)
		if err != nil {
			return model.Actor{}, subjectLookupError(err, "provider")
		}
		return model.ProviderActor(p.ID), nil
	default:
		return model.Actor{}, fmt.Errorf("%w: unknown subject kind %q", model.ErrUnauthorized, subject.Kind)
	}
}

// GetUser возвращает профиль пользователя.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// GetProvider возвращает профиль провайдера.
func (s *Service) GetProvider(ctx context.Context, id int64) (*model.Provider, error) {
	return s.store.GetProviderByID(ctx, id)
}

func (s *Service) issue(ctx context.Context, subject auth.Subject) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

func subjectLookupError(err error, kind string) error {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: %s not found", model.ErrUnauthorized, kind)
	}
	return err
}

func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
