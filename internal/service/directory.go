package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/repository"
	"github.com/mmeshcher/carrental-system/internal/validation"
)

// UpdateProviderInput содержит изменяемые поля провайдера.
type UpdateProviderInput struct {
	Name            *string `validate:"omitempty,min=1"`
	Address         *string `validate:"omitempty,min=1"`
	TelephoneNumber *string `validate:"omitempty,telephone"`
}

// ListProviders возвращает справочник провайдеров.
func (s *Service) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return s.store.ListProviders(ctx)
}

// GetProviderWithCars возвращает провайдера и все его автомобили.
func (s *Service) GetProviderWithCars(ctx context.Context, id int64) (*model.Provider, []model.Car, error) {
	p, err := s.store.GetProviderByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	cars, err := s.store.ListCars(ctx, model.CarFilter{ProviderID: &id})
	if err != nil {
		return nil, nil, err
	}
	return p, cars, nil
}

// UpdateProvider изменяет данные провайдера. Доступно только администратору.
func (s *Service) UpdateProvider(ctx context.Context, actor model.Actor, id int64, in UpdateProviderInput) (*model.Provider, error) {
	if err := requireAdmin(actor, "update providers"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var p *model.Provider
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		p, err = tx.LockProvider(ctx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Address != nil {
			p.Address = *in.Address
		}
		if in.TelephoneNumber != nil {
			p.TelephoneNumber = *in.TelephoneNumber
		}
		return tx.UpdateProvider(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProvider удаляет провайдера вместе с автомобилями и их завершёнными арендами
// и возвращает число удалённых автомобилей. Сессии провайдера отзываются.
func (s *Service) DeleteProvider(ctx context.Context, actor model.Actor, id int64) (int, error) {
	if err := requireAdmin(actor, "delete providers"); err != nil {
		return 0, err
	}

	var removed int
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockProvider(ctx, id); err != nil {
			return err
		}
		cars, err := tx.LockProviderCars(ctx, id)
		if err != nil {
			return err
		}
		for _, car := range cars {
			open, err := tx.HasOpenRents(ctx, car.ID)
			if err != nil {
				return err
			}
			if open {
				return fmt.Errorf("%w: car %d has active or pending rents", model.ErrConflict, car.ID)
			}
		}
		removed = len(cars)
		return tx.DeleteProvider(ctx, id)
	})
	if err != nil {
		return 0, err
	}

	s.revokeSessions(ctx, auth.Subject{Kind: auth.SubjectProvider, ID: id})
	return removed, nil
}

// ListUsers возвращает учётные записи с ролью role. Доступно только администратору.
func (s *Service) ListUsers(ctx context.Context, actor model.Actor, role model.Role) ([]model.User, error) {
	if err := requireAdmin(actor, "list accounts"); err != nil {
		return nil, err
	}
	return s.store.ListUsersByRole(ctx, role)
}

// DeleteUser удаляет учётную запись с ролью role вместе с историей аренд
// и отзывает её сессии. Администратор не может удалить сам себя,
// пользователь с незавершёнными арендами не удаляется.
func (s *Service) DeleteUser(ctx context.Context, actor model.Actor, id int64, role model.Role) error {
	if err := requireAdmin(actor, "delete accounts"); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete own account", model.ErrInvalidInput)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		if u.Role != role {
			return fmt.Errorf("%w: account %d is not %s", model.ErrInvalidInput, id, role)
		}

		open, err := tx.CountOpenRentsByUser(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: account %d has %d unfinished rents", model.ErrConflict, id, open)
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}

	s.revokeSessions(ctx, auth.Subject{Kind: auth.SubjectUser, ID: id})
	return nil
}

// revokeSessions отзывает сессии удалённой учётной записи. ResolveActor всё равно
// отклонит их токены, поэтому ошибка только логируется.
func (s *Service) revokeSessions(ctx context.Context, subject auth.Subject) {
	if err := s.sessions.RevokeSubject(ctx, subject); err != nil {
		s.logger.Warn("revoke sessions error",
			zap.Error(err),
			zap.String("subject", subject.Key()),
		)
	}
}

func requireAdmin(actor model.Actor, action string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: %s is not allowed to %s", model.ErrForbidden, actor, action)
	}
	return nil
}
