package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/repository"
	"github.com/mmeshcher/carrental-system/internal/validation"
)

const defaultCarsLimit = 25

// CreateCarInput содержит поля нового автомобиля.
// ProviderID учитывается только для администратора.
// Границы DailyRate и Tier совпадают с MaxDailyRateCents и MaxCarTier.
type CreateCarInput struct {
	ProviderID      int64     `validate:"omitempty,gt=0"`
	LicensePlate    string    `validate:"required,max=20"`
	Brand           string    `validate:"required"`
	Model           string    `validate:"required"`
	Type            string    `validate:"required,oneof=sedan suv hatchback convertible truck van other"`
	Color           string    `validate:"required"`
	ManufactureDate time.Time `validate:"required"`
	DailyRate       float64   `validate:"gt=0,lte=1000000"`
	Tier            int       `validate:"gte=0,lte=100"`
}

// UpdateCarInput содержит изменяемые поля автомобиля.
type UpdateCarInput struct {
	Brand     *string  `validate:"omitempty,min=1"`
	Model     *string  `validate:"omitempty,min=1"`
	Color     *string  `validate:"omitempty,min=1"`
	DailyRate *float64 `validate:"omitempty,gt=0,lte=1000000"`
	Tier      *int     `validate:"omitempty,gte=0,lte=100"`
}

// CreateCar добавляет автомобиль в каталог.
func (s *Service) CreateCar(ctx context.Context, actor model.Actor, in CreateCarInput) (*model.Car, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var providerID int64
	switch actor.Kind {
	case model.ActorProvider:
		providerID = actor.ID
	case model.ActorAdmin:
		if in.ProviderID == 0 {
			return nil, fmt.Errorf("%w: provider id is required", model.ErrInvalidInput)
		}
		if _, err := s.store.GetProviderByID(ctx, in.ProviderID); err != nil {
			return nil, err
		}
		providerID = in.ProviderID
	default:
		return nil, fmt.Errorf("%w: %s is not allowed to add cars", model.ErrForbidden, actor)
	}

	car := model.Car{
		ProviderID:      providerID,
		LicensePlate:    in.LicensePlate,
		Brand:           in.Brand,
		Model:           in.Model,
		Type:            model.CarType(in.Type),
		Color:           in.Color,
		ManufactureDate: in.ManufactureDate.UTC(),
		DailyRateCents:  ToCents(in.DailyRate),
		Tier:            in.Tier,
		Available:       true,
	}

	id, err := s.store.CreateCar(ctx, &car)
	if err != nil {
		return nil, err
	}
	car.ID = id
	return &car, nil
}

// GetCar возвращает автомобиль по идентификатору.
func (s *Service) GetCar(ctx context.Context, id int64) (*model.Car, error) {
	return s.store.GetCar(ctx, id)
}

// ListCars возвращает страницу каталога.
func (s *Service) ListCars(ctx context.Context, f model.CarFilter) ([]model.Car, error) {
	if f.Limit <= 0 {
		f.Limit = defaultCarsLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListCars(ctx, f)
}

// UpdateCar изменяет автомобиль. Доступность этим методом не меняется.
func (s *Service) UpdateCar(ctx context.Context, actor model.Actor, id int64, in UpdateCarInput) (*model.Car, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var car *model.Car
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		car, err = tx.LockCar(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeCarOwner(actor, car, "update"); err != nil {
			return err
		}

		if in.Brand != nil {
			car.Brand = *in.Brand
		}
		if in.Model != nil {
			car.Model = *in.Model
		}
		if in.Color != nil {
			car.Color = *in.Color
		}
		if in.DailyRate != nil {
			car.DailyRateCents = ToCents(*in.DailyRate)
		}
		if in.Tier != nil {
			car.Tier = *in.Tier
		}
		return tx.UpdateCar(ctx, car)
	})
	if err != nil {
		return nil, err
	}
	return car, nil
}

// DeleteCar удаляет автомобиль вместе с завершёнными арендами.
// Пока у автомобиля есть незавершённые аренды, удаление запрещено.
func (s *Service) DeleteCar(ctx context.Context, actor model.Actor, id int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		car, err := tx.LockCar(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeCarOwner(actor, car, "delete"); err != nil {
			return err
		}

		open, err := tx.HasOpenRents(ctx, car.ID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: car %d has active or pending rents", model.ErrConflict, car.ID)
		}
		return tx.DeleteCar(ctx, car.ID)
	})
}

// RefreshAvailability пересчитывает кэш доступности для всех автомобилей
// и возвращает число исправленных записей.
func (s *Service) RefreshAvailability(ctx context.Context) (int, error) {
	ids, err := s.store.ListCarIDs(ctx)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}

		var changed bool
		err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			car, err := tx.LockCar(ctx, id)
			if err != nil {
				return err
			}
			open, err := tx.HasOpenRents(ctx, car.ID)
			if err != nil {
				return err
			}
			if car.Available == !open {
				return nil
			}
			changed = true
			return tx.SetCarAvailability(ctx, car.ID, !open)
		})
		if err != nil {
			s.logger.Warn("refresh car availability error", zap.Error(err), zap.Int64("carID", id))
			continue
		}
		if changed {
			fixed++
		}
	}

	return fixed, nil
}

func authorizeCarOwner(actor model.Actor, car *model.Car, action string) error {
	switch actor.Kind {
	case model.ActorAdmin:
		return nil
	case model.ActorProvider:
		if car.ProviderID == actor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not authorized to %s car %d", model.ErrForbidden, actor, action, car.ID)
}
