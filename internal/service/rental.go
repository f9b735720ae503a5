package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/repository"
)

// CreateRentInput содержит параметры бронирования.
// UserID учитывается только для администратора; 0 означает самого инициатора.
type CreateRentInput struct {
	UserID     int64
	CarID      int64
	StartDate  time.Time
	ReturnDate time.Time
}

// CreateRent бронирует автомобиль. Проверки лимита, уровня и пересечений
// выполняются в одной транзакции с вставкой аренды под блокировками
// пользователя и автомобиля.
func (s *Service) CreateRent(ctx context.Context, actor model.Actor, in CreateRentInput) (*model.Rent, error) {
	userID, err := bookingUserID(actor, in.UserID)
	if err != nil {
		return nil, err
	}
	if in.CarID <= 0 {
		return nil, fmt.Errorf("%w: car id is required", model.ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.ReturnDate.IsZero() {
		return nil, fmt.Errorf("%w: start date and return date are required", model.ErrInvalidInput)
	}

	days := RentalDays(in.StartDate, in.ReturnDate)
	if days <= 0 {
		return nil, fmt.Errorf("%w: return date %s must be after start date %s",
			model.ErrInvalidInput, in.ReturnDate.Format(time.RFC3339), in.StartDate.Format(time.RFC3339))
	}
	if days > MaxRentalDays {
		return nil, fmt.Errorf("%w: rental period of %d days exceeds the limit of %d days",
			model.ErrInvalidInput, days, MaxRentalDays)
	}

	var rent model.Rent
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		open, err := tx.CountOpenRentsByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if open >= MaxOpenRentsPerUser && !actor.IsAdmin() {
			return fmt.Errorf("%w: user %d already has %d active or pending rents", model.ErrConflict, user.ID, open)
		}

		car, err := tx.LockCar(ctx, in.CarID)
		if err != nil {
			return err
		}

		if user.Tier < car.Tier && !actor.IsAdmin() {
			return fmt.Errorf("%w: user tier %d is too low to rent car %d of tier %d",
				model.ErrForbidden, user.Tier, car.ID, car.Tier)
		}

		existing, err := tx.FindOverlappingRent(ctx, car.ID, in.StartDate, in.ReturnDate)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: car %d is unavailable, rent %d (%s) occupies %s - %s",
				model.ErrConflict, car.ID, existing.ID, existing.Status,
				existing.StartDate.Format(time.RFC3339), existing.ReturnDate.Format(time.RFC3339))
		}

		price, ok := RentPrice(days, car.DailyRateCents)
		if !ok {
			return fmt.Errorf("%w: price of %d days at daily rate %d cents is out of range",
				model.ErrInvalidInput, days, car.DailyRateCents)
		}

		rent = model.Rent{
			CarID:      car.ID,
			UserID:     user.ID,
			StartDate:  in.StartDate.UTC(),
			ReturnDate: in.ReturnDate.UTC(),
			Status:     model.RentStatusPending,
			PriceCents: price,
			CreatedAt:  s.now().UTC(),
		}
		if err := tx.InsertRent(ctx, &rent); err != nil {
			return err
		}

		return tx.SetCarAvailability(ctx, car.ID, false)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.RentEventCreated, rent)
	return &rent, nil
}

// CompleteRent завершает аренду: фиксирует фактическую дату возврата,
// начисляет штраф за просрочку, увеличивает траты пользователя на базовую
// стоимость и пересчитывает его уровень.
func (s *Service) CompleteRent(ctx context.Context, actor model.Actor, rentID int64, overrides model.RentPatch) (*model.CompletionResult, error) {
	if err := validatePatch(overrides); err != nil {
		return nil, err
	}

	peek, err := s.store.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeHolder(actor, peek, "complete"); err != nil {
		return nil, err
	}

	var res model.CompletionResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.LockUser(ctx, peek.UserID)
		if err != nil {
			return err
		}
		car, err := tx.LockCar(ctx, peek.CarID)
		if err != nil {
			return err
		}
		rent, err := tx.LockRent(ctx, rentID)
		if err != nil {
			return err
		}

		switch rent.Status {
		case model.RentStatusCompleted:
			return fmt.Errorf("%w: rent %d has already been completed", model.ErrConflict, rent.ID)
		case model.RentStatusCancelled:
			return fmt.Errorf("%w: rent %d is cancelled", model.ErrConflict, rent.ID)
		}

		now := s.now().UTC()
		daysLate := LateDays(rent.ReturnDate, now)
		lateFee := LateFee(car.Tier, daysLate)

		if rent.PriceCents > math.MaxInt64-user.TotalSpendCents {
			return fmt.Errorf("%w: total spend of user %d is out of range", model.ErrInvalidInput, user.ID)
		}
		spend := user.TotalSpendCents + rent.PriceCents
		if err := tx.SetUserSpend(ctx, user.ID, spend, TierForSpend(spend)); err != nil {
			return err
		}

		applyPatch(rent, overrides)
		rent.Status = model.RentStatusCompleted
		rent.ActualReturnDate = &now
		if err := tx.UpdateRent(ctx, rent); err != nil {
			return err
		}

		if err := refreshCarAvailability(ctx, tx, car.ID); err != nil {
			return err
		}

		res = model.CompletionResult{
			DaysLate:        daysLate,
			LateFeeCents:    lateFee,
			TotalPriceCents: rent.PriceCents + lateFee,
			CarTier:         car.Tier,
			Rent:            *rent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.RentEventCompleted, res.Rent)
	return &res, nil
}

// ConfirmRent переводит ожидающую аренду в активную. Только для администратора.
func (s *Service) ConfirmRent(ctx context.Context, actor model.Actor, rentID int64) (*model.Rent, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: %s is not allowed to confirm rents, admin access required", model.ErrForbidden, actor)
	}

	peek, err := s.store.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}

	var rent *model.Rent
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockCar(ctx, peek.CarID); err != nil {
			return err
		}
		rent, err = tx.LockRent(ctx, rentID)
		if err != nil {
			return err
		}
		if rent.Status != model.RentStatusPending {
			return fmt.Errorf("%w: only pending rents can be confirmed, rent %d is %s", model.ErrConflict, rent.ID, rent.Status)
		}

		rent.Status = model.RentStatusActive
		if err := tx.UpdateRent(ctx, rent); err != nil {
			return err
		}
		return tx.SetCarAvailability(ctx, rent.CarID, false)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.RentEventConfirmed, *rent)
	return rent, nil
}

// UpdateRent изменяет заметки и дополнительные сборы аренды.
// Статус и стоимость этим методом не меняются.
func (s *Service) UpdateRent(ctx context.Context, actor model.Actor, rentID int64, patch model.RentPatch) (*model.Rent, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	peek, err := s.store.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeHolder(actor, peek, "update"); err != nil {
		return nil, err
	}

	var rent *model.Rent
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rent, err = tx.LockRent(ctx, rentID)
		if err != nil {
			return err
		}
		if rent.Status == model.RentStatusCancelled {
			return fmt.Errorf("%w: rent %d is cancelled", model.ErrConflict, rent.ID)
		}
		applyPatch(rent, patch)
		return tx.UpdateRent(ctx, rent)
	})
	if err != nil {
		return nil, err
	}
	return rent, nil
}

// DeleteRent отменяет ожидающую аренду. Запись сохраняется со статусом cancelled,
// доступность автомобиля пересчитывается в той же транзакции.
func (s *Service) DeleteRent(ctx context.Context, actor model.Actor, rentID int64) error {
	peek, err := s.store.GetRent(ctx, rentID)
	if err != nil {
		return err
	}
	if err := authorizeHolder(actor, peek, "delete"); err != nil {
		return err
	}

	var rent *model.Rent
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockCar(ctx, peek.CarID); err != nil {
			return err
		}
		rent, err = tx.LockRent(ctx, rentID)
		if err != nil {
			return err
		}
		if rent.Status != model.RentStatusPending {
			return fmt.Errorf("%w: only pending rents can be deleted, rent %d is %s", model.ErrConflict, rent.ID, rent.Status)
		}

		rent.Status = model.RentStatusCancelled
		if err := tx.UpdateRent(ctx, rent); err != nil {
			return err
		}
		return refreshCarAvailability(ctx, tx, rent.CarID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, model.RentEventCancelled, *rent)
	return nil
}

// GetRent возвращает аренду, видимую инициатору.
func (s *Service) GetRent(ctx context.Context, actor model.Actor, rentID int64) (*model.Rent, error) {
	rent, err := s.store.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}

	visible, err := s.canView(ctx, actor, rent)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("%w: rent %d", model.ErrNotFound, rentID)
	}
	return rent, nil
}

// ListRents возвращает аренды, видимые инициатору: свои для пользователя,
// аренды своих автомобилей для провайдера, все для администратора.
func (s *Service) ListRents(ctx context.Context, actor model.Actor, carID *int64) ([]model.Rent, error) {
	filter := model.RentFilter{CarID: carID}

	switch actor.Kind {
	case model.ActorAdmin:
	case model.ActorUser:
		id := actor.ID
		filter.UserID = &id
	case model.ActorProvider:
		id := actor.ID
		filter.ProviderID = &id
	default:
		return nil, fmt.Errorf("%w: unknown actor kind %s", model.ErrUnauthorized, actor.Kind)
	}

	return s.store.ListRents(ctx, filter)
}

func (s *Service) canView(ctx context.Context, actor model.Actor, rent *model.Rent) (bool, error) {
	switch actor.Kind {
	case model.ActorAdmin:
		return true, nil
	case model.ActorUser:
		return rent.UserID == actor.ID, nil
	case model.ActorProvider:
		car, err := s.store.GetCar(ctx, rent.CarID)
		if err != nil {
			return false, err
		}
		return car.ProviderID == actor.ID, nil
	default:
		return false, nil
	}
}

func bookingUserID(actor model.Actor, requested int64) (int64, error) {
	switch actor.Kind {
	case model.ActorUser:
		return actor.ID, nil
	case model.ActorAdmin:
		if requested > 0 {
			return requested, nil
		}
		return actor.ID, nil
	case model.ActorProvider:
		return 0, fmt.Errorf("%w: providers cannot book rents", model.ErrForbidden)
	default:
		return 0, fmt.Errorf("%w: unknown actor kind %s", model.ErrUnauthorized, actor.Kind)
	}
}

func authorizeHolder(actor model.Actor, rent *model.Rent, action string) error {
	switch actor.Kind {
	case model.ActorAdmin:
		return nil
	case model.ActorUser:
		if rent.UserID == actor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not authorized to %s rent %d", model.ErrForbidden, actor, action, rent.ID)
}

func validatePatch(p model.RentPatch) error {
	if p.AdditionalChargesCents == nil {
		return nil
	}
	if c := *p.AdditionalChargesCents; c < 0 || c > MaxChargeCents {
		return fmt.Errorf("%w: additional charges must be between 0 and %d cents", model.ErrInvalidInput, MaxChargeCents)
	}
	return nil
}

func applyPatch(rent *model.Rent, p model.RentPatch) {
	if p.Notes != nil {
		rent.Notes = *p.Notes
	}
	if p.AdditionalChargesCents != nil {
		rent.AdditionalChargesCents = *p.AdditionalChargesCents
	}
}

// refreshCarAvailability пересчитывает кэш доступности по незавершённым арендам.
// Вызывается под блокировкой автомобиля.
func refreshCarAvailability(ctx context.Context, tx repository.Tx, carID int64) error {
	open, err := tx.HasOpenRents(ctx, carID)
	if err != nil {
		return err
	}
	return tx.SetCarAvailability(ctx, carID, !open)
}
