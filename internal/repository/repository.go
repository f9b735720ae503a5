// Package repository содержит реализации хранилища сервиса аренды: PostgreSQL и in-memory.
package repository

import (
	"context"
	"time"

	"github.com/mmeshcher/carrental-system/internal/model"
)

// Tx предоставляет транзакционный доступ к данным. Методы Lock* блокируют запись до конца транзакции.
// Блокировки берутся в порядке провайдер → пользователь → автомобиль → аренда.
type Tx interface {
	LockProvider(ctx context.Context, id int64) (*model.Provider, error)
	LockUser(ctx context.Context, id int64) (*model.User, error)
	LockCar(ctx context.Context, id int64) (*model.Car, error)
	// LockProviderCars блокирует все автомобили провайдера в порядке возрастания id.
	LockProviderCars(ctx context.Context, providerID int64) ([]model.Car, error)
	LockRent(ctx context.Context, id int64) (*model.Rent, error)

	CountOpenRentsByUser(ctx context.Context, userID int64) (int, error)
	// FindOverlappingRent возвращает незавершённую аренду автомобиля, пересекающую [start, end), или nil.
	FindOverlappingRent(ctx context.Context, carID int64, start, end time.Time) (*model.Rent, error)
	HasOpenRents(ctx context.Context, carID int64) (bool, error)

	InsertRent(ctx context.Context, rent *model.Rent) error
	UpdateRent(ctx context.Context, rent *model.Rent) error

	SetCarAvailability(ctx context.Context, carID int64, available bool) error
	UpdateCar(ctx context.Context, car *model.Car) error
	DeleteCar(ctx context.Context, carID int64) error

	SetUserSpend(ctx context.Context, userID int64, spendCents int64, tier int) error
	// DeleteUser удаляет пользователя вместе с историей его аренд.
	DeleteUser(ctx context.Context, userID int64) error

	UpdateProvider(ctx context.Context, p *model.Provider) error
	// DeleteProvider удаляет провайдера, его автомобили и их аренды.
	// Возвращает model.ErrConflict, если у автомобилей есть незавершённые аренды.
	DeleteProvider(ctx context.Context, providerID int64) error
}

// TxFunc выполняется внутри транзакции. При ошибке изменения откатываются.
type TxFunc func(ctx context.Context, tx Tx) error
