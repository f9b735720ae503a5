// Package service реализует бизнес-логику сервиса аренды автомобилей:
// жизненный цикл аренды, каталог и идентификацию.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/repository"
)

// Store описывает контракт доступа к данным, используемый сервисом.
type Store interface {
	Close() error
	InTx(ctx context.Context, fn repository.TxFunc) error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateProvider(ctx context.Context, p *model.Provider) (int64, error)
	GetProviderByID(ctx context.Context, id int64) (*model.Provider, error)
	GetProviderByEmail(ctx context.Context, email string) (*model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)

	CreateCar(ctx context.Context, c *model.Car) (int64, error)
	GetCar(ctx context.Context, id int64) (*model.Car, error)
	ListCars(ctx context.Context, f model.CarFilter) ([]model.Car, error)
	ListCarIDs(ctx context.Context) ([]int64, error)

	GetRent(ctx context.Context, id int64) (*model.Rent, error)
	ListRents(ctx context.Context, f model.RentFilter) ([]model.Rent, error)
}

// Sessions выдаёт, проверяет и отзывает токены сессий.
type Sessions interface {
	Issue(ctx context.Context, subject auth.Subject) (string, time.Time, error)
	Resolve(ctx context.Context, token string) (auth.Subject, error)
	Revoke(ctx context.Context, token string) error
	RevokeSubject(ctx context.Context, subject auth.Subject) error
}

// EventPublisher публикует события жизненного цикла аренды.
type EventPublisher interface {
	Publish(ctx context.Context, event model.RentEvent) error
}

// Service содержит бизнес-логику сервиса аренды.
type Service struct {
	store     Store
	sessions  Sessions
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт сервис. publisher и logger могут быть nil.
func NewService(store Store, sessions Sessions, publisher EventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Service) publish(ctx context.Context, typ model.RentEventType, rent model.Rent) {
	if s.publisher == nil {
		return
	}
	event := model.RentEvent{
		Type:       typ,
		RentID:     rent.ID,
		CarID:      rent.CarID,
		UserID:     rent.UserID,
		Status:     rent.Status,
		PriceCents: rent.PriceCents,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish rent event error",
			zap.Error(err),
			zap.String("type", string(typ)),
			zap.Int64("rentID", rent.ID),
		)
	}
}
