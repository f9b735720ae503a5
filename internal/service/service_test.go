package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/mmeshcher/carrental-system/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.RentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.RentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []model.RentEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]model.RentEventType, 0, len(p.events))
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

// fixture — сервис поверх in-memory хранилища с заранее созданными участниками.
type fixture struct {
	svc       *Service
	store     *repository.MemoryRepository
	publisher *recordingPublisher
	now       time.Time
	plates    int

	user     model.Actor
	other    model.Actor
	admin    model.Actor
	provider model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryRepository(2 * time.Second)
	sessions := auth.NewManager(auth.NewTokenManager("test-secret", time.Hour), auth.NewMemorySessionStore(), time.Second)
	publisher := &recordingPublisher{}

	f := &fixture{
		svc:       NewService(store, sessions, publisher, nil),
		store:     store,
		publisher: publisher,
		now:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.now }

	f.user = model.UserActor(f.createUser(t, "user@example.com", model.RoleUser), model.RoleUser)
	f.other = model.UserActor(f.createUser(t, "other@example.com", model.RoleUser), model.RoleUser)
	f.admin = model.UserActor(f.createUser(t, "admin@example.com", model.RoleAdmin), model.RoleAdmin)

	providerID, err := store.CreateProvider(ctx, &model.Provider{Name: "Cars Inc", Email: "cars@example.com"})
	require.NoError(t, err)
	f.provider = model.ProviderActor(providerID)

	return f
}

func (f *fixture) createUser(t *testing.T, email string, role model.Role) int64 {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), &model.User{Name: email, Email: email, Role: role})
	require.NoError(t, err)
	return id
}

// createCar добавляет автомобиль с суточной ставкой rate (в денежных единицах).
func (f *fixture) createCar(t *testing.T, tier int, rate float64) int64 {
	t.Helper()
	f.plates++
	car, err := f.svc.CreateCar(context.Background(), f.provider, CreateCarInput{
		LicensePlate:    fmt.Sprintf("P-%03d", f.plates),
		Brand:           "Kia",
		Model:           "Rio",
		Type:            "sedan",
		Color:           "red",
		ManufactureDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		DailyRate:       rate,
		Tier:            tier,
	})
	require.NoError(t, err)
	return car.ID
}

func (f *fixture) car(t *testing.T, id int64) *model.Car {
	t.Helper()
	car, err := f.store.GetCar(context.Background(), id)
	require.NoError(t, err)
	return car
}

func (f *fixture) userRecord(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func book(f *fixture, actor model.Actor, userID, carID int64, start, end time.Time) (*model.Rent, error) {
	return f.svc.CreateRent(context.Background(), actor, CreateRentInput{
		UserID:     userID,
		CarID:      carID,
		StartDate:  start,
		ReturnDate: end,
	})
}

func TestNewService_NilLogger(t *testing.T) {
	svc := NewService(repository.NewMemoryRepository(time.Second), nil, nil, nil)
	require.NotNil(t, svc.logger)
	require.NoError(t, svc.Close())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	carID := f.createCar(t, 0, 1000)

	_, err := book(f, f.user, 0, carID, date(2024, 1, 1), date(2024, 1, 4))
	require.NoError(t, err)
}
