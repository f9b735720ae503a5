package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/model"
)

func strPtr(s string) *string { return &s }

func TestListProviders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateProvider(ctx, &model.Provider{Name: "Second", Email: "second@example.com"})
	require.NoError(t, err)

	providers, err := f.svc.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, f.provider.ID, providers[0].ID)
}

func TestGetProviderWithCars(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Больше, чем страница каталога по умолчанию.
	for i := 0; i < defaultCarsLimit+2; i++ {
		f.createCar(t, 0, 1000)
	}

	p, cars, err := f.svc.GetProviderWithCars(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cars Inc", p.Name)
	assert.Len(t, cars, defaultCarsLimit+2)

	_, _, err = f.svc.GetProviderWithCars(ctx, 9999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.UpdateProvider(ctx, f.admin, f.provider.ID, UpdateProviderInput{
		Name:            strPtr("Renamed"),
		TelephoneNumber: strPtr("123-4567890"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)

	stored, err := f.store.GetProviderByID(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, "123-4567890", stored.TelephoneNumber)

	for _, actor := range []model.Actor{f.user, f.provider} {
		_, err = f.svc.UpdateProvider(ctx, actor, f.provider.ID, UpdateProviderInput{Name: strPtr("x")})
		assert.ErrorIs(t, err, model.ErrForbidden)
	}

	_, err = f.svc.UpdateProvider(ctx, f.admin, f.provider.ID, UpdateProviderInput{TelephoneNumber: strPtr("12345")})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.svc.UpdateProvider(ctx, f.admin, 9999, UpdateProviderInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createCar(t, 0, 1000)
	second := f.createCar(t, 0, 1000)

	rent, err := book(f, f.user, 0, first, date(2024, 1, 1), date(2024, 1, 4))
	require.NoError(t, err)

	token, _, err := f.svc.sessions.Issue(ctx, auth.Subject{Kind: auth.SubjectProvider, ID: f.provider.ID})
	require.NoError(t, err)

	_, err = f.svc.DeleteProvider(ctx, f.provider, f.provider.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.DeleteProvider(ctx, f.admin, f.provider.ID)
	assert.ErrorIs(t, err, model.ErrConflict)
	f.car(t, second)

	_, err = f.svc.CompleteRent(ctx, f.admin, rent.ID, model.RentPatch{})
	require.NoError(t, err)

	removed, err := f.svc.DeleteProvider(ctx, f.admin, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = f.store.GetProviderByID(ctx, f.provider.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	for _, id := range []int64{first, second} {
		_, err = f.store.GetCar(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
	}
	_, err = f.store.GetRent(ctx, rent.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.ResolveActor(ctx, token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.svc.DeleteProvider(ctx, f.admin, f.provider.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	users, err := f.svc.ListUsers(ctx, f.admin, model.RoleUser)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, f.user.ID, users[0].ID)
	assert.Equal(t, f.other.ID, users[1].ID)

	admins, err := f.svc.ListUsers(ctx, f.admin, model.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, f.admin.ID, admins[0].ID)

	_, err = f.svc.ListUsers(ctx, f.user, model.RoleUser)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.ListUsers(ctx, f.provider, model.RoleAdmin)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carID := f.createCar(t, 0, 1000)

	rent, err := book(f, f.user, 0, carID, date(2024, 1, 1), date(2024, 1, 4))
	require.NoError(t, err)

	token, _, err := f.svc.sessions.Issue(ctx, auth.Subject{Kind: auth.SubjectUser, ID: f.user.ID})
	require.NoError(t, err)

	err = f.svc.DeleteUser(ctx, f.other, f.user.ID, model.RoleUser)
	assert.ErrorIs(t, err, model.ErrForbidden)

	err = f.svc.DeleteUser(ctx, f.admin, f.user.ID, model.RoleUser)
	assert.ErrorIs(t, err, model.ErrConflict)
	f.userRecord(t, f.user.ID)

	// Сессия не отзывается, пока удаление не состоялось.
	actor, err := f.svc.ResolveActor(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.user, actor)

	_, err = f.svc.CompleteRent(ctx, f.admin, rent.ID, model.RentPatch{})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, f.user.ID, model.RoleUser))

	_, err = f.store.GetUserByID(ctx, f.user.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.store.GetRent(ctx, rent.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, f.car(t, carID).Available)

	_, err = f.svc.ResolveActor(ctx, token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	err = f.svc.DeleteUser(ctx, f.admin, f.user.ID, model.RoleUser)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteUser_RoleAndSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteUser(ctx, f.admin, f.admin.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	err = f.svc.DeleteUser(ctx, f.admin, f.other.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	second := model.UserActor(f.createUser(t, "second-admin@example.com", model.RoleAdmin), model.RoleAdmin)
	err = f.svc.DeleteUser(ctx, f.admin, second.ID, model.RoleUser)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, second.ID, model.RoleAdmin))
	_, err = f.store.GetUserByID(ctx, second.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
