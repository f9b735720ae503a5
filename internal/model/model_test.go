package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRent_Overlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	rent := Rent{StartDate: day(10), ReturnDate: day(14)}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"same window", day(10), day(14), true},
		{"inside", day(11), day(12), true},
		{"covers", day(1), day(20), true},
		{"starts before ends inside", day(8), day(11), true},
		{"starts inside ends after", day(13), day(16), true},
		{"ends at start", day(8), day(10), false},
		{"starts at return", day(14), day(16), false},
		{"far before", day(1), day(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rent.Overlaps(tt.start, tt.end))
		})
	}
}

func TestRentStatus_IsOpen(t *testing.T) {
	assert.True(t, RentStatusPending.IsOpen())
	assert.True(t, RentStatusActive.IsOpen())
	assert.False(t, RentStatusCompleted.IsOpen())
	assert.False(t, RentStatusCancelled.IsOpen())
}

func TestActor(t *testing.T) {
	assert.Equal(t, Actor{Kind: ActorUser, ID: 1}, UserActor(1, RoleUser))
	assert.Equal(t, Actor{Kind: ActorAdmin, ID: 2}, UserActor(2, RoleAdmin))
	assert.Equal(t, Actor{Kind: ActorProvider, ID: 3}, ProviderActor(3))

	assert.True(t, UserActor(2, RoleAdmin).IsAdmin())
	assert.False(t, ProviderActor(2).IsAdmin())

	assert.Equal(t, "provider 3", ProviderActor(3).String())
	assert.Equal(t, "ActorKind(9)", ActorKind(9).String())
}

func TestErrorKindsWrap(t *testing.T) {
	err := fmt.Errorf("%w: car 7 is already booked", ErrConflict)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}
