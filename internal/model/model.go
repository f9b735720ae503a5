// Package model содержит доменные сущности сервиса аренды автомобилей.
package model

import "time"

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User представляет арендатора или администратора.
type User struct {
	ID              int64
	Name            string
	TelephoneNumber string
	Email           string
	PasswordHash    []byte
	Role            Role
	TotalSpendCents int64
	Tier            int
	CreatedAt       time.Time
}

// Provider представляет компанию, размещающую автомобили в каталоге.
type Provider struct {
	ID              int64
	Name            string
	Address         string
	TelephoneNumber string
	Email           string
	PasswordHash    []byte
	CreatedAt       time.Time
}

// CarType описывает тип кузова.
type CarType string

const (
	CarTypeSedan       CarType = "sedan"
	CarTypeSUV         CarType = "suv"
	CarTypeHatchback   CarType = "hatchback"
	CarTypeConvertible CarType = "convertible"
	CarTypeTruck       CarType = "truck"
	CarTypeVan         CarType = "van"
	CarTypeOther       CarType = "other"
)

// Car описывает автомобиль каталога.
//
// Available является денормализованным кэшем: источником истины служит наличие
// незавершённых аренд автомобиля.
type Car struct {
	ID              int64
	ProviderID      int64
	LicensePlate    string
	Brand           string
	Model           string
	Type            CarType
	Color           string
	ManufactureDate time.Time
	DailyRateCents  int64
	Tier            int
	Available       bool
	CreatedAt       time.Time
}

// CarFilter задаёт параметры выборки автомобилей.
type CarFilter struct {
	ProviderID *int64
	Available  *bool
	MaxTier    *int
	Offset     int
	Limit      int
}

// RentStatus описывает состояние аренды.
type RentStatus string

const (
	RentStatusPending   RentStatus = "pending"
	RentStatusActive    RentStatus = "active"
	RentStatusCompleted RentStatus = "completed"
	RentStatusCancelled RentStatus = "cancelled"
)

// IsOpen сообщает, занимает ли аренда в этом статусе автомобиль.
func (s RentStatus) IsOpen() bool {
	return s == RentStatusPending || s == RentStatusActive
}

// OpenRentStatuses перечисляет незавершённые статусы.
var OpenRentStatuses = []RentStatus{RentStatusPending, RentStatusActive}

// Rent описывает бронирование автомобиля пользователем.
type Rent struct {
	ID                     int64
	CarID                  int64
	UserID                 int64
	StartDate              time.Time
	ReturnDate             time.Time
	ActualReturnDate       *time.Time
	Status                 RentStatus
	PriceCents             int64
	AdditionalChargesCents int64
	Notes                  string
	CreatedAt              time.Time
}

// Overlaps проверяет пересечение полуинтервалов [StartDate, ReturnDate).
func (r Rent) Overlaps(start, end time.Time) bool {
	return r.StartDate.Before(end) && start.Before(r.ReturnDate)
}

// RentFilter задаёт параметры выборки аренд. Пустые поля не фильтруют.
type RentFilter struct {
	UserID     *int64
	CarID      *int64
	ProviderID *int64
}

// RentPatch содержит изменяемые поля аренды.
type RentPatch struct {
	Notes                  *string
	AdditionalChargesCents *int64
}

// CompletionResult описывает итог возврата автомобиля.
type CompletionResult struct {
	DaysLate        int64
	LateFeeCents    int64
	TotalPriceCents int64
	CarTier         int
	Rent            Rent
}
