package service

import (
	"math"
	"time"
)

const (
	// MaxOpenRentsPerUser ограничивает число незавершённых аренд обычного пользователя.
	MaxOpenRentsPerUser = 3

	// TierSpendStepCents — сумма трат, открывающая следующий уровень (10000 единиц).
	TierSpendStepCents int64 = 10000 * 100

	// LateFeeBaseCents — штраф за день просрочки для автомобиля уровня 0 (500 единиц).
	LateFeeBaseCents int64 = 500 * 100

	// Верхние границы денежных сумм и сроков. Вместе они гарантируют,
	// что стоимость аренды и штраф помещаются в int64.
	MaxDailyRateCents int64 = 1_000_000 * 100
	MaxChargeCents    int64 = 100_000_000 * 100
	MaxRentalDays     int64 = 3660
	MaxCarTier              = 100

	secondsPerDay = 24 * 60 * 60
)

// TierForSpend вычисляет уровень пользователя по сумме его трат.
func TierForSpend(spendCents int64) int {
	if spendCents <= 0 {
		return 0
	}
	return int(spendCents / TierSpendStepCents)
}

// RentalDays возвращает длительность аренды в днях с округлением вверх.
// Для возврата не позже начала возвращает 0.
func RentalDays(start, end time.Time) int64 {
	return ceilDays(start, end)
}

// LateDays возвращает число дней просрочки, 0 если автомобиль возвращён вовремя.
func LateDays(returnDate, actual time.Time) int64 {
	return ceilDays(returnDate, actual)
}

// LateFee вычисляет штраф за просрочку. Ставка растёт с уровнем автомобиля.
func LateFee(carTier int, daysLate int64) int64 {
	if daysLate <= 0 {
		return 0
	}
	return int64(carTier+1) * LateFeeBaseCents * daysLate
}

// ceilDays считает дни между from и to через секунды Unix:
// time.Duration ограничена примерно 292 годами.
func ceilDays(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	secs := to.Unix() - from.Unix()
	nanos := to.Nanosecond() - from.Nanosecond()
	if nanos < 0 {
		secs--
		nanos += int(time.Second)
	}
	days := secs / secondsPerDay
	if secs%secondsPerDay != 0 || nanos > 0 {
		days++
	}
	return days
}

// RentPrice вычисляет стоимость аренды. false означает переполнение или отрицательные аргументы.
func RentPrice(days, dailyRateCents int64) (int64, bool) {
	if days < 0 || dailyRateCents < 0 {
		return 0, false
	}
	if days != 0 && dailyRateCents > math.MaxInt64/days {
		return 0, false
	}
	return days * dailyRateCents, true
}

// ToCents переводит сумму в копейки с округлением.
// Значения вне диапазона int64 насыщаются, NaN даёт 0.
func ToCents(v float64) int64 {
	c := math.Round(v * 100)
	switch {
	case math.IsNaN(c):
		return 0
	case c >= math.MaxInt64:
		return math.MaxInt64
	case c <= math.MinInt64:
		return math.MinInt64
	}
	return int64(c)
}

// FromCents переводит сумму из копеек в денежные единицы.
func FromCents(c int64) float64 {
	return float64(c) / 100
}
