package model

import "time"

// RentEventType описывает тип события жизненного цикла аренды.
type RentEventType string

const (
	RentEventCreated   RentEventType = "rent.created"
	RentEventConfirmed RentEventType = "rent.confirmed"
	RentEventCompleted RentEventType = "rent.completed"
	RentEventCancelled RentEventType = "rent.cancelled"
)

// RentEvent публикуется после фиксации изменения аренды.
type RentEvent struct {
	Type       RentEventType `json:"type"`
	RentID     int64         `json:"rent_id"`
	CarID      int64         `json:"car_id"`
	UserID     int64         `json:"user_id"`
	Status     RentStatus    `json:"status"`
	PriceCents int64         `json:"price_cents"`
	OccurredAt time.Time     `json:"occurred_at"`
}
