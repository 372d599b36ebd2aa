// Package queue publishes reservation domain events to RabbitMQ for
// downstream consumers (notifications, analytics). Publishing is
// best-effort: errors are logged and returned, never fatal to the
// request that triggered them.
package queue

import "github.com/seatly/seatly/internal/model"

// Routing keys on the topic exchange.
const (
	RoutingCreated       = "reservation.created"
	RoutingStatusChanged = "reservation.status_changed"
)

// ReservationCreatedEvent carries enough for a consumer to notify the
// guest or feed analytics without querying the primary database.
type ReservationCreatedEvent struct {
	ReservationID int64         `json:"reservation_id"`
	RestaurantID  int64         `json:"restaurant_id"`
	UserID        int64         `json:"user_id"`
	TableID       int64         `json:"table_id"`
	Date          string        `json:"date"`
	Slot          string        `json:"slot"`
	PartySize     int           `json:"party_size"`
	GuestName     string        `json:"guest_name"`
	Channel       model.Channel `json:"channel"`
	CreatedAt     string        `json:"created_at"`
}

// ReservationStatusChangedEvent is published on every lifecycle
// transition, including cancellations and no-shows.
type ReservationStatusChangedEvent struct {
	ReservationID  int64                   `json:"reservation_id"`
	RestaurantID   int64                   `json:"restaurant_id"`
	UserID         int64                   `json:"user_id"`
	Date           string                  `json:"date"`
	Slot           string                  `json:"slot"`
	PreviousStatus model.ReservationStatus `json:"previous_status"`
	Status         model.ReservationStatus `json:"status"`
	ChangedAt      string                  `json:"changed_at"`
}
