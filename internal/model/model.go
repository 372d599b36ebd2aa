// Package model contains domain models for the reservation core.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import (
	"strings"
	"time"

	"github.com/seatly/seatly/pkg/timeslot"
)

// ─── Enums ──────────────────────────────────────────────────

// ReservationStatus is the lifecycle state of a reservation. Only the
// three active statuses occupy a slot.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCheckedIn ReservationStatus = "checked_in"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusNoShow    ReservationStatus = "no_show"
)

// ActiveStatuses are the statuses that count toward slot occupancy and
// the partial unique index.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

// Active reports whether the status occupies a slot.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

// Terminal reports whether the status has no outgoing transitions.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Valid reports whether the status is a known enumeration value.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo encodes the reservation state machine:
//
//	pending ── confirm ──▶ confirmed ── check-in ──▶ checked_in ── complete ──▶ completed
//	   │                       │                          │
//	   └── cancel ─────────────┴──────────────────────────┴──▶ cancelled
//	pending ── no-show ──▶ no_show
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled || next == StatusNoShow
	case StatusConfirmed:
		return next == StatusCheckedIn || next == StatusCancelled
	case StatusCheckedIn:
		return next == StatusCompleted || next == StatusCancelled
	default:
		// Terminal states have no outgoing transitions.
		return false
	}
}

// Channel tags the ingress surface a reservation arrived through.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelEmail     Channel = "email"
)

// Valid reports whether the channel is a known enumeration value.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelWhatsApp, ChannelInstagram, ChannelEmail:
		return true
	}
	return false
}

// TableStatus is the operational state of a physical table.
type TableStatus string

const (
	TableAvailable   TableStatus = "available"
	TableReserved    TableStatus = "reserved"
	TableOccupied    TableStatus = "occupied"
	TableMaintenance TableStatus = "maintenance"
)

// ─── Business hours ─────────────────────────────────────────

// BusinessHours maps a lowercase weekday name ("monday"…"sunday") to the
// day's ordered open intervals. Stored as JSONB on the restaurant row.
type BusinessHours map[string][]timeslot.Interval

// ForDay returns the open intervals for the given weekday, nil when the
// restaurant is closed that day.
func (b BusinessHours) ForDay(day time.Weekday) []timeslot.Interval {
	return b[strings.ToLower(day.String())]
}

// ─── Domain Models ──────────────────────────────────────────

// Restaurant maps to the `restaurants` table. Created by external
// tooling; read-only to the reservation core.
type Restaurant struct {
	ID                  int64         `json:"id"`
	Name                string        `json:"name"`
	Timezone            string        `json:"timezone"`
	IsActive            bool          `json:"is_active"`
	BusinessHours       BusinessHours `json:"business_hours"`
	MinAdvanceHours     int           `json:"min_advance_hours"`
	MaxAdvanceDays      int           `json:"max_advance_days"`
	DurationMinutes     int           `json:"reservation_duration_minutes"`
	SlotDurationMinutes int           `json:"slot_duration_minutes"`
	CancellationHours   int           `json:"cancellation_window_hours"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Table maps to the `tables` table. Only tables with the activity flag
// and status=available are eligible for new reservations.
type Table struct {
	ID           int64       `json:"id"`
	RestaurantID int64       `json:"restaurant_id"`
	Number       int         `json:"number"`
	MinCapacity  int         `json:"min_capacity"`
	Capacity     int         `json:"capacity"`
	IsActive     bool        `json:"is_active"`
	Status       TableStatus `json:"status"`
}

// Reservation maps to the `reservations` table. The table is
// range-partitioned by date with composite primary key (id, date), so
// every point lookup carries both.
type Reservation struct {
	ID              int64             `json:"id"`
	RestaurantID    int64             `json:"restaurant_id"`
	UserID          int64             `json:"user_id"`
	TableID         int64             `json:"table_id"`
	Date            string            `json:"date"` // YYYY-MM-DD
	Slot            string            `json:"slot"` // HH:MM
	PartySize       int               `json:"party_size"`
	DurationMinutes int               `json:"duration_minutes"`
	GuestName       string            `json:"guest_name"`
	GuestPhone      *string           `json:"guest_phone,omitempty"`
	GuestEmail      *string           `json:"guest_email,omitempty"`
	SpecialRequests *string           `json:"special_requests,omitempty"`
	Status          ReservationStatus `json:"status"`
	Channel         Channel           `json:"channel"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	CheckedInAt     *time.Time        `json:"checked_in_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ReservationLog maps to the append-only `reservation_logs` table: one
// row per create and per status transition.
type ReservationLog struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	Date          string    `json:"date"`
	Action        string    `json:"action"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ─── Availability DTOs ──────────────────────────────────────

// SlotAvailability is one entry of the availability snapshot: a slot and
// the ids of tables free for it.
type SlotAvailability struct {
	Slot            string  `json:"slot"`
	AvailableTables []int64 `json:"available_tables"`
}
