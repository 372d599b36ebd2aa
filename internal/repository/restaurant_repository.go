// Package repository provides database access for the reservation core.
//
// ReservationRepository handles the transactional create path with
// pessimistic locking (SELECT ... FOR UPDATE) under serializable
// isolation; the table row is always locked before any reservation row
// so concurrent writers cannot deadlock on opposite lock orders.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatly/seatly/internal/model"
)

// RestaurantRepository provides read-only access to restaurant
// configuration. Restaurants are created by external tooling.
type RestaurantRepository struct {
	pool *pgxpool.Pool
}

// NewRestaurantRepository creates a new restaurant repository.
func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

// GetByID fetches an active restaurant. Inactive or missing restaurants
// return ErrNotFound.
func (r *RestaurantRepository) GetByID(ctx context.Context, id int64) (*model.Restaurant, error) {
	query := `
		SELECT id, name, timezone, is_active, business_hours,
		       min_advance_hours, max_advance_days,
		       reservation_duration_minutes, slot_duration_minutes,
		       cancellation_window_hours, created_at, updated_at
		FROM restaurants
		WHERE id = $1 AND is_active = TRUE
	`
	rest := &model.Restaurant{}
	var hoursRaw []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rest.ID, &rest.Name, &rest.Timezone, &rest.IsActive, &hoursRaw,
		&rest.MinAdvanceHours, &rest.MaxAdvanceDays,
		&rest.DurationMinutes, &rest.SlotDurationMinutes,
		&rest.CancellationHours, &rest.CreatedAt, &rest.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("restaurant %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get restaurant %d: %w", id, err)
	}

	if len(hoursRaw) > 0 {
		if err := json.Unmarshal(hoursRaw, &rest.BusinessHours); err != nil {
			return nil, fmt.Errorf("get restaurant %d: decode business hours: %w", id, err)
		}
	}
	return rest, nil
}
