package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatly/seatly/internal/model"
)

// TableRepository provides table lookups for the availability and
// selection paths.
type TableRepository struct {
	pool *pgxpool.Pool
}

// NewTableRepository creates a new table repository.
func NewTableRepository(pool *pgxpool.Pool) *TableRepository {
	return &TableRepository{pool: pool}
}

// ListAvailable returns the active, available tables of a restaurant
// that fit the party size and have no active reservation overlapping
// [slot, slot+duration) on the given date.
//
// This is the non-locking read used for advisory table selection and the
// availability query; the create path re-validates its pick under a
// FOR UPDATE row lock. Ordered by capacity ascending then table number,
// so the smallest sufficient table is always preferred and selection is
// deterministic.
func (r *TableRepository) ListAvailable(
	ctx context.Context,
	restaurantID int64,
	date, slot string,
	partySize, durationMinutes int,
) ([]model.Table, error) {
	// available_tables is defined in migrations/001_create_schema.up.sql
	// and carries the half-open overlap predicate, so the check is
	// identical on the read path and inside the create transaction.
	query := `
		SELECT id, restaurant_id, table_number, min_capacity, capacity, is_active, status
		FROM available_tables($1, $2::date, $3::time, $4, $5)
	`
	rows, err := r.pool.Query(ctx, query, restaurantID, date, slot, partySize, durationMinutes)
	if err != nil {
		return nil, fmt.Errorf("list available tables: %w", err)
	}
	defer rows.Close()

	tables := make([]model.Table, 0)
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.Number, &t.MinCapacity, &t.Capacity, &t.IsActive, &t.Status); err != nil {
			return nil, fmt.Errorf("list available tables: scan: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list available tables: %w", err)
	}
	return tables, nil
}

// lockTable acquires a FOR UPDATE row lock on the table and returns its
// capacity range and operational state. This is always the first lock
// taken inside the create transaction.
func lockTable(ctx context.Context, tx pgx.Tx, tableID, restaurantID int64) (*model.Table, error) {
	t := &model.Table{}
	err := tx.QueryRow(ctx, `
		SELECT id, restaurant_id, table_number, min_capacity, capacity, is_active, status
		FROM tables
		WHERE id = $1 AND restaurant_id = $2
		FOR UPDATE
	`, tableID, restaurantID).Scan(&t.ID, &t.RestaurantID, &t.Number, &t.MinCapacity, &t.Capacity, &t.IsActive, &t.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
		}
		return nil, fmt.Errorf("lock table %d: %w", tableID, err)
	}
	return t, nil
}
