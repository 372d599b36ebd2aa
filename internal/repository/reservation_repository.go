package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatly/seatly/internal/model"
)

// ReservationRepository handles reservation persistence, including the
// serializable create transaction that anchors the zero-double-booking
// guarantee.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// CreateParams carries a validated reservation into the create
// transaction. Date is YYYY-MM-DD, Slot is HH:MM.
type CreateParams struct {
	RestaurantID    int64
	UserID          int64
	TableID         int64
	Date            string
	Slot            string
	PartySize       int
	DurationMinutes int
	GuestName       string
	GuestPhone      *string
	GuestEmail      *string
	SpecialRequests *string
	Channel         model.Channel
	Metadata        map[string]any
}

// userConflictWindowMinutes is the ± window within which a user may not
// hold two active reservations at the same restaurant on the same date.
const userConflictWindowMinutes = 120

// reservationColumns is the scan list shared by every reservation
// SELECT. date and slot are rendered to their wire formats in SQL so
// the Go side never reinterprets session timezones.
const reservationColumns = `
	id, restaurant_id, user_id, table_id,
	to_char(date, 'YYYY-MM-DD'), to_char(slot, 'HH24:MI'),
	party_size, duration_minutes,
	guest_name, guest_phone, guest_email, special_requests,
	status, channel, metadata,
	created_at, confirmed_at, checked_in_at, completed_at, cancelled_at, updated_at`

// ─── The Core Transactional Create ──────────────────────────

// Create performs the reservation insert in a single SERIALIZABLE
// transaction.
//
// Concurrency strategy, inside the transaction:
//
//	T1: BEGIN → SELECT table FOR UPDATE → (table row LOCKED)
//	T2: BEGIN → SELECT table FOR UPDATE → (BLOCKS, waiting for T1)
//	T1: overlap count 0 → user conflict none → INSERT → COMMIT
//	T2: (unblocked) → re-counts → overlap found → ROLLBACK → ErrNoAvailability
//
// Lock order is fixed: the table row first, reservation rows second.
// Even if both the distributed lock and the row locks were bypassed,
// the partial unique index on (table_id, date, slot) WHERE status is
// active still rejects the second insert; that surfaces as
// ErrDuplicateSlot.
//
// Any error rolls back the whole transaction — a partial reservation
// can never leak.
func (r *ReservationRepository) Create(ctx context.Context, p CreateParams) (*model.Reservation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.Serializable,
	})
	if err != nil {
		return nil, fmt.Errorf("create reservation: begin tx: %w", err)
	}
	// Defer rollback — no-op if tx was already committed.
	defer tx.Rollback(ctx)

	// ── Step 1: LOCK the table row ──────────────────────
	table, err := lockTable(ctx, tx, p.TableID, p.RestaurantID)
	if err != nil {
		return nil, err
	}
	if !table.IsActive || table.Status != model.TableAvailable {
		return nil, fmt.Errorf("table %d is %q: %w", table.ID, table.Status, ErrNoAvailability)
	}

	// ── Step 2: Re-check availability under the lock ────
	overlapping, err := countOverlapping(ctx, tx, p.TableID, p.Date, p.Slot, p.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if overlapping > 0 {
		return nil, fmt.Errorf("table %d has %d overlapping reservation(s): %w", p.TableID, overlapping, ErrNoAvailability)
	}

	// ── Step 3: Re-check the user conflict window ───────
	conflict, err := checkUserConflict(ctx, tx, p.UserID, p.RestaurantID, p.Date, p.Slot)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, fmt.Errorf("user %d near %s %s: %w", p.UserID, p.Date, p.Slot, ErrUserConflict)
	}

	// ── Step 4: Capacity re-check on the locked row ─────
	if p.PartySize < table.MinCapacity || p.PartySize > table.Capacity {
		return nil, fmt.Errorf("party of %d outside table %d range [%d, %d]: %w",
			p.PartySize, table.ID, table.MinCapacity, table.Capacity, ErrCapacityExceeded)
	}

	// ── Step 5: INSERT ──────────────────────────────────
	var metaRaw []byte
	if p.Metadata != nil {
		metaRaw, err = json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("create reservation: encode metadata: %w", err)
		}
	}
	query := `
		INSERT INTO reservations (
			restaurant_id, user_id, table_id, date, slot,
			party_size, duration_minutes,
			guest_name, guest_phone, guest_email, special_requests,
			status, channel, metadata
		) VALUES (
			$1, $2, $3, $4::date, $5::time,
			$6, $7, $8, $9, $10, $11, 'pending', $12, $13
		)
		RETURNING ` + reservationColumns
	row := tx.QueryRow(ctx, query,
		p.RestaurantID, p.UserID, p.TableID, p.Date, p.Slot,
		p.PartySize, p.DurationMinutes,
		p.GuestName, p.GuestPhone, p.GuestEmail, p.SpecialRequests,
		p.Channel, metaRaw,
	)
	res, err := scanReservation(row)
	if err != nil {
		if IsUniqueViolation(err) {
			// Lost race despite the advisory lock: only possible if the
			// lock service was bypassed or the key mismatched.
			return nil, fmt.Errorf("table %d %s %s: %w", p.TableID, p.Date, p.Slot, ErrDuplicateSlot)
		}
		return nil, fmt.Errorf("create reservation: insert: %w", err)
	}

	// ── Step 6: Audit trail ─────────────────────────────
	if err := insertLog(ctx, tx, res.ID, res.Date, "CREATED", string(res.Channel)); err != nil {
		return nil, err
	}

	// ── Step 7: COMMIT ──────────────────────────────────
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create reservation: commit: %w", err)
	}
	return res, nil
}

// countOverlapping counts active reservations on the table whose
// half-open interval [slot, slot+duration) intersects the requested one.
// Two reservations conflict iff T1 < T2+D2 AND T2 < T1+D1, so
// back-to-back reservations at exactly T and T+D do not conflict. Each
// existing row is tested against its own recorded duration.
//
// The comparison runs in minutes from midnight, matching the Go-side
// interval math: TIME + interval arithmetic wraps at 24:00, which would
// hide overlaps for slots whose interval runs past midnight.
func countOverlapping(ctx context.Context, tx pgx.Tx, tableID int64, date, slot string, durationMinutes int) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM reservations
		WHERE table_id = $1
		  AND date = $2::date
		  AND status IN ('pending', 'confirmed', 'checked_in')
		  AND EXTRACT(EPOCH FROM slot) / 60 < EXTRACT(EPOCH FROM $3::time) / 60 + $4
		  AND EXTRACT(EPOCH FROM $3::time) / 60 < EXTRACT(EPOCH FROM slot) / 60 + duration_minutes
	`, tableID, date, slot, durationMinutes).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlapping on table %d: %w", tableID, err)
	}
	return n, nil
}

// checkUserConflict locks (FOR UPDATE) and detects any active
// reservation by the user at the restaurant on the date whose slot is
// within the ±2 h conflict window of the requested slot. The window is
// a minute distance, not TIME arithmetic, so it does not wrap around
// midnight for slots near the edges of the day.
func checkUserConflict(ctx context.Context, tx pgx.Tx, userID, restaurantID int64, date, slot string) (bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM reservations
		WHERE user_id = $1
		  AND restaurant_id = $2
		  AND date = $3::date
		  AND status IN ('pending', 'confirmed', 'checked_in')
		  AND abs(EXTRACT(EPOCH FROM slot) / 60 - EXTRACT(EPOCH FROM $4::time) / 60) <= $5
		FOR UPDATE
	`, userID, restaurantID, date, slot, userConflictWindowMinutes)
	if err != nil {
		return false, fmt.Errorf("check user conflict for user %d: %w", userID, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("check user conflict for user %d: %w", userID, err)
	}
	return found, nil
}

// insertLog appends one audit row. Logs are owned by (reservation, date)
// so they partition alongside the reservations themselves.
func insertLog(ctx context.Context, tx pgx.Tx, reservationID int64, date, action, details string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservation_logs (reservation_id, date, action, details)
		VALUES ($1, $2::date, $3, $4)
	`, reservationID, date, action, details)
	if err != nil {
		return fmt.Errorf("append reservation log %s: %w", action, err)
	}
	return nil
}

// ─── Point lookups & status transitions ─────────────────────

// GetByID fetches one reservation. The (id, date) pair is required
// because the table is range-partitioned by date; carrying the date
// lets the planner prune to a single partition.
func (r *ReservationRepository) GetByID(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 AND date = $2::date`,
		id, date,
	)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %d on %s: %w", id, date, ErrNotFound)
		}
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return res, nil
}

// lifecycleColumn maps a target status to the timestamp column it sets.
// no_show sets none.
var lifecycleColumn = map[model.ReservationStatus]string{
	model.StatusConfirmed: "confirmed_at",
	model.StatusCheckedIn: "checked_in_at",
	model.StatusCompleted: "completed_at",
	model.StatusCancelled: "cancelled_at",
}

// UpdateStatus transitions a reservation to next in a short transaction:
// lock the row FOR UPDATE, validate the transition against the state
// machine, set the status plus its lifecycle timestamp, and append an
// audit row. Illegal transitions return ErrInvalidTransition.
//
// No distributed lock is needed here — the partial unique index covers
// the only remaining race (a cancelled slot being re-booked while a
// stale transition runs never creates a second active row).
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id int64, date string, next model.ReservationStatus) (*model.Reservation, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", next, ErrInvalidTransition)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("update status: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row and read its current status.
	var current model.ReservationStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM reservations WHERE id = $1 AND date = $2::date FOR UPDATE
	`, id, date).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %d on %s: %w", id, date, ErrNotFound)
		}
		return nil, fmt.Errorf("update status: lock reservation %d: %w", id, err)
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%s → %s: %w", current, next, ErrInvalidTransition)
	}

	query := `UPDATE reservations SET status = $3, updated_at = now()`
	if col, ok := lifecycleColumn[next]; ok {
		query += `, ` + col + ` = now()`
	}
	query += ` WHERE id = $1 AND date = $2::date RETURNING ` + reservationColumns

	res, err := scanReservation(tx.QueryRow(ctx, query, id, date, next))
	if err != nil {
		return nil, fmt.Errorf("update status: reservation %d: %w", id, err)
	}

	if err := insertLog(ctx, tx, id, date, "STATUS_"+string(next), fmt.Sprintf("%s -> %s", current, next)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("update status: commit: %w", err)
	}
	return res, nil
}

// ─── List queries ───────────────────────────────────────────

// UserListFilter narrows ListByUser. Zero values mean "no filter".
type UserListFilter struct {
	Status    model.ReservationStatus
	StartDate string
	EndDate   string
}

// ListByUser returns a user's reservation history, newest first
// (date desc, slot desc).
func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, f UserListFilter) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1`
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.StartDate != "" {
		args = append(args, f.StartDate)
		query += fmt.Sprintf(" AND date >= $%d::date", len(args))
	}
	if f.EndDate != "" {
		args = append(args, f.EndDate)
		query += fmt.Sprintf(" AND date <= $%d::date", len(args))
	}
	query += " ORDER BY date DESC, slot DESC"
	return r.list(ctx, query, args...)
}

// RestaurantListFilter narrows ListByRestaurant. Zero values mean "no
// filter".
type RestaurantListFilter struct {
	Date   string
	Status model.ReservationStatus
}

// ListByRestaurant returns a restaurant's book, in service order
// (date asc, slot asc).
func (r *ReservationRepository) ListByRestaurant(ctx context.Context, restaurantID int64, f RestaurantListFilter) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE restaurant_id = $1`
	args := []any{restaurantID}
	if f.Date != "" {
		args = append(args, f.Date)
		query += fmt.Sprintf(" AND date = $%d::date", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY date ASC, slot ASC"
	return r.list(ctx, query, args...)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("list reservations: scan: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// ─── Scanning ───────────────────────────────────────────────

// scanReservation reads one row in reservationColumns order.
func scanReservation(row pgx.Row) (*model.Reservation, error) {
	res := &model.Reservation{}
	var (
		metaRaw     []byte
		confirmedAt *time.Time
		checkedInAt *time.Time
		completedAt *time.Time
		cancelledAt *time.Time
	)
	err := row.Scan(
		&res.ID, &res.RestaurantID, &res.UserID, &res.TableID,
		&res.Date, &res.Slot,
		&res.PartySize, &res.DurationMinutes,
		&res.GuestName, &res.GuestPhone, &res.GuestEmail, &res.SpecialRequests,
		&res.Status, &res.Channel, &metaRaw,
		&res.CreatedAt, &confirmedAt, &checkedInAt, &completedAt, &cancelledAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.ConfirmedAt = confirmedAt
	res.CheckedInAt = checkedInAt
	res.CompletedAt = completedAt
	res.CancelledAt = cancelledAt
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &res.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return res, nil
}
