package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by the repositories. The service layer maps
// them onto the API error taxonomy.
var (
	// ErrNotFound is returned when a restaurant, table or reservation
	// row does not exist (or is inactive where activity is required).
	ErrNotFound = errors.New("not found")

	// ErrNoAvailability is returned when the locked table is not
	// bookable or an active reservation overlaps the requested slot.
	ErrNoAvailability = errors.New("table not available for requested slot")

	// ErrUserConflict is returned when the user already holds an active
	// reservation at the restaurant within the conflict window.
	ErrUserConflict = errors.New("user has a conflicting reservation")

	// ErrCapacityExceeded is returned when the party size falls outside
	// the table's [min_capacity, capacity] range.
	ErrCapacityExceeded = errors.New("party size outside table capacity")

	// ErrDuplicateSlot is returned when the insert loses a race and
	// trips the partial unique index on (table_id, date, slot).
	ErrDuplicateSlot = errors.New("active reservation already exists for slot")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("illegal status transition")
)

// PostgreSQL SQLSTATE codes the core cares about.
const (
	sqlstateUniqueViolation      = "23505"
	sqlstateSerializationFailure = "40001"
	sqlstateQueryCanceled        = "57014" // statement_timeout fired
)

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

// IsSerializationFailure reports whether err is a serializable-isolation
// conflict. Callers surface it as a retryable conflict.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateSerializationFailure
}

// IsStatementTimeout reports whether err is a statement_timeout
// cancellation.
func IsStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateQueryCanceled
}
