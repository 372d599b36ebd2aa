package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/seatly/seatly/config"
	"github.com/seatly/seatly/internal/model"
	"github.com/seatly/seatly/internal/repository"
	"github.com/seatly/seatly/pkg/cache"
	"github.com/seatly/seatly/pkg/lock"
	"github.com/seatly/seatly/pkg/timeslot"
)

// ─── Collaborator interfaces ────────────────────────────────

// RestaurantStore reads restaurant configuration.
type RestaurantStore interface {
	GetByID(ctx context.Context, id int64) (*model.Restaurant, error)
}

// TableStore provides the non-locking availability read.
type TableStore interface {
	ListAvailable(ctx context.Context, restaurantID int64, date, slot string, partySize, durationMinutes int) ([]model.Table, error)
}

// ReservationStore persists reservations.
type ReservationStore interface {
	Create(ctx context.Context, p repository.CreateParams) (*model.Reservation, error)
	GetByID(ctx context.Context, id int64, date string) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, date string, next model.ReservationStatus) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID int64, f repository.UserListFilter) ([]model.Reservation, error)
	ListByRestaurant(ctx context.Context, restaurantID int64, f repository.RestaurantListFilter) ([]model.Reservation, error)
}

// Locker is the distributed lock guarding the create critical section.
type Locker interface {
	AcquireWithRetry(ctx context.Context, key, owner string, ttl time.Duration, attempts int, backoff time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
}

// Cache is the best-effort availability snapshot store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string) int
}

// EventPublisher emits reservation domain events. Implementations are
// best-effort; the service logs failures and never blocks on them.
type EventPublisher interface {
	ReservationCreated(ctx context.Context, res *model.Reservation) error
	ReservationStatusChanged(ctx context.Context, res *model.Reservation, previous model.ReservationStatus) error
}

// ─── ReservationService ─────────────────────────────────────

// ReservationService orchestrates reservation writes with strict
// concurrency control.
//
// Defence in depth for the zero-double-booking guarantee, outermost
// first:
//  1. Redis advisory lock on (table, date, slot) — fails the loser fast.
//  2. SERIALIZABLE transaction with the table row locked FOR UPDATE and
//     the availability/user-conflict/capacity checks re-run inside it.
//  3. Partial unique index on (table_id, date, slot) over active rows —
//     the final arbiter even if 1 and 2 are bypassed.
type ReservationService struct {
	restaurants  RestaurantStore
	tables       TableStore
	reservations ReservationStore
	locks        Locker
	cache        Cache
	events       EventPublisher
	cfg          config.ReservationConfig

	// now is injectable for tests.
	now func() time.Time
}

// NewReservationService creates the orchestrator. events may be nil
// when no broker is configured.
func NewReservationService(
	restaurants RestaurantStore,
	tables TableStore,
	reservations ReservationStore,
	locks Locker,
	cacheStore Cache,
	events EventPublisher,
	cfg config.ReservationConfig,
) *ReservationService {
	return &ReservationService{
		restaurants:  restaurants,
		tables:       tables,
		reservations: reservations,
		locks:        locks,
		cache:        cacheStore,
		events:       events,
		cfg:          cfg,
		now:          time.Now,
	}
}

// CreateRequest carries one reservation attempt, whatever channel it
// arrived through. Channel adapters translate their native formats into
// this before the core ever sees them.
type CreateRequest struct {
	RestaurantID    int64          `json:"restaurant_id"`
	UserID          int64          `json:"user_id"`
	Date            string         `json:"date"` // YYYY-MM-DD
	Slot            string         `json:"slot"` // HH:MM
	PartySize       int            `json:"party_size"`
	GuestName       string         `json:"guest_name"`
	GuestPhone      *string        `json:"guest_phone,omitempty"`
	GuestEmail      *string        `json:"guest_email,omitempty"`
	SpecialRequests *string        `json:"special_requests,omitempty"`
	Channel         model.Channel  `json:"channel"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// defaultDurationMinutes applies when a restaurant carries no configured
// reservation duration.
const defaultDurationMinutes = 120

// Create books a table.
//
// Flow (each step fails with its own taxonomy code):
//  1. Validate the request outside any transaction.
//  2. Select the smallest sufficient table (advisory, read-only).
//  3. Acquire the distributed lock for (table, date, slot).
//  4. Run the serializable create transaction, which re-validates
//     availability, user conflict and capacity under row locks.
//  5. Invalidate the availability cache for (restaurant, date) and
//     release the lock.
func (s *ReservationService) Create(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	restaurant, err := s.validateCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	duration := restaurant.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	// ── Step 2: advisory table selection ────────────────
	candidates, err := s.tables.ListAvailable(ctx, req.RestaurantID, req.Date, req.Slot, req.PartySize, duration)
	if err != nil {
		return nil, classify(err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoAvailability.with(fmt.Sprintf("no table for party of %d on %s %s", req.PartySize, req.Date, req.Slot), nil)
	}
	table := candidates[0] // smallest sufficient capacity, lowest number

	// ── Step 3: distributed lock ────────────────────────
	key := lock.ReservationKey(table.ID, req.Date, req.Slot)
	owner := lock.NewOwnerToken()
	acquired, err := s.locks.AcquireWithRetry(ctx, key, owner, s.cfg.LockTTL, s.cfg.LockRetryAttempts, s.cfg.LockRetryBackoff)
	if err != nil {
		// Lock backend unreachable: fail closed for writes.
		return nil, ErrLockUnavailable.with("lock service unreachable", err)
	}
	if !acquired {
		return nil, ErrLockUnavailable.with("slot is being booked by another request", nil)
	}
	defer func() {
		// Release is compare-and-delete on the owner token. A false
		// return means the TTL already expired — the lock was re-taken
		// or gone, which is a liveness event, not a correctness one.
		released, err := s.locks.Release(context.WithoutCancel(ctx), key, owner)
		if err != nil {
			log.Printf("[reservation] release lock %s: %v", key, err)
		} else if !released {
			log.Printf("[reservation] lock %s expired before release (owner %s)", key, owner)
		}
	}()

	// ── Step 4: serializable critical section ───────────
	res, err := s.reservations.Create(ctx, repository.CreateParams{
		RestaurantID:    req.RestaurantID,
		UserID:          req.UserID,
		TableID:         table.ID,
		Date:            req.Date,
		Slot:            req.Slot,
		PartySize:       req.PartySize,
		DurationMinutes: duration,
		GuestName:       req.GuestName,
		GuestPhone:      req.GuestPhone,
		GuestEmail:      req.GuestEmail,
		SpecialRequests: req.SpecialRequests,
		Channel:         req.Channel,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, classify(err)
	}

	// ── Step 5: post-commit bookkeeping ─────────────────
	s.invalidateAvailability(ctx, res.RestaurantID, res.Date)
	s.publishCreated(ctx, res)

	log.Printf("[reservation] created #%d table %d %s %s party=%d channel=%s",
		res.ID, res.TableID, res.Date, res.Slot, res.PartySize, res.Channel)
	return res, nil
}

// validateCreate runs every pre-lock check and returns the restaurant
// so callers reuse the fetch.
func (s *ReservationService) validateCreate(ctx context.Context, req CreateRequest) (*model.Restaurant, error) {
	if req.RestaurantID <= 0 {
		return nil, ErrValidation.with("restaurant_id is required", nil)
	}
	if req.UserID <= 0 {
		return nil, ErrValidation.with("user_id is required", nil)
	}
	if req.GuestName == "" {
		return nil, ErrValidation.with("guest_name is required", nil)
	}
	if req.PartySize < 1 {
		return nil, ErrValidation.with("party_size must be at least 1", nil)
	}
	if !req.Channel.Valid() {
		return nil, ErrValidation.with(fmt.Sprintf("unknown channel %q", req.Channel), nil)
	}
	if _, err := timeslot.ParseDate(req.Date); err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}
	slotMin, err := timeslot.ParseSlot(req.Slot)
	if err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}

	restaurant, err := s.restaurants.GetByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, classify(err)
	}

	loc, err := time.LoadLocation(restaurant.Timezone)
	if err != nil {
		return nil, ErrInternal.with(fmt.Sprintf("restaurant %d has invalid timezone %q", restaurant.ID, restaurant.Timezone), err)
	}

	when, err := timeslot.Combine(req.Date, slotMin, loc)
	if err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}
	now := s.now().In(loc)

	// Temporal: strictly in the future in the restaurant's timezone.
	// Equality with now is rejected.
	if !when.After(now) {
		return nil, ErrValidation.with("reservation time is in the past", nil)
	}

	// Advance window.
	lead := when.Sub(now)
	if min := time.Duration(restaurant.MinAdvanceHours) * time.Hour; lead < min {
		return nil, ErrValidation.with(fmt.Sprintf("reservations require at least %dh notice", restaurant.MinAdvanceHours), nil)
	}
	maxDays := restaurant.MaxAdvanceDays
	if maxDays <= 0 {
		maxDays = s.cfg.MaxDaysAhead
	}
	if lead > time.Duration(maxDays)*24*time.Hour {
		return nil, ErrValidation.with(fmt.Sprintf("reservations open at most %d days ahead", maxDays), nil)
	}

	// Business hours: slot must fall inside one of the day's open
	// intervals, half-open at the closing boundary.
	hours := restaurant.BusinessHours.ForDay(when.Weekday())
	if !timeslot.WithinHours(hours, slotMin) {
		return nil, ErrValidation.with(fmt.Sprintf("%s %s is outside business hours", req.Date, req.Slot), nil)
	}

	return restaurant, nil
}

// ─── Status transitions ─────────────────────────────────────

// Confirm transitions pending → confirmed.
func (s *ReservationService) Confirm(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	return s.transition(ctx, id, date, model.StatusConfirmed)
}

// Cancel transitions any active status → cancelled.
func (s *ReservationService) Cancel(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	return s.transition(ctx, id, date, model.StatusCancelled)
}

// CheckIn transitions confirmed → checked_in when the party arrives.
func (s *ReservationService) CheckIn(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	return s.transition(ctx, id, date, model.StatusCheckedIn)
}

// Complete transitions checked_in → completed.
func (s *ReservationService) Complete(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	return s.transition(ctx, id, date, model.StatusCompleted)
}

// MarkNoShow transitions pending → no_show. Driven by venue tooling;
// the core only enforces legality.
func (s *ReservationService) MarkNoShow(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	return s.transition(ctx, id, date, model.StatusNoShow)
}

// transition runs one status change: a short FOR UPDATE transaction in
// the repository, then the same cache invalidation as a create. No
// distributed lock — the partial unique index covers the remaining
// concurrency.
func (s *ReservationService) transition(ctx context.Context, id int64, date string, next model.ReservationStatus) (*model.Reservation, error) {
	if _, err := timeslot.ParseDate(date); err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}

	previous, err := s.reservations.GetByID(ctx, id, date)
	if err != nil {
		return nil, classify(err)
	}

	res, err := s.reservations.UpdateStatus(ctx, id, date, next)
	if err != nil {
		return nil, classify(err)
	}

	s.invalidateAvailability(ctx, res.RestaurantID, res.Date)
	s.publishStatusChanged(ctx, res, previous.Status)

	log.Printf("[reservation] #%d %s -> %s", res.ID, previous.Status, res.Status)
	return res, nil
}

// ─── Reads ──────────────────────────────────────────────────

// Get fetches one reservation by (id, date).
func (s *ReservationService) Get(ctx context.Context, id int64, date string) (*model.Reservation, error) {
	if _, err := timeslot.ParseDate(date); err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}
	res, err := s.reservations.GetByID(ctx, id, date)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ListByUser returns a user's reservation history, newest first.
func (s *ReservationService) ListByUser(ctx context.Context, userID int64, f repository.UserListFilter) ([]model.Reservation, error) {
	if userID <= 0 {
		return nil, ErrValidation.with("user id is required", nil)
	}
	if err := validateListFilter(f.Status, f.StartDate, f.EndDate); err != nil {
		return nil, err
	}
	out, err := s.reservations.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ListByRestaurant returns a restaurant's book in service order. The
// restaurant must exist and be active.
func (s *ReservationService) ListByRestaurant(ctx context.Context, restaurantID int64, f repository.RestaurantListFilter) ([]model.Reservation, error) {
	if err := validateListFilter(f.Status, f.Date, ""); err != nil {
		return nil, err
	}
	if _, err := s.restaurants.GetByID(ctx, restaurantID); err != nil {
		return nil, classify(err)
	}
	out, err := s.reservations.ListByRestaurant(ctx, restaurantID, f)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func validateListFilter(status model.ReservationStatus, dates ...string) error {
	if status != "" && !status.Valid() {
		return ErrValidation.with(fmt.Sprintf("unknown status %q", status), nil)
	}
	for _, d := range dates {
		if d == "" {
			continue
		}
		if _, err := timeslot.ParseDate(d); err != nil {
			return ErrValidation.with(err.Error(), nil)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────

// invalidateAvailability drops every cached availability snapshot for
// (restaurant, date). Runs synchronously before success is returned so
// a follow-up availability query reflects the mutation.
func (s *ReservationService) invalidateAvailability(ctx context.Context, restaurantID int64, date string) {
	pattern := cache.AvailabilityPattern(restaurantID, date)
	n := s.cache.Invalidate(context.WithoutCancel(ctx), pattern)
	if n > 0 {
		log.Printf("[reservation] invalidated %d availability key(s) for %s", n, pattern)
	}
}

func (s *ReservationService) publishCreated(ctx context.Context, res *model.Reservation) {
	if s.events == nil {
		return
	}
	if err := s.events.ReservationCreated(context.WithoutCancel(ctx), res); err != nil {
		log.Printf("[reservation] publish created event #%d: %v", res.ID, err)
	}
}

func (s *ReservationService) publishStatusChanged(ctx context.Context, res *model.Reservation, previous model.ReservationStatus) {
	if s.events == nil {
		return
	}
	if err := s.events.ReservationStatusChanged(context.WithoutCancel(ctx), res, previous); err != nil {
		log.Printf("[reservation] publish status event #%d: %v", res.ID, err)
	}
}

// classify maps repository and infrastructure errors onto the API
// taxonomy. Unrecognized errors become DATABASE_ERROR so callers get a
// retryable signal without leaking internals.
func classify(err error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		// Already classified.
		return svcErr
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound.with("", err)
	case errors.Is(err, repository.ErrNoAvailability):
		return ErrNoAvailability.with("", err)
	case errors.Is(err, repository.ErrUserConflict):
		return ErrUserConflict.with("", err)
	case errors.Is(err, repository.ErrCapacityExceeded):
		return ErrCapacityExceeded.with("", err)
	case errors.Is(err, repository.ErrInvalidTransition):
		return ErrInvalidTransition.with(err.Error(), err)
	case errors.Is(err, repository.ErrDuplicateSlot), repository.IsSerializationFailure(err):
		return ErrReservationConflict.with("", err)
	case errors.Is(err, lock.ErrUnavailable):
		return ErrLockUnavailable.with("", err)
	case errors.Is(err, context.DeadlineExceeded), repository.IsStatementTimeout(err):
		return ErrTimeout.with("", err)
	default:
		return ErrDatabase.with("", err)
	}
}
