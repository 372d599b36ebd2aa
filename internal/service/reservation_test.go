package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seatly/seatly/config"
	"github.com/seatly/seatly/internal/model"
	"github.com/seatly/seatly/internal/repository"
	"github.com/seatly/seatly/pkg/timeslot"
)

// ─── Fakes ──────────────────────────────────────────────────

type fakeRestaurants struct {
	restaurant *model.Restaurant
	err        error
}

func (f *fakeRestaurants) GetByID(_ context.Context, id int64) (*model.Restaurant, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.restaurant == nil || f.restaurant.ID != id {
		return nil, fmt.Errorf("restaurant %d: %w", id, repository.ErrNotFound)
	}
	return f.restaurant, nil
}

type fakeTables struct {
	tables []model.Table
	err    error
	calls  int
}

func (f *fakeTables) ListAvailable(_ context.Context, _ int64, _, _ string, _, _ int) ([]model.Table, error) {
	f.calls++
	return f.tables, f.err
}

type fakeReservations struct {
	created   []repository.CreateParams
	createErr error
	stored    map[string]*model.Reservation // key id:date
	updateErr error
	nextID    int64
}

func resKey(id int64, date string) string { return fmt.Sprintf("%d:%s", id, date) }

func (f *fakeReservations) Create(_ context.Context, p repository.CreateParams) (*model.Reservation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	f.nextID++
	res := &model.Reservation{
		ID: f.nextID, RestaurantID: p.RestaurantID, UserID: p.UserID, TableID: p.TableID,
		Date: p.Date, Slot: p.Slot, PartySize: p.PartySize, DurationMinutes: p.DurationMinutes,
		GuestName: p.GuestName, Status: model.StatusPending, Channel: p.Channel,
		CreatedAt: time.Now(),
	}
	if f.stored == nil {
		f.stored = map[string]*model.Reservation{}
	}
	f.stored[resKey(res.ID, res.Date)] = res
	return res, nil
}

func (f *fakeReservations) GetByID(_ context.Context, id int64, date string) (*model.Reservation, error) {
	res, ok := f.stored[resKey(id, date)]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, repository.ErrNotFound)
	}
	return res, nil
}

func (f *fakeReservations) UpdateStatus(_ context.Context, id int64, date string, next model.ReservationStatus) (*model.Reservation, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	res, ok := f.stored[resKey(id, date)]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, repository.ErrNotFound)
	}
	if !res.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%s -> %s: %w", res.Status, next, repository.ErrInvalidTransition)
	}
	dup := *res
	dup.Status = next
	f.stored[resKey(id, date)] = &dup
	return &dup, nil
}

func (f *fakeReservations) ListByUser(_ context.Context, _ int64, _ repository.UserListFilter) ([]model.Reservation, error) {
	return nil, nil
}

func (f *fakeReservations) ListByRestaurant(_ context.Context, _ int64, _ repository.RestaurantListFilter) ([]model.Reservation, error) {
	return nil, nil
}

type fakeLocker struct {
	acquire    bool
	acquireErr error
	held       []string
	released   []string
	releaseOK  bool
}

func (f *fakeLocker) AcquireWithRetry(_ context.Context, key, _ string, _ time.Duration, _ int, _ time.Duration) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.acquire {
		f.held = append(f.held, key)
	}
	return f.acquire, nil
}

func (f *fakeLocker) Release(_ context.Context, key, _ string) (bool, error) {
	f.released = append(f.released, key)
	return f.releaseOK, nil
}

type fakeCache struct {
	data        map[string][]byte
	invalidated []string
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = value
}

func (f *fakeCache) Invalidate(_ context.Context, pattern string) int {
	f.invalidated = append(f.invalidated, pattern)
	return 1
}

type fakeEvents struct {
	created int
	status  int
}

func (f *fakeEvents) ReservationCreated(_ context.Context, _ *model.Reservation) error {
	f.created++
	return nil
}

func (f *fakeEvents) ReservationStatusChanged(_ context.Context, _ *model.Reservation, _ model.ReservationStatus) error {
	f.status++
	return nil
}

// ─── Fixtures ───────────────────────────────────────────────

// 2026-03-16 is a Monday.
const (
	testDate = "2026-03-16"
	testSlot = "19:00"
)

func testRestaurant() *model.Restaurant {
	return &model.Restaurant{
		ID:       1,
		Name:     "Trattoria Uno",
		Timezone: "UTC",
		IsActive: true,
		BusinessHours: model.BusinessHours{
			"monday": {{Open: "12:00", Close: "22:00"}},
		},
		MinAdvanceHours:     1,
		MaxAdvanceDays:      90,
		DurationMinutes:     120,
		SlotDurationMinutes: 30,
	}
}

func testTable() model.Table {
	return model.Table{ID: 10, RestaurantID: 1, Number: 1, MinCapacity: 2, Capacity: 4, IsActive: true, Status: model.TableAvailable}
}

type harness struct {
	svc          *ReservationService
	restaurants  *fakeRestaurants
	tables       *fakeTables
	reservations *fakeReservations
	locks        *fakeLocker
	cache        *fakeCache
	events       *fakeEvents
}

func newHarness() *harness {
	h := &harness{
		restaurants:  &fakeRestaurants{restaurant: testRestaurant()},
		tables:       &fakeTables{tables: []model.Table{testTable()}},
		reservations: &fakeReservations{},
		locks:        &fakeLocker{acquire: true, releaseOK: true},
		cache:        &fakeCache{},
		events:       &fakeEvents{},
	}
	cfg := config.ReservationConfig{
		LockTTL:              30 * time.Second,
		LockRetryAttempts:    3,
		LockRetryBackoff:     100 * time.Millisecond,
		MaxDaysAhead:         90,
		AvailabilityCacheTTL: 5 * time.Minute,
	}
	h.svc = NewReservationService(h.restaurants, h.tables, h.reservations, h.locks, h.cache, h.events, cfg)
	// Fixed clock: a week before the reservation date.
	h.svc.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	return h
}

func validRequest() CreateRequest {
	return CreateRequest{
		RestaurantID: 1,
		UserID:       7,
		Date:         testDate,
		Slot:         testSlot,
		PartySize:    2,
		GuestName:    "Ada",
		Channel:      model.ChannelWeb,
	}
}

// ─── Create ─────────────────────────────────────────────────

func TestCreate_HappyPath(t *testing.T) {
	h := newHarness()

	res, err := h.svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", res.Status)
	}
	if res.TableID != 10 {
		t.Errorf("table = %d, want 10", res.TableID)
	}
	if res.DurationMinutes != 120 {
		t.Errorf("duration = %d, want restaurant default 120", res.DurationMinutes)
	}

	// Lock was taken for the selected table and released after commit.
	wantKey := "lock:reservation:10:2026-03-16:19:00"
	if len(h.locks.held) != 1 || h.locks.held[0] != wantKey {
		t.Errorf("lock held = %v, want [%s]", h.locks.held, wantKey)
	}
	if len(h.locks.released) != 1 || h.locks.released[0] != wantKey {
		t.Errorf("lock released = %v, want [%s]", h.locks.released, wantKey)
	}

	// Availability cache for (restaurant, date) was invalidated.
	wantPattern := "availability:1:2026-03-16:*"
	if len(h.cache.invalidated) != 1 || h.cache.invalidated[0] != wantPattern {
		t.Errorf("invalidated = %v, want [%s]", h.cache.invalidated, wantPattern)
	}

	if h.events.created != 1 {
		t.Errorf("created events = %d, want 1", h.events.created)
	}
}

func TestCreate_PicksFirstTable(t *testing.T) {
	h := newHarness()
	// ListAvailable is ordered capacity asc, number asc by contract; the
	// service must take the head.
	h.tables.tables = []model.Table{
		{ID: 21, RestaurantID: 1, Number: 3, MinCapacity: 1, Capacity: 2, IsActive: true, Status: model.TableAvailable},
		{ID: 22, RestaurantID: 1, Number: 1, MinCapacity: 2, Capacity: 6, IsActive: true, Status: model.TableAvailable},
	}

	res, err := h.svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.TableID != 21 {
		t.Errorf("table = %d, want first candidate 21", res.TableID)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing restaurant", func(r *CreateRequest) { r.RestaurantID = 0 }},
		{"missing user", func(r *CreateRequest) { r.UserID = 0 }},
		{"missing guest name", func(r *CreateRequest) { r.GuestName = "" }},
		{"zero party", func(r *CreateRequest) { r.PartySize = 0 }},
		{"bad channel", func(r *CreateRequest) { r.Channel = "fax" }},
		{"bad date", func(r *CreateRequest) { r.Date = "16-03-2026" }},
		{"bad slot", func(r *CreateRequest) { r.Slot = "7pm" }},
		{"past date", func(r *CreateRequest) { r.Date = "2026-03-02" }},
		{"outside business hours", func(r *CreateRequest) { r.Slot = "23:00" }},
		{"closed day", func(r *CreateRequest) { r.Date = "2026-03-17" }}, // Tuesday: no hours configured
		{"beyond advance window", func(r *CreateRequest) { r.Date = "2026-09-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			req := validRequest()
			tt.mutate(&req)

			_, err := h.svc.Create(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want VALIDATION_ERROR", err)
			}
			if len(h.locks.held) != 0 {
				t.Error("validation failure must not touch the lock service")
			}
		})
	}
}

func TestCreate_MinAdvanceNotice(t *testing.T) {
	h := newHarness()
	// 30 minutes before the slot, with a 1h minimum notice.
	h.svc.now = func() time.Time { return time.Date(2026, 3, 16, 18, 30, 0, 0, time.UTC) }

	_, err := h.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestCreate_RestaurantNotFound(t *testing.T) {
	h := newHarness()
	h.restaurants.restaurant = nil

	_, err := h.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestCreate_NoAvailability(t *testing.T) {
	h := newHarness()
	h.tables.tables = nil

	_, err := h.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrNoAvailability) {
		t.Errorf("err = %v, want NO_AVAILABILITY", err)
	}
	if len(h.locks.held) != 0 {
		t.Error("no-availability must be decided before locking")
	}
}

func TestCreate_LockContended(t *testing.T) {
	h := newHarness()
	h.locks.acquire = false

	_, err := h.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrLockUnavailable) {
		t.Errorf("err = %v, want LOCK_UNAVAILABLE", err)
	}
	if len(h.reservations.created) != 0 {
		t.Error("create transaction must not run without the lock")
	}
}

func TestCreate_LockBackendDown_FailsClosed(t *testing.T) {
	h := newHarness()
	h.locks.acquireErr = errors.New("connection refused")

	_, err := h.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrLockUnavailable) {
		t.Errorf("err = %v, want LOCK_UNAVAILABLE", err)
	}
}

func TestCreate_RepoErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    *Error
	}{
		{"overlap found under lock", fmt.Errorf("x: %w", repository.ErrNoAvailability), ErrNoAvailability},
		{"user conflict", fmt.Errorf("x: %w", repository.ErrUserConflict), ErrUserConflict},
		{"capacity", fmt.Errorf("x: %w", repository.ErrCapacityExceeded), ErrCapacityExceeded},
		{"unique violation", fmt.Errorf("x: %w", repository.ErrDuplicateSlot), ErrReservationConflict},
		{"statement timeout", context.DeadlineExceeded, ErrTimeout},
		{"unknown", errors.New("boom"), ErrDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.reservations.createErr = tt.repoErr

			_, err := h.svc.Create(context.Background(), validRequest())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want.Code)
			}
			// The lock must be released on every failure path.
			if len(h.locks.released) != 1 {
				t.Errorf("lock released %d times, want 1", len(h.locks.released))
			}
			// No cache invalidation without a commit.
			if len(h.cache.invalidated) != 0 {
				t.Error("failed create must not invalidate the cache")
			}
		})
	}
}

func TestCreate_RetryableFlags(t *testing.T) {
	if !ErrReservationConflict.Retryable || !ErrLockUnavailable.Retryable || !ErrTimeout.Retryable || !ErrDatabase.Retryable {
		t.Error("conflict/lock/timeout/database errors must be retryable")
	}
	if ErrValidation.Retryable || ErrUserConflict.Retryable || ErrInvalidTransition.Retryable {
		t.Error("validation/user-conflict/transition errors must not be retryable")
	}
}

// ─── Transitions ────────────────────────────────────────────

func createPending(t *testing.T, h *harness) *model.Reservation {
	t.Helper()
	res, err := h.svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	return res
}

func TestConfirmThenCancel(t *testing.T) {
	h := newHarness()
	res := createPending(t, h)

	confirmed, err := h.svc.Confirm(context.Background(), res.ID, res.Date)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}

	cancelled, err := h.svc.Cancel(context.Background(), res.ID, res.Date)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// Second cancel is a terminal-to-terminal transition.
	_, err = h.svc.Cancel(context.Background(), res.ID, res.Date)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel err = %v, want INVALID_TRANSITION", err)
	}

	// Create + confirm + cancel each invalidated the pattern; the failed
	// cancel did not.
	if len(h.cache.invalidated) != 3 {
		t.Errorf("invalidations = %d, want 3", len(h.cache.invalidated))
	}
	if h.events.status != 2 {
		t.Errorf("status events = %d, want 2", h.events.status)
	}
}

func TestConfirm_OnlyFromPending(t *testing.T) {
	h := newHarness()
	res := createPending(t, h)

	if _, err := h.svc.Confirm(context.Background(), res.ID, res.Date); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	_, err := h.svc.Confirm(context.Background(), res.ID, res.Date)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double confirm err = %v, want INVALID_TRANSITION", err)
	}
}

func TestLifecycle_FullPath(t *testing.T) {
	h := newHarness()
	res := createPending(t, h)
	ctx := context.Background()

	if _, err := h.svc.Confirm(ctx, res.ID, res.Date); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := h.svc.CheckIn(ctx, res.ID, res.Date); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	done, err := h.svc.Complete(ctx, res.ID, res.Date)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
}

func TestMarkNoShow_OnlyFromPending(t *testing.T) {
	h := newHarness()
	res := createPending(t, h)
	ctx := context.Background()

	if _, err := h.svc.Confirm(ctx, res.ID, res.Date); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	_, err := h.svc.MarkNoShow(ctx, res.ID, res.Date)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("no-show after confirm err = %v, want INVALID_TRANSITION", err)
	}
}

func TestTransition_NotFound(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Confirm(context.Background(), 999, testDate)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestGet_BadDate(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Get(context.Background(), 1, "tomorrow")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestListByUser_FilterValidation(t *testing.T) {
	h := newHarness()
	_, err := h.svc.ListByUser(context.Background(), 7, repository.UserListFilter{Status: "tentative"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

// ─── Availability ───────────────────────────────────────────

func TestGetAvailability_MaterializesAndCaches(t *testing.T) {
	h := newHarness()
	avail := NewAvailabilityService(h.restaurants, h.tables, h.cache, 5*time.Minute)

	snapshot, err := avail.GetAvailability(context.Background(), 1, testDate, 2)
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	// Monday 12:00–22:00 at 30 min cadence = 20 candidate slots.
	if len(snapshot) != 20 {
		t.Fatalf("slots = %d, want 20", len(snapshot))
	}
	if snapshot[0].Slot != "12:00" || snapshot[len(snapshot)-1].Slot != "21:30" {
		t.Errorf("slot range = %s..%s, want 12:00..21:30", snapshot[0].Slot, snapshot[len(snapshot)-1].Slot)
	}
	for _, s := range snapshot {
		if len(s.AvailableTables) != 1 || s.AvailableTables[0] != 10 {
			t.Fatalf("slot %s tables = %v, want [10]", s.Slot, s.AvailableTables)
		}
	}

	// Snapshot was cached; a second query must not hit the table store.
	if _, ok := h.cache.data["availability:1:2026-03-16:2"]; !ok {
		t.Fatal("snapshot not cached under availability:1:2026-03-16:2")
	}
	before := h.tables.calls
	if _, err := avail.GetAvailability(context.Background(), 1, testDate, 2); err != nil {
		t.Fatalf("GetAvailability (cached): %v", err)
	}
	if h.tables.calls != before {
		t.Errorf("cached query hit the table store (%d extra calls)", h.tables.calls-before)
	}
}

func TestGetAvailability_ClosedDay(t *testing.T) {
	h := newHarness()
	avail := NewAvailabilityService(h.restaurants, h.tables, h.cache, time.Minute)

	snapshot, err := avail.GetAvailability(context.Background(), 1, "2026-03-17", 2) // Tuesday: closed
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("slots on closed day = %d, want 0", len(snapshot))
	}
}

func TestGetAvailability_Validation(t *testing.T) {
	h := newHarness()
	avail := NewAvailabilityService(h.restaurants, h.tables, h.cache, time.Minute)

	if _, err := avail.GetAvailability(context.Background(), 1, testDate, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("party 0 err = %v, want VALIDATION_ERROR", err)
	}
	if _, err := avail.GetAvailability(context.Background(), 1, "03/16/2026", 2); !errors.Is(err, ErrValidation) {
		t.Errorf("bad date err = %v, want VALIDATION_ERROR", err)
	}
}

func TestGetAvailability_CorruptCacheEntryFallsThrough(t *testing.T) {
	h := newHarness()
	h.cache.data = map[string][]byte{"availability:1:2026-03-16:2": []byte("{not json")}
	avail := NewAvailabilityService(h.restaurants, h.tables, h.cache, time.Minute)

	snapshot, err := avail.GetAvailability(context.Background(), 1, testDate, 2)
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(snapshot) == 0 {
		t.Error("corrupt cache entry should fall through to the database")
	}
}

// Guard against the fixture drifting off a Monday.
func TestFixtureDateIsMonday(t *testing.T) {
	d, err := timeslot.ParseDate(testDate)
	if err != nil {
		t.Fatal(err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("%s is %s, fixtures assume Monday", testDate, d.Weekday())
	}
}
