package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/seatly/seatly/internal/model"
	"github.com/seatly/seatly/pkg/cache"
	"github.com/seatly/seatly/pkg/timeslot"
)

// AvailabilityService answers the read-heavy "which tables are free"
// query through a short-TTL cache.
//
// Strategy (same shape as any hot read in this codebase):
//  1. Try the cache (fast path, <1ms). Backend errors read as misses.
//  2. On miss, materialize from the database per candidate slot, then
//     cache the snapshot with a short TTL.
//
// A snapshot may briefly trail a concurrent write; the write path
// invalidates the pattern synchronously on success, and the TTL bounds
// any missed invalidation.
type AvailabilityService struct {
	restaurants RestaurantStore
	tables      TableStore
	cache       Cache
	ttl         time.Duration
}

// NewAvailabilityService creates the availability query service.
func NewAvailabilityService(restaurants RestaurantStore, tables TableStore, cacheStore Cache, ttl time.Duration) *AvailabilityService {
	return &AvailabilityService{restaurants: restaurants, tables: tables, cache: cacheStore, ttl: ttl}
}

// defaultSlotCadenceMinutes applies when a restaurant carries no
// configured slot granularity.
const defaultSlotCadenceMinutes = 30

// GetAvailability returns the per-slot availability for a restaurant,
// date and party size. Slots are generated from the restaurant's
// business hours for that day at the configured cadence; each entry
// lists the ids of tables free for the full reservation duration.
func (s *AvailabilityService) GetAvailability(ctx context.Context, restaurantID int64, date string, partySize int) ([]model.SlotAvailability, error) {
	if partySize < 1 {
		return nil, ErrValidation.with("party_size must be at least 1", nil)
	}
	day, err := timeslot.ParseDate(date)
	if err != nil {
		return nil, ErrValidation.with(err.Error(), nil)
	}

	// ── Fast path: cache ────────────────────────────────
	key := cache.AvailabilityKey(restaurantID, date, partySize)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var snapshot []model.SlotAvailability
		if err := json.Unmarshal(raw, &snapshot); err == nil {
			return snapshot, nil
		}
		// Corrupt entry: fall through to the database.
		log.Printf("[availability] discarding undecodable cache entry %s", key)
	}

	// ── Slow path: materialize from the database ────────
	restaurant, err := s.restaurants.GetByID(ctx, restaurantID)
	if err != nil {
		return nil, classify(err)
	}

	cadence := restaurant.SlotDurationMinutes
	if cadence <= 0 {
		cadence = defaultSlotCadenceMinutes
	}
	duration := restaurant.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	hours := restaurant.BusinessHours.ForDay(day.Weekday())
	snapshot := make([]model.SlotAvailability, 0)
	for _, slotMin := range timeslot.SlotsWithin(hours, cadence) {
		slot := timeslot.FormatSlot(slotMin)
		tables, err := s.tables.ListAvailable(ctx, restaurantID, date, slot, partySize, duration)
		if err != nil {
			return nil, classify(err)
		}
		ids := make([]int64, 0, len(tables))
		for _, t := range tables {
			ids = append(ids, t.ID)
		}
		snapshot = append(snapshot, model.SlotAvailability{Slot: slot, AvailableTables: ids})
	}

	if raw, err := json.Marshal(snapshot); err == nil {
		s.cache.Set(ctx, key, raw, s.ttl)
	}
	return snapshot, nil
}
