package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a best-effort cache over Redis.
//
// The cache is never the source of truth: reads return a miss on any
// backend error, writes are fire-and-forget (failures are logged, not
// surfaced), and every operation carries its own short deadline so the
// hot path is never blocked by a slow or unreachable Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a cache store over the given client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

const (
	// opTimeout bounds every cache round-trip.
	opTimeout = 2 * time.Second

	availabilityKeyPrefix = "availability:"
)

// AvailabilityKey builds the snapshot key for a (restaurant, date, partySize)
// query: availability:<restaurantId>:<date>:<partySize>.
func AvailabilityKey(restaurantID int64, date string, partySize int) string {
	return fmt.Sprintf("%s%d:%s:%d", availabilityKeyPrefix, restaurantID, date, partySize)
}

// AvailabilityPattern builds the invalidation pattern covering every
// party size for a (restaurant, date): availability:<restaurantId>:<date>:*.
func AvailabilityPattern(restaurantID int64, date string) string {
	return fmt.Sprintf("%s%d:%s:*", availabilityKeyPrefix, restaurantID, date)
}

// Get returns the raw value for key, or ok=false on a miss. Backend
// errors are treated as misses so callers fall through to the database.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.client.Get(opCtx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[cache] get %s: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

// Set stores value under key with the given TTL. Best-effort: failures
// are logged and swallowed.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		log.Printf("[cache] set %s: %v", key, err)
	}
}

// Invalidate deletes every key matching pattern using a cursor SCAN so
// large keyspaces are walked without blocking Redis. Returns the number
// of keys removed; errors are logged and the partial count returned —
// a missed invalidation becomes consistent by TTL expiry.
func (s *Store) Invalidate(ctx context.Context, pattern string) int {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(opCtx, cursor, pattern, 100).Result()
		if err != nil {
			log.Printf("[cache] scan %s: %v", pattern, err)
			return removed
		}
		if len(keys) > 0 {
			n, err := s.client.Del(opCtx, keys...).Result()
			if err != nil {
				log.Printf("[cache] del %s: %v", pattern, err)
				return removed
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}
