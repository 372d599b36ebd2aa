// Package lock provides a Redis-backed advisory lock used to exclude
// concurrent writers during the reservation critical section.
//
// The lock is advisory: correctness of the reservation core never depends
// on it alone. The database's partial unique index and the serializable
// transaction remain the final arbiters; the lock exists to fail the
// loser fast instead of burning a transaction on a doomed insert.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the lock backend cannot be reached.
// Writers must fail closed on it; the caller surfaces it as retryable.
var ErrUnavailable = errors.New("lock service unavailable")

// releaseScript deletes the key only if it still holds the caller's owner
// token. A stale owner (TTL elapsed, lock re-taken) must not clobber the
// new holder, so GET+DEL run as one atomic script.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// extendScript bumps the TTL only if the key still holds the caller's
// owner token.
var extendScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// Service implements distributed mutual exclusion over Redis.
type Service struct {
	client *redis.Client
}

// NewService creates a lock service over the given client.
func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

// ReservationKey builds the lock key for a (table, date, slot) write:
// lock:reservation:<tableId>:<date>:<slot>.
func ReservationKey(tableID int64, date, slot string) string {
	return fmt.Sprintf("lock:reservation:%d:%s:%s", tableID, date, slot)
}

// NewOwnerToken returns a globally unique token identifying one lock
// acquisition: uuid + unix-nano timestamp + random suffix. Only the
// holder of the token may release or extend the lock.
func NewOwnerToken() string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%d-%s", uuid.NewString(), time.Now().UnixNano(), hex.EncodeToString(suffix))
}

// Acquire attempts an atomic "set if absent with expiry". It returns
// true only when no prior holder exists. A backend failure returns
// ErrUnavailable so the write path can fail closed.
func (s *Service) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// AcquireWithRetry repeats Acquire with linear backoff: the n-th retry
// sleeps n*backoff. Bounded by attempts; never blocks indefinitely.
// Returns false with nil error when all attempts found the lock held.
func (s *Service) AcquireWithRetry(ctx context.Context, key, owner string, ttl time.Duration, attempts int, backoff time.Duration) (bool, error) {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * backoff):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		ok, err := s.Acquire(ctx, key, owner, ttl)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Release deletes the lock iff the stored value equals owner. Returns
// true when the key was deleted, false when the lock had already
// expired or was re-taken by another owner.
func (s *Service) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{key}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Extend pushes the TTL out by additional iff the stored value equals
// owner.
func (s *Service) Extend(ctx context.Context, key, owner string, additional time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, s.client, []string{key}, owner, additional.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
