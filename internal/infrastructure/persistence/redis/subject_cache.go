package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/pkg/circuitbreaker"
)

// SubjectCache caches subjects (with their counters) by ID.
type SubjectCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewSubjectCache creates a SubjectCache. ttl <= 0 uses TTLSubjectCache.
func NewSubjectCache(cache *Cache, ttl time.Duration) *SubjectCache {
	if ttl <= 0 {
		ttl = TTLSubjectCache
	}
	return &SubjectCache{cache: cache, ttl: ttl}
}

// WithBreaker routes reads and writes through cb. Misses do not count as
// failures. Invalidations always go to Redis.
func (s *SubjectCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *SubjectCache {
	s.breaker = cb
	return s
}

func (s *SubjectCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

// Get returns the cached subject or ErrCacheMiss. With an open breaker it
// returns circuitbreaker.ErrCircuitOpen without calling Redis.
func (s *SubjectCache) Get(ctx context.Context, subjectID string) (*attendance.Subject, error) {
	var sub attendance.Subject
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, SubjectKey(subjectID), &sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Set caches a subject.
func (s *SubjectCache) Set(ctx context.Context, sub *attendance.Subject) error {
	if sub == nil {
		return nil
	}
	return s.guard(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, SubjectKey(sub.ID), sub, s.ttl)
	})
}

// Delete drops a subject from the cache.
func (s *SubjectCache) Delete(ctx context.Context, subjectID string) error {
	return s.cache.Delete(ctx, SubjectKey(subjectID))
}

// HandleEvent invalidates the subject named by any subject or attendance
// event. It is meant to be subscribed on the event bus.
func (s *SubjectCache) HandleEvent(event shared.Event) error {
	if event.AggregateID() == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Delete(ctx, event.AggregateID())
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// IsOutage reports whether err means Redis could not serve the call. Use it
// as the breaker's failure filter.
func IsOutage(err error) bool {
	return err != nil && !IsMiss(err) && !errors.Is(err, context.Canceled)
}
