package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("rescall.internal.dedup")

// Store records provider event ids that were already handled.
type Store interface {
	// MarkProcessed records the event and reports true the first time it is seen.
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	// Release forgets an event so a provider retry is processed again.
	Release(ctx context.Context, provider, eventID string) error
}

func key(provider, eventID string) string {
	return fmt.Sprintf("rescall:processed:%s:%s", strings.ToLower(provider), eventID)
}

// RedisStore keeps processed ids as expiring Redis keys.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("dedup: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "dedup.redis.mark")
	defer span.End()
	span.SetAttributes(attribute.String("rescall.provider", provider))

	ok, err := s.client.SetNX(ctx, key(provider, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("dedup: mark processed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, provider, eventID string) error {
	if err := s.client.Del(ctx, key(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("dedup: release: %w", err)
	}
	return nil
}

// MemoryStore is a single-process fallback used when Redis is not configured.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.seen {
		if !now.Before(exp) {
			delete(s.seen, k)
		}
	}
	k := key(provider, eventID)
	if _, ok := s.seen[k]; ok {
		return false, nil
	}
	s.seen[k] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key(provider, eventID))
	return nil
}
