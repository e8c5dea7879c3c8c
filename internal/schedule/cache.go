package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicops/clinic-scheduling/pkg/logging"
)

const slotGenKey = "slots:gen"

// CachedSlots memoizes SlotsForDate in Redis. Invalidation bumps a
// generation counter instead of deleting per-date keys, so any schedule
// or vacation mutation orphans the whole cache at once; stale entries
// fall out via TTL. Redis trouble degrades to computing slots directly.
type CachedSlots struct {
	inner  SlotLister
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedSlots(inner SlotLister, rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedSlots {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedSlots{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedSlots) SlotsForDate(ctx context.Context, d Date) ([]TimeOfDay, error) {
	key, ok := c.cacheKey(ctx, d)
	if ok {
		if slots, hit := c.lookup(ctx, key); hit {
			return slots, nil
		}
	}

	slots, err := c.inner.SlotsForDate(ctx, d)
	if err != nil {
		return nil, err
	}

	if ok {
		c.store(ctx, key, slots)
	}
	return slots, nil
}

// Invalidate drops every cached slot list by advancing the generation.
// It is called synchronously from each schedule/vacation/settings
// mutation so no reader observes stale availability past the mutation.
func (c *CachedSlots) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, slotGenKey).Err(); err != nil {
		return fmt.Errorf("bump slot cache generation: %w", err)
	}
	return nil
}

func (c *CachedSlots) cacheKey(ctx context.Context, d Date) (string, bool) {
	gen, err := c.rdb.Get(ctx, slotGenKey).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("slot cache unavailable, computing directly", "error", err)
			return "", false
		}
		gen = "0"
	}
	return fmt.Sprintf("slots:%s:%s", gen, d), true
}

func (c *CachedSlots) lookup(ctx context.Context, key string) ([]TimeOfDay, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("slot cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var encoded []string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		c.logger.Warn("slot cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}

	slots := make([]TimeOfDay, 0, len(encoded))
	for _, s := range encoded {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			c.logger.Warn("slot cache entry corrupt, ignoring", "key", key, "error", err)
			return nil, false
		}
		slots = append(slots, t)
	}
	return slots, true
}

func (c *CachedSlots) store(ctx context.Context, key string, slots []TimeOfDay) {
	encoded := make([]string, 0, len(slots))
	for _, t := range slots {
		encoded = append(encoded, t.String())
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		c.logger.Warn("slot cache encode failed", "key", key, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "key", key, "error", err)
	}
}
