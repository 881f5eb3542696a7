package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/citytransfer/platform/pkg/logger"
	redisclient "github.com/citytransfer/platform/pkg/redis"
)

// Manager handles caching operations with JSON serialization
type Manager struct {
	redis *redisclient.Client
}

// NewManager creates a new cache manager
func NewManager(redis *redisclient.Client) *Manager {
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	data, err := m.redis.GetString(ctx, key)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), result)
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

// GetOrSet retrieves from cache or executes fn and caches the result
func (m *Manager) GetOrSet(ctx context.Context, key string, ttl time.Duration, result interface{}, fn func() (interface{}, error)) error {
	err := m.Get(ctx, key, result)
	if err == nil {
		return nil // Cache hit
	}

	data, err := fn()
	if err != nil {
		return err
	}

	if err := m.Set(ctx, key, data, ttl); err != nil {
		// A failed write must not fail the read path
		logger.Warn("failed to cache value", zap.String("key", key), zap.Error(err))
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return json.Unmarshal(jsonData, result)
}

// Delete removes a key from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	return m.redis.Delete(ctx, keys...)
}

// Invalidate removes keys matching a pattern using SCAN
func (m *Manager) Invalidate(ctx context.Context, pattern string) error {
	var cursor uint64

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := m.redis.Delete(ctx, keys...); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return nil
}

// CacheKeys defines common cache key patterns
type CacheKeys struct{}

var Keys = CacheKeys{}

// PartnerEarningsSummary returns cache key for a partner earnings rollup
func (k CacheKeys) PartnerEarningsSummary(partnerID, from, to string) string {
	return fmt.Sprintf("reports:earnings:%s:%s:%s", partnerID, from, to)
}

// BookingVolume returns cache key for a booking volume rollup
func (k CacheKeys) BookingVolume(from, to, groupBy string) string {
	return fmt.Sprintf("reports:bookings:%s:%s:%s", from, to, groupBy)
}

// PayoutTotals returns cache key for payout totals per partner
func (k CacheKeys) PayoutTotals(partnerID string) string {
	return fmt.Sprintf("reports:payouts:%s", partnerID)
}

// Overview returns cache key for the dashboard overview rollup
func (k CacheKeys) Overview(partnerID string) string {
	return fmt.Sprintf("reports:overview:%s", partnerID)
}

// MonthlyTrends returns cache key for the monthly trend rollup
func (k CacheKeys) MonthlyTrends(partnerID string, months int) string {
	return fmt.Sprintf("reports:trends:%s:%d", partnerID, months)
}

// TopRoutes returns cache key for the top routes rollup
func (k CacheKeys) TopRoutes(days, limit int) string {
	return fmt.Sprintf("reports:routes:%d:%d", days, limit)
}

// Partner returns cache key for a partner directory record
func (k CacheKeys) Partner(partnerID string) string {
	return fmt.Sprintf("partner:%s", partnerID)
}

// TTL defines common cache TTL durations
type CacheTTL struct{}

var TTL = CacheTTL{}

func (t CacheTTL) Short() time.Duration  { return 5 * time.Minute }
func (t CacheTTL) Medium() time.Duration { return 15 * time.Minute }
func (t CacheTTL) Long() time.Duration   { return 1 * time.Hour }
