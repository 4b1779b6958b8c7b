package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scarson/optilink-monitor/internal/telemetry"
)

const keyPrefix = "latest:"

// Latest keeps each site's most recent enriched sample in Redis so the live
// view never has to touch the durable store. Entries expire on their own if a
// site stops reporting.
type Latest struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewLatest(redisClient *redis.Client, ttl time.Duration) *Latest {
	return &Latest{redis: redisClient, ttl: ttl}
}

// Set stores the sample as the site's latest, replacing any previous one.
func (l *Latest) Set(ctx context.Context, sample telemetry.EnrichedSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	key := keyPrefix + sample.SiteName
	if err := l.redis.Set(ctx, key, data, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest sample in Redis: %w", err)
	}

	return nil
}

// Get returns the latest sample for a site, or nil if none is cached.
func (l *Latest) Get(ctx context.Context, site string) (*telemetry.EnrichedSample, error) {
	data, err := l.redis.Get(ctx, keyPrefix+site).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample from Redis: %w", err)
	}

	var sample telemetry.EnrichedSample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample: %w", err)
	}

	return &sample, nil
}

// All returns the latest sample for every currently cached site.
func (l *Latest) All(ctx context.Context) ([]telemetry.EnrichedSample, error) {
	keys, err := l.redis.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	var samples []telemetry.EnrichedSample
	for _, key := range keys {
		data, err := l.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var sample telemetry.EnrichedSample
		if err := json.Unmarshal([]byte(data), &sample); err != nil {
			continue
		}

		samples = append(samples, sample)
	}

	return samples, nil
}
