package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fleetrent/internal/config"
)

const keyWebhookGateway = "fleetrent:webhook:%s"

// WebhookLimiter caps callback intake per gateway so a redelivery storm cannot
// starve selection writes.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if client == nil || !cfg.Redis.WebhookRateEnabled {
		return nil
	}
	if cfg.Redis.WebhookRate <= 0 || cfg.Redis.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Redis.WebhookRate,
		burst:  cfg.Redis.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether one more callback from gateway may be processed now.
func (l *WebhookLimiter) Allow(ctx context.Context, gateway string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookGateway, strings.ToLower(strings.TrimSpace(gateway)))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
