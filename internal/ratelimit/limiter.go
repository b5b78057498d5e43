package ratelimit

import "context"

// RateLimiter bounds the rate of an operation identified by key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
