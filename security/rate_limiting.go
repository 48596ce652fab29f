package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles how many commands a single chat user may issue per
// minute. Counters live in Redis so every bot instance shares them.
type RateLimiter struct {
	redis     *redis.Client
	perMinute int
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

// AllowCommand reports whether the user may run another command right now.
// Redis failures allow the command; losing rate limiting must not take the
// bot down with it.
func (r *RateLimiter) AllowCommand(ctx context.Context, userID string) bool {
	if r.redis == nil {
		return true
	}

	key := fmt.Sprintf("ratelimit:commands:%s", userID)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, time.Minute)
	}
	return count <= int64(r.perMinute)
}
