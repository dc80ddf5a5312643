// internal/pkg/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule caps the attempts allowed for one subject inside a fixed window
type Rule struct {
	Max    int64
	Window time.Duration
}

// Scopes used by the local identity provider
var (
	// Allow up to 5 sign-in attempts per 15 minutes
	SignInRule = Rule{Max: 5, Window: 15 * time.Minute}
	// Allow up to 3 password resets per hour
	PasswordResetRule = Rule{Max: 3, Window: time.Hour}
	// Allow up to 5 code submissions per 10 minutes
	CodeRule = Rule{Max: 5, Window: 10 * time.Minute}
)

type Limiter struct {
	client redis.UniversalClient
	prefix string
}

func NewLimiter(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{client: client, prefix: prefix}
}

func (l *Limiter) key(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
}

// Allow counts one attempt and reports whether it is within the rule,
// along with the attempts left in the current window.
func (l *Limiter) Allow(ctx context.Context, scope, subject string, rule Rule) (bool, int64, error) {
	key := l.key(scope, subject)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment %s attempt: %w", scope, err)
	}

	// Set expiration on first attempt
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set %s window: %w", scope, err)
		}
	}

	remaining := rule.Max - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= rule.Max, remaining, nil
}

// Remaining returns the attempts left without counting one
func (l *Limiter) Remaining(ctx context.Context, scope, subject string, rule Rule) (int64, error) {
	count, err := l.client.Get(ctx, l.key(scope, subject)).Int64()
	if err == redis.Nil {
		return rule.Max, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s attempts: %w", scope, err)
	}

	remaining := rule.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the counter, e.g. after a successful sign-in
func (l *Limiter) Reset(ctx context.Context, scope, subject string) error {
	return l.client.Del(ctx, l.key(scope, subject)).Err()
}
