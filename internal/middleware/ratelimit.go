package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limits applied when the account row carries none.
const (
	defaultPerSecond = 10
	defaultPerDay    = 10000
)

func secondKey(accountID string, now time.Time) string {
	return fmt.Sprintf("rw:limit:%s:sec:%d", accountID, now.Unix())
}

func dayKey(accountID string, now time.Time) string {
	return fmt.Sprintf("rw:limit:%s:day:%s", accountID, now.Format("2006-01-02"))
}

// RateLimitMiddleware enforces the per-second and per-day limits
// attached to the account by the auth middleware. Counters are fixed
// windows in Redis (INCR plus EXPIRE on first use). When Redis is
// unreachable the request is allowed through; merging must not depend
// on the limiter.
func RateLimitMiddleware(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := c.Locals("account").(*AccountContext)
		if !ok {
			// Only authenticated traffic is limited
			return c.Next()
		}

		rateLimits, ok := c.Locals("rate_limits").(map[string]int)
		if !ok {
			rateLimits = map[string]int{
				"per_second": defaultPerSecond,
				"per_day":    defaultPerDay,
			}
		}

		ctx := context.Background()
		now := time.Now()

		if limit := rateLimits["per_second"]; limit > 0 {
			count, err := bumpCounter(ctx, rdb, secondKey(account.AccountID, now), 2*time.Second)
			switch {
			case err != nil:
				log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
			case count > int64(limit):
				c.Set("X-RateLimit-Limit-Second", strconv.Itoa(limit))
				c.Set("X-RateLimit-Remaining-Second", "0")
				c.Set("X-RateLimit-Reset-Second", strconv.FormatInt(now.Unix()+1, 10))
				c.Set("Retry-After", "1")

				return c.Status(429).JSON(fiber.Map{
					"error":       "rate_limit_exceeded",
					"message":     "Too many requests per second",
					"limit_type":  "per_second",
					"limit":       limit,
					"retry_after": 1,
				})
			}
		}

		if limit := rateLimits["per_day"]; limit > 0 {
			// The window outlives the calendar day so a counter never
			// vanishes before its own midnight in any timezone.
			count, err := bumpCounter(ctx, rdb, dayKey(account.AccountID, now), 25*time.Hour)
			switch {
			case err != nil:
				log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
			case count > int64(limit):
				midnight := nextMidnight(now)
				retryAfter := int64(midnight.Sub(now).Seconds())

				c.Set("X-RateLimit-Limit-Day", strconv.Itoa(limit))
				c.Set("X-RateLimit-Remaining-Day", "0")
				c.Set("X-RateLimit-Reset-Day", strconv.FormatInt(midnight.Unix(), 10))
				c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

				return c.Status(429).JSON(fiber.Map{
					"error":       "daily_quota_exceeded",
					"message":     "Daily quota exceeded",
					"limit_type":  "per_day",
					"limit":       limit,
					"used":        count,
					"retry_after": retryAfter,
					"reset_at":    midnight.Format(time.RFC3339),
				})
			default:
				c.Set("X-RateLimit-Remaining-Day", strconv.FormatInt(int64(limit)-count, 10))
			}
		}

		c.Set("X-RateLimit-Limit-Second", strconv.Itoa(rateLimits["per_second"]))
		c.Set("X-RateLimit-Limit-Day", strconv.Itoa(rateLimits["per_day"]))

		return c.Next()
	}
}

// bumpCounter increments a fixed-window counter, stamping the TTL when
// the key is created.
func bumpCounter(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		rdb.Expire(ctx, key, window)
	}
	return count, nil
}

// nextMidnight returns the first instant of the following day.
func nextMidnight(now time.Time) time.Time {
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
}

// ResetRateLimit clears an account's current counter for one period.
func ResetRateLimit(rdb *redis.Client, accountID string, period string) error {
	now := time.Now()

	var key string
	switch period {
	case "second":
		key = secondKey(accountID, now)
	case "day":
		key = dayKey(accountID, now)
	default:
		return fmt.Errorf("invalid period: %s", period)
	}

	return rdb.Del(context.Background(), key).Err()
}

// GetRateLimitStatus reports the live counter values next to their
// configured limits.
func GetRateLimitStatus(rdb *redis.Client, accountID string, rateLimits map[string]int) map[string]interface{} {
	ctx := context.Background()
	now := time.Now()

	return map[string]interface{}{
		"second": windowStatus(rateLimits["per_second"], counterValue(ctx, rdb, secondKey(accountID, now))),
		"day":    windowStatus(rateLimits["per_day"], counterValue(ctx, rdb, dayKey(accountID, now))),
	}
}

func windowStatus(limit int, used int64) map[string]interface{} {
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return map[string]interface{}{
		"limit":     limit,
		"used":      used,
		"remaining": remaining,
	}
}

// counterValue reads a counter, treating a missing key as zero.
func counterValue(ctx context.Context, rdb *redis.Client, key string) int64 {
	val, err := rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return val
}
