package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mr *miniredis.Miniredis

func TestMain(m *testing.M) {
	var err error
	mr, err = miniredis.Run()
	if err != nil {
		panic(err)
	}

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

func testClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// rateLimitedApp wires the middleware behind a stub that injects the
// locals the auth middleware would normally provide.
func rateLimitedApp(rdb *redis.Client, accountID string, limits map[string]int) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("account", &AccountContext{AccountID: accountID, Plan: "standard"})
		c.Locals("rate_limits", limits)
		return c.Next()
	})
	app.Use(RateLimitMiddleware(rdb))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})
	return app
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	code, _ := payload["error"].(string)
	return code
}

func TestRateLimitSkipsWithoutAccount(t *testing.T) {
	rdb := testClient()
	defer rdb.Close()

	app := fiber.New()
	app.Use(RateLimitMiddleware(rdb))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRateLimitDailyQuota(t *testing.T) {
	rdb := testClient()
	defer rdb.Close()

	// Per-second limit disabled so only the daily counter is exercised
	app := rateLimitedApp(rdb, "acct-daily", map[string]int{
		"per_second": 0,
		"per_day":    1,
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining-Day"))

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "daily_quota_exceeded", errorCode(t, resp.Body))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimitPerSecond(t *testing.T) {
	rdb := testClient()
	defer rdb.Close()

	app := rateLimitedApp(rdb, "acct-second", map[string]int{
		"per_second": 1,
		"per_day":    0,
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// A burst must trip the limit in whichever second it lands in
	limited := 0
	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		if resp.StatusCode == 429 {
			limited++
			assert.Equal(t, "rate_limit_exceeded", errorCode(t, resp.Body))
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
	}
	assert.Greater(t, limited, 0)
}

func TestResetRateLimit(t *testing.T) {
	rdb := testClient()
	defer rdb.Close()
	ctx := context.Background()

	key := dayKey("acct-reset", time.Now())
	require.NoError(t, rdb.Set(ctx, key, 42, 0).Err())

	require.NoError(t, ResetRateLimit(rdb, "acct-reset", "day"))
	exists, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	err = ResetRateLimit(rdb, "acct-reset", "month")
	assert.ErrorContains(t, err, "invalid period")
}

func TestGetRateLimitStatus(t *testing.T) {
	rdb := testClient()
	defer rdb.Close()
	ctx := context.Background()

	key := dayKey("acct-status", time.Now())
	require.NoError(t, rdb.Set(ctx, key, 3, 0).Err())

	status := GetRateLimitStatus(rdb, "acct-status", map[string]int{
		"per_second": 10,
		"per_day":    100,
	})

	day, ok := status["day"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 100, day["limit"])
	assert.Equal(t, int64(3), day["used"])
	assert.Equal(t, int64(97), day["remaining"])
}
