// Package cache stores finished merge results in Redis so identical
// requests are answered without recomputation. Keys are derived from
// the full request payload, which is safe because merging is
// deterministic.
package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/models"
)

// lockPoll is how often WaitForMerge re-checks a competing computation.
const lockPoll = 100 * time.Millisecond

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds the Redis connection and cache tuning knobs.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	MinIdle  int
	TTL      time.Duration
	MutexTTL time.Duration
}

// LoadConfigFromEnv reads the Redis settings from the environment.
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	poolSize, _ := strconv.Atoi(getEnv("REDIS_POOL_SIZE", "10"))
	minIdle, _ := strconv.Atoi(getEnv("REDIS_MIN_IDLE", "2"))
	ttl, _ := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	mutexTTL, _ := time.ParseDuration(getEnv("CACHE_MUTEX_TTL", "5s"))

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		PoolSize: poolSize,
		MinIdle:  minIdle,
		TTL:      ttl,
		MutexTTL: mutexTTL,
	}
}

// GetClient returns the shared Redis client, connecting on first use.
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			PoolSize:     config.PoolSize,
			MinIdleConns: config.MinIdle,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}

		// Hosted Redis offerings require TLS
		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
		}
	})

	return client, clientErr
}

// Close closes the shared Redis client.
func Close() {
	if client != nil {
		client.Close()
	}
}

// CachedMerge is the stored outcome of a merge request.
type CachedMerge struct {
	Route    models.Route        `json:"route"`
	Warnings []itinerary.Warning `json:"warnings,omitempty"`
}

// MergeKey derives the cache key for a merge request payload. The
// payload must already be in canonical form so equal requests hash
// equal.
func MergeKey(payload []byte) string {
	hash := sha256.Sum256(payload)
	return fmt.Sprintf("merge:%x", hash[:16])
}

// LockKey names the mutex guarding one merge computation.
func LockKey(mergeKey string) string {
	return "lock:" + mergeKey
}

// GetMerged fetches a cached merge result. A miss returns (nil, nil).
func GetMerged(ctx context.Context, key string) (*CachedMerge, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedMerge
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached merge: %w", err)
	}

	return &cached, nil
}

// SetMerged stores a merge result under the given key.
func SetMerged(ctx context.Context, key string, merged *CachedMerge, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal merge result: %w", err)
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock takes the computation mutex. Returns false when another
// worker already holds it.
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := GetClient()
	if err != nil {
		return false, err
	}

	return client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops the computation mutex.
func ReleaseLock(ctx context.Context, key string) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	return client.Del(ctx, key).Err()
}

// WaitForMerge polls until the holder of the merge lock finishes, then
// returns whatever it cached. Callers fall back to computing themselves
// when the result is nil or the wait times out.
func WaitForMerge(ctx context.Context, mergeKey string, maxWait time.Duration) (*CachedMerge, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	lockKey := LockKey(mergeKey)
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		exists, err := client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return GetMerged(ctx, mergeKey)
		}

		time.Sleep(lockPoll)
	}

	return nil, fmt.Errorf("timeout waiting for lock")
}

// HealthCheck verifies Redis is reachable.
func HealthCheck(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return fmt.Errorf("Redis client not initialized: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}

	return nil
}

// Stats reports connection pool numbers for the health endpoint.
func Stats() map[string]interface{} {
	if client == nil {
		return nil
	}

	poolStats := client.PoolStats()
	return map[string]interface{}{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
