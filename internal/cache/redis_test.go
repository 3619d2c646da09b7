package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/models"
)

var mr *miniredis.Miniredis

func TestMain(m *testing.M) {
	var err error
	mr, err = miniredis.Run()
	if err != nil {
		panic(err)
	}

	// The client singleton reads these on first use
	os.Setenv("REDIS_HOST", mr.Host())
	os.Setenv("REDIS_PORT", mr.Port())

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

func TestMergeKey(t *testing.T) {
	a := MergeKey([]byte(`{"legs":[1]}`))
	b := MergeKey([]byte(`{"legs":[1]}`))
	c := MergeKey([]byte(`{"legs":[2]}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "merge:")
}

func TestGetMergedMiss(t *testing.T) {
	cached, err := GetMerged(context.Background(), "merge:does-not-exist")
	assert.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSetAndGetMerged(t *testing.T) {
	ctx := context.Background()
	dep := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	merged := &CachedMerge{
		Route: models.Route{
			ID:            "route-1",
			DepartureTime: dep,
			ArrivalTime:   dep.Add(20 * time.Minute),
			Segments: []models.Segment{
				{Nr: 1, Mode: models.ModeBus, DepartureTime: dep, ArrivalTime: dep.Add(20 * time.Minute), DurationSeconds: 1200},
			},
		},
		Warnings: []itinerary.Warning{
			{Message: "shifted segment by 300 seconds to resolve overlap", Mode: models.ModeBus},
		},
	}

	key := MergeKey([]byte("roundtrip"))
	assert.NoError(t, SetMerged(ctx, key, merged, time.Minute))

	got, err := GetMerged(ctx, key)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "route-1", got.Route.ID)
	assert.Len(t, got.Route.Segments, 1)
	assert.Equal(t, models.ModeBus, got.Route.Segments[0].Mode)
	assert.True(t, got.Route.DepartureTime.Equal(dep))
	assert.Len(t, got.Warnings, 1)
	assert.Equal(t, models.ModeBus, got.Warnings[0].Mode)
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	lockKey := LockKey(MergeKey([]byte("lock-test")))

	acquired, err := AcquireLock(ctx, lockKey, 5*time.Second)
	assert.NoError(t, err)
	assert.True(t, acquired)

	// Second acquisition must fail while the lock is held
	again, err := AcquireLock(ctx, lockKey, 5*time.Second)
	assert.NoError(t, err)
	assert.False(t, again)

	assert.NoError(t, ReleaseLock(ctx, lockKey))

	released, err := AcquireLock(ctx, lockKey, 5*time.Second)
	assert.NoError(t, err)
	assert.True(t, released)

	assert.NoError(t, ReleaseLock(ctx, lockKey))
}

func TestWaitForMergeReturnsCachedResult(t *testing.T) {
	ctx := context.Background()
	key := MergeKey([]byte("wait-test"))

	merged := &CachedMerge{Route: models.Route{ID: "route-2"}}
	assert.NoError(t, SetMerged(ctx, key, merged, time.Minute))

	got, err := WaitForMerge(ctx, key, time.Second)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "route-2", got.Route.ID)
}

func TestWaitForMergeTimesOut(t *testing.T) {
	ctx := context.Background()
	key := MergeKey([]byte("held-lock"))

	acquired, err := AcquireLock(ctx, LockKey(key), time.Minute)
	assert.NoError(t, err)
	assert.True(t, acquired)
	defer ReleaseLock(ctx, LockKey(key))

	_, err = WaitForMerge(ctx, key, 300*time.Millisecond)
	assert.ErrorContains(t, err, "timeout")
}
