package api

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/cache"
	"github.com/routeweave/routeweave_core/internal/db"
	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/metrics"
	"github.com/routeweave/routeweave_core/internal/middleware"
	"github.com/routeweave/routeweave_core/internal/models"
	"github.com/routeweave/routeweave_core/internal/modes"
	"github.com/routeweave/routeweave_core/internal/publisher"
)

// MergeRequest is the body of POST /v1/routes/merge
type MergeRequest struct {
	Legs                  []models.Leg           `json:"legs"`
	ExtraAlightingSeconds []int                  `json:"extra_alighting_seconds"`
	WaitAverseModes       []models.TransportMode `json:"wait_averse_modes"`
	FuseSameMode          *bool                  `json:"fuse_same_mode"`
	Store                 bool                   `json:"store"`
}

// MergeResponse is the API response structure
type MergeResponse struct {
	Route    models.Route        `json:"route"`
	Warnings []itinerary.Warning `json:"warnings"`
	Cached   bool                `json:"cached"`
}

// mergePlan is the canonical form of a request used for cache keying
type mergePlan struct {
	Legs           []models.Leg           `json:"legs"`
	ExtraAlighting []int                  `json:"extra_alighting,omitempty"`
	WaitAverse     []models.TransportMode `json:"wait_averse"`
	Fuse           bool                   `json:"fuse"`
}

// MergeRoutes handles the /v1/routes/merge endpoint
func MergeRoutes(mcol *metrics.Collector, pub *publisher.NATSPublisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req MergeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error":   "invalid_json",
				"message": "Request body must be valid JSON",
			})
		}

		if len(req.Legs) == 0 {
			mcol.MergeFailures.Inc()
			return c.Status(400).JSON(fiber.Map{
				"error":   "empty_input",
				"message": "At least one leg is required",
			})
		}

		if err := models.ValidateLegs(req.Legs); err != nil {
			mcol.MergeFailures.Inc()
			return c.Status(400).JSON(fiber.Map{
				"error":      "invalid_legs",
				"message":    "One or more legs are invalid",
				"violations": strings.Split(err.Error(), "\n"),
			})
		}

		// Absent wait-averse modes fall back to the registry defaults.
		// An explicit empty list is respected as "no mode is averse".
		waitAverse := req.WaitAverseModes
		if waitAverse == nil {
			waitAverse = modes.GetRegistry().WaitAverseModes()
		} else {
			waitAverse = append([]models.TransportMode(nil), waitAverse...)
			sort.Slice(waitAverse, func(i, j int) bool { return waitAverse[i] < waitAverse[j] })
		}

		fuse := true
		if req.FuseSameMode != nil {
			fuse = *req.FuseSameMode
		}

		accountID := ""
		if account := middleware.AccountFromCtx(c); account != nil {
			accountID = account.AccountID
		}

		// Cache key covers everything that influences the outcome
		payload, err := json.Marshal(mergePlan{
			Legs:           req.Legs,
			ExtraAlighting: req.ExtraAlightingSeconds,
			WaitAverse:     waitAverse,
			Fuse:           fuse,
		})
		if err != nil {
			return c.Status(500).JSON(fiber.Map{
				"error":   "internal_error",
				"message": "Failed to process request",
			})
		}

		ctx := c.Context()
		cacheKey := cache.MergeKey(payload)
		lockKey := cache.LockKey(cacheKey)
		cacheConfig := cache.LoadConfigFromEnv()

		// Try to get from cache
		cached, err := cache.GetMerged(ctx, cacheKey)
		if err == nil && cached != nil {
			return respondCached(c, mcol, cached, &req, accountID, cacheKey, cacheConfig.TTL)
		}
		mcol.CacheMisses.Inc()

		// Try to acquire lock
		acquired, err := cache.AcquireLock(ctx, lockKey, cacheConfig.MutexTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to acquire merge lock")
			// Continue without lock (degrade gracefully)
		} else if !acquired {
			// Another request is computing this merge, wait for it
			waited, err := cache.WaitForMerge(ctx, cacheKey, 3*time.Second)
			if err == nil && waited != nil {
				return respondCached(c, mcol, waited, &req, accountID, cacheKey, cacheConfig.TTL)
			}
			// If waiting failed, compute anyway
		}

		// Ensure lock is released
		defer func() {
			if acquired {
				cache.ReleaseLock(ctx, lockKey)
			}
		}()

		merger, err := itinerary.NewMerger(req.Legs)
		if err != nil {
			mcol.MergeFailures.Inc()
			return mergeSetupError(c, err)
		}
		if req.ExtraAlightingSeconds != nil {
			if err := merger.SetExtraAlightingSeconds(req.ExtraAlightingSeconds); err != nil {
				mcol.MergeFailures.Inc()
				return mergeSetupError(c, err)
			}
		}
		merger.SetWaitAverseModes(waitAverse...)
		merger.SetFuseSameMode(fuse)

		start := time.Now()
		result := merger.Merge()
		mcol.MergeDuration.Observe(time.Since(start).Seconds())
		mcol.MergesTotal.Inc()
		mcol.WarningsTotal.Add(float64(len(result.Warnings)))
		mcol.SegmentsPerRoute.Observe(float64(len(result.Segments)))

		route := models.NewRoute(result.Segments)

		if req.Store {
			if err := persistRoute(c, &route, accountID, mcol); err != nil {
				log.Error().Err(err).Msg("Failed to store merged route")
			}
		}

		if pub != nil {
			publishMerge(pub, accountID, &route, result.Warnings)
		}

		// Cache result
		entry := &cache.CachedMerge{Route: route, Warnings: result.Warnings}
		if err := cache.SetMerged(ctx, cacheKey, entry, cacheConfig.TTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache merge result")
		}

		c.Locals("cache_hit", false)
		c.Locals("merge_stats", middleware.MergeStats{
			Legs:     len(req.Legs),
			Segments: len(result.Segments),
			Warnings: len(result.Warnings),
		})

		warnings := result.Warnings
		if warnings == nil {
			warnings = []itinerary.Warning{}
		}

		return c.JSON(MergeResponse{
			Route:    route,
			Warnings: warnings,
			Cached:   false,
		})
	}
}

// respondCached serves a merge result straight from the cache,
// persisting it first when the request asks for storage and the
// cached copy was never saved.
func respondCached(c *fiber.Ctx, mcol *metrics.Collector, cached *cache.CachedMerge, req *MergeRequest, accountID, cacheKey string, ttl time.Duration) error {
	mcol.CacheHits.Inc()

	if req.Store && cached.Route.ID == "" {
		if err := persistRoute(c, &cached.Route, accountID, mcol); err != nil {
			log.Error().Err(err).Msg("Failed to store cached route")
		} else if err := cache.SetMerged(c.Context(), cacheKey, cached, ttl); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
	}

	c.Locals("cache_hit", true)
	c.Locals("merge_stats", middleware.MergeStats{
		Legs:     len(req.Legs),
		Segments: len(cached.Route.Segments),
		Warnings: len(cached.Warnings),
	})

	warnings := cached.Warnings
	if warnings == nil {
		warnings = []itinerary.Warning{}
	}

	return c.JSON(MergeResponse{
		Route:    cached.Route,
		Warnings: warnings,
		Cached:   true,
	})
}

// mergeSetupError maps merger construction failures to API errors
func mergeSetupError(c *fiber.Ctx, err error) error {
	code := "invalid_configuration"
	if errors.Is(err, itinerary.ErrEmptyInput) {
		code = "empty_input"
	}
	return c.Status(400).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}

// persistRoute saves a merged route for later retrieval
func persistRoute(c *fiber.Ctx, route *models.Route, accountID string, mcol *metrics.Collector) error {
	pool, err := db.GetDB()
	if err != nil {
		return err
	}
	if err := db.SaveRoute(c.Context(), pool, route, accountID); err != nil {
		return err
	}
	mcol.RoutesStored.Inc()
	return nil
}

// publishMerge emits the merge event, logging failures instead of
// surfacing them to the client
func publishMerge(pub *publisher.NATSPublisher, accountID string, route *models.Route, warnings []itinerary.Warning) {
	err := pub.PublishRouteMerged(accountID, publisher.RouteMergedMessage{
		RouteID:         route.ID,
		From:            route.From,
		To:              route.To,
		Segments:        len(route.Segments),
		DurationSeconds: route.DurationSeconds,
		LengthMeters:    route.LengthMeters,
		Warnings:        warnings,
		MergedAt:        time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to publish merge event")
	}
}

// Health handles the /health endpoint
func Health(pub *publisher.NATSPublisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()

		// Check database
		dbErr := db.HealthCheck(ctx)
		dbStatus := "ok"
		if dbErr != nil {
			dbStatus = dbErr.Error()
		}

		// Check Redis
		redisErr := cache.HealthCheck(ctx)
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = redisErr.Error()
		}

		// Mode profiles are informational only
		profileSource := "builtin"
		if modes.GetRegistry().Loaded() {
			profileSource = "database"
		}

		// NATS is optional and does not affect overall health
		natsStatus := "disabled"
		if pub != nil {
			natsStatus = "disconnected"
			if pub.Connected() {
				natsStatus = "connected"
			}
		}

		// Overall status
		status := "healthy"
		httpStatus := 200
		if dbErr != nil || redisErr != nil {
			status = "unhealthy"
			httpStatus = 503
		}

		resp := fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"database": dbStatus,
				"redis":    redisStatus,
				"nats":     natsStatus,
			},
			"mode_profiles": profileSource,
		}
		if redisErr == nil {
			resp["cache_pool"] = cache.Stats()
		}

		return c.Status(httpStatus).JSON(resp)
	}
}
