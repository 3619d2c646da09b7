package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/cache"
	"github.com/routeweave/routeweave_core/internal/db"
	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/middleware"
	"github.com/routeweave/routeweave_core/internal/modes"
)

// GetRoute handles the /v1/routes/:id endpoint
func GetRoute(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "invalid_route_id",
			"message": "Route ID must be a UUID",
		})
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Error().Err(err).Msg("Database error")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	route, err := db.GetRoute(c.Context(), pool, id)
	if err != nil {
		log.Error().Err(err).Str("route_id", id).Msg("Failed to load route")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
	if route == nil {
		return c.Status(404).JSON(fiber.Map{
			"error":   "route_not_found",
			"message": "No stored route with that ID",
		})
	}

	return c.JSON(fiber.Map{"route": route})
}

// ListRoutes handles the /v1/routes endpoint
func ListRoutes(c *fiber.Ctx) error {
	// Parse limit with default value
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
			if limit > 100 {
				limit = 100 // Max limit to prevent abuse
			}
		}
	}

	// Authenticated requests only see their own routes
	accountID := ""
	if account := middleware.AccountFromCtx(c); account != nil {
		accountID = account.AccountID
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Error().Err(err).Msg("Database error")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	routes, err := db.ListRecentRoutes(c.Context(), pool, accountID, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list routes")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"routes": routes,
		"total":  len(routes),
	})
}

// RoutePosition handles the /v1/routes/:id/position endpoint
func RoutePosition(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "invalid_route_id",
			"message": "Route ID must be a UUID",
		})
	}

	elapsed, err := strconv.Atoi(c.Query("elapsed", "0"))
	if err != nil || elapsed < 0 {
		return c.Status(400).JSON(fiber.Map{
			"error":   "invalid_elapsed",
			"message": "elapsed must be a non-negative number of seconds",
		})
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Error().Err(err).Msg("Database error")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	route, err := db.GetRoute(c.Context(), pool, id)
	if err != nil {
		log.Error().Err(err).Str("route_id", id).Msg("Failed to load route")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
	if route == nil {
		return c.Status(404).JSON(fiber.Map{
			"error":   "route_not_found",
			"message": "No stored route with that ID",
		})
	}

	position, err := itinerary.PositionAt(route.Segments, time.Duration(elapsed)*time.Second)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error":   "invalid_elapsed",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"route_id":        route.ID,
		"elapsed_seconds": elapsed,
		"position":        position,
	})
}

// ListModes handles the /v1/modes endpoint
func ListModes(c *fiber.Ctx) error {
	registry := modes.GetRegistry()

	source := "builtin"
	if registry.Loaded() {
		source = "database"
	}

	return c.JSON(fiber.Map{
		"modes":  registry.All(),
		"source": source,
	})
}

// AccountUsage handles the /v1/account/usage endpoint
func AccountUsage(c *fiber.Ctx) error {
	account := middleware.AccountFromCtx(c)
	if account == nil {
		return c.Status(401).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
	}

	// Parse days with default value
	days := 7
	if daysStr := c.Query("days"); daysStr != "" {
		if parsedDays, err := strconv.Atoi(daysStr); err == nil && parsedDays > 0 {
			days = parsedDays
			if days > 90 {
				days = 90
			}
		}
	}

	pool, err := db.GetDB()
	if err != nil {
		log.Error().Err(err).Msg("Database error")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -days)

	usage, err := middleware.GetAccountUsage(pool, account.AccountID, startDate, endDate)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load account usage")
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	response := fiber.Map{
		"account": fiber.Map{
			"id":   account.AccountID,
			"name": account.Name,
			"plan": account.Plan,
		},
		"days":  days,
		"usage": usage,
	}

	// Include live rate limit counters when Redis is reachable
	if rateLimits, ok := c.Locals("rate_limits").(map[string]int); ok {
		if rdb, err := cache.GetClient(); err == nil {
			response["rate_limits"] = middleware.GetRateLimitStatus(rdb, account.AccountID, rateLimits)
		}
	}

	return c.JSON(response)
}
