//go:build with_auth

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/api"
	"github.com/routeweave/routeweave_core/internal/cache"
	"github.com/routeweave/routeweave_core/internal/db"
	"github.com/routeweave/routeweave_core/internal/metrics"
	"github.com/routeweave/routeweave_core/internal/middleware"
	"github.com/routeweave/routeweave_core/internal/modes"
	"github.com/routeweave/routeweave_core/internal/publisher"
)

func main() {
	setupLogging()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	log.Info().Msg("Starting RouteWeave Core API server...")

	// Postgres and Redis are hard dependencies, refuse to start without them
	pool, err := db.GetDB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("✓ Database connection established")

	rdb, err := cache.GetClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()
	log.Info().Msg("✓ Redis connection established")

	// Load mode profiles, falling back to builtin defaults
	if err := modes.GetRegistry().LoadFromDB(context.Background(), pool); err != nil {
		log.Warn().Err(err).Msg("Mode profiles not loaded from database, using builtin defaults")
	}

	// Metrics are always collected, the scrape endpoint is opt-in
	mcol := metrics.NewCollector()
	var metricsSrv *http.Server
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		metricsSrv = mcol.Serve(addr)
	}

	// Route events are published when NATS is configured
	var pub *publisher.NATSPublisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		pub, err = publisher.NewNATSPublisher(natsURL, getEnvBool("NATS_LOG_SUBJECTS", false), mcol)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, route events disabled")
			pub = nil
		} else {
			log.Info().Msg("✓ NATS publisher connected")
		}
	}

	// Check which request middleware is enabled
	enableAuth := getEnvBool("ENABLE_AUTH", true)
	enableRateLimit := getEnvBool("ENABLE_RATE_LIMIT", true)
	enableAnalytics := getEnvBool("ENABLE_ANALYTICS", true)

	log.Info().
		Bool("auth", enableAuth).
		Bool("rate_limit", enableRateLimit).
		Bool("analytics", enableAnalytics).
		Msg("Configuration loaded")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "RouteWeave Core API v1.0",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
	}))

	// ============================================
	// Public surface
	// ============================================
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":          "RouteWeave Core API",
			"version":       "1.0.0",
			"documentation": "https://docs.routeweave.io",
			"status":        "operational",
			"authentication": map[string]interface{}{
				"enabled": enableAuth,
				"type":    "Bearer Token (API Key)",
				"format":  "Authorization: Bearer rw_live_...",
			},
		})
	})

	app.Get("/health", api.Health(pub))

	// ============================================
	// Versioned API, authenticated
	// ============================================
	v1 := app.Group("/v1")

	// Rate limiting and analytics both read the account context, so
	// they only make sense behind auth
	if enableAuth {
		v1.Use(middleware.AuthMiddleware(pool))
		log.Info().Msg("✓ Authentication middleware enabled")
	}
	if enableRateLimit && enableAuth {
		v1.Use(middleware.RateLimitMiddleware(rdb))
		log.Info().Msg("✓ Rate limiting middleware enabled")
	}
	if enableAnalytics && enableAuth {
		v1.Use(middleware.AnalyticsMiddleware(pool))
		log.Info().Msg("✓ Analytics middleware enabled")
	}

	// Scope checks only make sense once authentication filled the context
	scoped := func(scope string) fiber.Handler {
		if !enableAuth {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return middleware.RequireScope(scope)
	}

	// Core API endpoints
	v1.Post("/routes/merge", scoped("routes:merge"), api.MergeRoutes(mcol, pub))
	v1.Get("/routes", scoped("routes:read"), api.ListRoutes)
	v1.Get("/routes/:id", scoped("routes:read"), api.GetRoute)
	v1.Get("/routes/:id/position", scoped("routes:read"), api.RoutePosition)
	v1.Get("/modes", api.ListModes)
	v1.Get("/account/usage", api.AccountUsage)

	// ============================================
	// Fallthrough 404
	// ============================================
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error":   "not_found",
			"message": "No such endpoint",
			"path":    c.Path(),
		})
	})

	addr := fmt.Sprintf(":%s", getEnv("API_PORT", "8080"))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("⚠️  Received shutdown signal...")
		if pub != nil {
			log.Info().Msg("Draining NATS connection...")
			pub.Close()
		}
		if metricsSrv != nil {
			log.Info().Msg("Stopping metrics server...")
			metricsSrv.Shutdown(context.Background())
		}
		log.Info().Msg("Closing database connections...")
		db.Close()
		log.Info().Msg("Closing Redis connections...")
		cache.Close()
		log.Info().Msg("Shutting down server...")

		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
		log.Info().Msg("✓ Server shut down gracefully")
	}()

	// Start server
	log.Info().Msg("═══════════════════════════════════════════════════")
	log.Info().Msg("🚀 RouteWeave Core API Server Started")
	log.Info().Msgf("📍 Listening on: http://localhost%s", addr)
	log.Info().Msg("═══════════════════════════════════════════════════")
	log.Info().Msg("Available Endpoints:")
	log.Info().Msg("  GET  /                         - API information")
	log.Info().Msg("  GET  /health                   - Health check")
	log.Info().Msg("  POST /v1/routes/merge          - Merge route legs")
	log.Info().Msg("  GET  /v1/routes                - List stored routes")
	log.Info().Msg("  GET  /v1/routes/:id            - Fetch a stored route")
	log.Info().Msg("  GET  /v1/routes/:id/position   - Position along a route")
	log.Info().Msg("  GET  /v1/modes                 - Transport mode profiles")
	if enableAuth {
		log.Info().Msg("  GET  /v1/account/usage         - Account usage statistics")
	}
	log.Info().Msg("═══════════════════════════════════════════════════")

	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "YES" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if os.Getenv("LOG_FORMAT") != "JSON" {
		output := zerolog.ConsoleWriter{Out: os.Stdout}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}

// customErrorHandler turns unhandled errors into JSON responses.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")

	return c.Status(code).JSON(fiber.Map{
		"error":   "internal_error",
		"message": err.Error(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
