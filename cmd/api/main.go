//go:build !with_auth

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
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

	if _, err := cache.GetClient(); err != nil {
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
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		mcol.Serve(addr)
	}

	// Route events are published when NATS is configured
	var pub *publisher.NATSPublisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		logSubjects := os.Getenv("NATS_LOG_SUBJECTS") == "true"
		pub, err = publisher.NewNATSPublisher(natsURL, logSubjects, mcol)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, route events disabled")
			pub = nil
		} else {
			defer pub.Close()
			log.Info().Msg("✓ NATS publisher connected")
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "RouteWeave Core API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":          "RouteWeave Core API",
			"version":       "1.0.0",
			"documentation": "https://docs.routeweave.io",
			"status":        "operational",
		})
	})
	app.Get("/health", api.Health(pub))

	v1 := app.Group("/v1")
	v1.Post("/routes/merge", api.MergeRoutes(mcol, pub))
	v1.Get("/routes", api.ListRoutes)
	v1.Get("/routes/:id", api.GetRoute)
	v1.Get("/routes/:id/position", api.RoutePosition)
	v1.Get("/modes", api.ListModes)

	// Fallthrough 404
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	addr := fmt.Sprintf(":%s", getEnv("API_PORT", "8080"))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	// Start server
	log.Info().Msgf("🚀 Server listening on http://localhost%s", addr)
	log.Info().Msgf("📍 Merge routes: POST http://localhost%s/v1/routes/merge", addr)
	log.Info().Msgf("❤️  Health check: http://localhost%s/health", addr)

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

	log.Error().Err(err).Msg("Request failed")

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
