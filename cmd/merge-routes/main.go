package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/db"
	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/models"
	"github.com/routeweave/routeweave_core/internal/modes"
)

func main() {
	// Command-line flags
	inputPath := flag.String("input", "", "Path to a JSON file holding an array of legs (required)")
	alighting := flag.String("alighting", "", "Comma separated extra alighting seconds, one per leg boundary")
	waitAverse := flag.String("wait-averse", "", "Comma separated modes that should not absorb waiting time (default FOOT,TRANSFER)")
	noFuse := flag.Bool("no-fuse", false, "Keep adjacent same-mode segments separate")
	pretty := flag.Bool("pretty", false, "Indent the JSON output")
	outputPath := flag.String("output", "", "Write the result to this file instead of stdout")
	store := flag.Bool("store", false, "Persist the merged route to the database")

	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Validate required flags
	if *inputPath == "" {
		fmt.Println("Usage: merge-routes --input=<legs.json> [--alighting=60,0] [--wait-averse=FOOT,TRANSFER] [--no-fuse] [--store] [--pretty] [--output=<path>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Validate file exists
	if _, err := os.Stat(*inputPath); os.IsNotExist(err) {
		log.Fatal().Msgf("Input file not found: %s", *inputPath)
	}

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input file")
	}

	var legs []models.Leg
	if err := json.Unmarshal(data, &legs); err != nil {
		log.Fatal().Err(err).Msg("Input is not a JSON array of legs")
	}

	if err := models.ValidateLegs(legs); err != nil {
		log.Fatal().Err(err).Msg("Input legs are invalid")
	}

	merger, err := itinerary.NewMerger(legs)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot merge these legs")
	}

	if *alighting != "" {
		seconds, err := parseIntList(*alighting)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --alighting value")
		}
		if err := merger.SetExtraAlightingSeconds(seconds); err != nil {
			log.Fatal().Err(err).Msg("Invalid --alighting value")
		}
	}

	if *waitAverse != "" {
		averse := parseModeList(*waitAverse)
		registry := modes.GetRegistry()
		for _, mode := range averse {
			if !registry.Known(mode) {
				log.Warn().Str("mode", string(mode)).Msg("Unknown transport mode, merging it anyway")
			}
		}
		merger.SetWaitAverseModes(averse...)
	}

	if *noFuse {
		merger.SetFuseSameMode(false)
	}

	result := merger.Merge()
	route := models.NewRoute(result.Segments)

	log.Info().
		Int("legs", len(legs)).
		Int("segments", len(result.Segments)).
		Int("warnings", len(result.Warnings)).
		Int("duration_seconds", route.DurationSeconds).
		Msg("✓ Legs merged")

	if *store {
		pool, err := db.GetDB()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.SaveRoute(context.Background(), pool, &route, ""); err != nil {
			log.Fatal().Err(err).Msg("Failed to store route")
		}
		log.Info().Str("route_id", route.ID).Msg("✓ Route stored")
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []itinerary.Warning{}
	}

	output := map[string]interface{}{
		"route":    route,
		"warnings": warnings,
	}

	var encoded []byte
	if *pretty {
		encoded, err = json.MarshalIndent(output, "", "  ")
	} else {
		encoded, err = json.Marshal(output)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, append(encoded, '\n'), 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write output file")
		}
		log.Info().Str("path", *outputPath).Msg("✓ Result written")
		return
	}

	fmt.Println(string(encoded))
}

// parseIntList parses "60,0,120" into ints
func parseIntList(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	seconds := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", part)
		}
		seconds = append(seconds, n)
	}
	return seconds, nil
}

// parseModeList parses "FOOT,TRANSFER" into transport modes
func parseModeList(value string) []models.TransportMode {
	parts := strings.Split(value, ",")
	parsed := make([]models.TransportMode, 0, len(parts))
	for _, part := range parts {
		mode := strings.ToUpper(strings.TrimSpace(part))
		if mode == "" {
			continue
		}
		parsed = append(parsed, models.TransportMode(mode))
	}
	return parsed
}
