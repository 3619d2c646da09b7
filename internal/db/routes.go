package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routeweave/routeweave_core/internal/models"
)

// SaveRoute persists a merged route. A missing ID is filled with a new
// UUID before the insert.
func SaveRoute(ctx context.Context, db *pgxpool.Pool, route *models.Route, accountID string) error {
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now().UTC()
	}

	fromPlace, err := json.Marshal(route.From)
	if err != nil {
		return fmt.Errorf("failed to marshal origin: %w", err)
	}
	toPlace, err := json.Marshal(route.To)
	if err != nil {
		return fmt.Errorf("failed to marshal destination: %w", err)
	}
	segments, err := json.Marshal(route.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	var account interface{}
	if accountID != "" {
		account = accountID
	}

	_, err = db.Exec(ctx, `
		INSERT INTO route (
			id, account_id, from_place, to_place,
			departure_time, arrival_time, duration_seconds, length_meters,
			segments, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		route.ID,
		account,
		fromPlace,
		toPlace,
		route.DepartureTime,
		route.ArrivalTime,
		route.DurationSeconds,
		route.LengthMeters,
		segments,
		route.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert route: %w", err)
	}

	return nil
}

// GetRoute fetches a stored route by ID, returning nil when not found
func GetRoute(ctx context.Context, db *pgxpool.Pool, id string) (*models.Route, error) {
	var (
		route    models.Route
		from     []byte
		to       []byte
		segments []byte
	)

	err := db.QueryRow(ctx, `
		SELECT id, from_place, to_place,
		       departure_time, arrival_time, duration_seconds, length_meters,
		       segments, created_at
		FROM route
		WHERE id = $1
	`, id).Scan(
		&route.ID,
		&from,
		&to,
		&route.DepartureTime,
		&route.ArrivalTime,
		&route.DurationSeconds,
		&route.LengthMeters,
		&segments,
		&route.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}

	if err := json.Unmarshal(from, &route.From); err != nil {
		return nil, fmt.Errorf("stored origin is corrupt: %w", err)
	}
	if err := json.Unmarshal(to, &route.To); err != nil {
		return nil, fmt.Errorf("stored destination is corrupt: %w", err)
	}
	if err := json.Unmarshal(segments, &route.Segments); err != nil {
		return nil, fmt.Errorf("stored segments are corrupt: %w", err)
	}

	return &route, nil
}

// RouteSummary is a lightweight listing row for stored routes
type RouteSummary struct {
	ID              string    `json:"id"`
	FromName        string    `json:"from_name"`
	ToName          string    `json:"to_name"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DurationSeconds int       `json:"duration_seconds"`
	LengthMeters    int       `json:"length_meters"`
	SegmentCount    int       `json:"segment_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListRecentRoutes returns the newest stored routes, optionally scoped
// to one account
func ListRecentRoutes(ctx context.Context, db *pgxpool.Pool, accountID string, limit int) ([]RouteSummary, error) {
	query := `
		SELECT id,
		       COALESCE(from_place->>'name', ''),
		       COALESCE(to_place->>'name', ''),
		       departure_time, arrival_time, duration_seconds, length_meters,
		       jsonb_array_length(segments),
		       created_at
		FROM route
	`
	args := []interface{}{}
	if accountID != "" {
		query += ` WHERE account_id = $1`
		args = append(args, accountID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	summaries := []RouteSummary{}
	for rows.Next() {
		var s RouteSummary
		if err := rows.Scan(
			&s.ID,
			&s.FromName,
			&s.ToName,
			&s.DepartureTime,
			&s.ArrivalTime,
			&s.DurationSeconds,
			&s.LengthMeters,
			&s.SegmentCount,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}
