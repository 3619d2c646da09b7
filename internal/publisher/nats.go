// Package publisher emits route events to NATS so downstream
// consumers (billing, notifications, data warehouse) can react to
// merges without polling the API.
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/itinerary"
	"github.com/routeweave/routeweave_core/internal/models"
)

// PublisherMetrics is the slice of instrumentation the publisher needs.
type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(up bool)
}

// NATSPublisher publishes route events over a shared NATS connection.
type NATSPublisher struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
}

// NewNATSPublisher connects to NATS and keeps the connection alive
// with unlimited reconnects.
func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("routeweave-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.NATSSetConnected(false)
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			m.NATSSetConnected(true)
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.NATSSetConnected(false)
			log.Info().Msg("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	m.NATSSetConnected(true)
	return &NATSPublisher{nc: nc, logSubjects: logSubjects, metrics: m}, nil
}

// Connected reports whether the underlying connection is up.
func (p *NATSPublisher) Connected() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
	}
	p.nc.Close()
}

// RouteMergedMessage is the event body published after each merge.
type RouteMergedMessage struct {
	RouteID         string              `json:"route_id,omitempty"`
	From            models.Place        `json:"from"`
	To              models.Place        `json:"to"`
	Segments        int                 `json:"segments"`
	DurationSeconds int                 `json:"duration_seconds"`
	LengthMeters    int                 `json:"length_meters"`
	Warnings        []itinerary.Warning `json:"warnings,omitempty"`
	MergedAt        time.Time           `json:"merged_at"`
}

// PublishRouteMerged emits a merge event on routes.merged.<account>.
func (p *NATSPublisher) PublishRouteMerged(account string, msg RouteMergedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal route event: %w", err)
	}

	subject := fmt.Sprintf("routes.merged.%s", subjectToken(account))

	start := time.Now()
	err = p.nc.Publish(subject, data)
	p.metrics.PublishObserve(time.Since(start))
	if err != nil {
		p.metrics.NATSPublishErrInc()
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.metrics.NATSPublishedInc()

	if p.logSubjects {
		log.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Published route event")
	}

	return nil
}

// subjectToken makes an account identifier safe for use as a NATS
// subject token. Anonymous requests share one token.
func subjectToken(account string) string {
	if account == "" {
		return "anonymous"
	}

	var b strings.Builder
	for _, r := range account {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
