// Package events publishes domain events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/clipverse/backend/internal/logging"
)

// Subjects published by the backend.
const (
	SubjectSuspensionExpired = "moderation.suspension.expired"
	SubjectSuspended         = "moderation.suspension.created"
	SubjectAssetReady        = "media.asset.ready"
	SubjectAssetFailed       = "media.asset.failed"
)

var streams = []nats.StreamConfig{
	{Name: "CLIPVERSE_MODERATION", Subjects: []string{"moderation.>"}},
	{Name: "CLIPVERSE_MEDIA", Subjects: []string{"media.>"}},
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close() error
}

// Envelope wraps every published payload.
type Envelope struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
	Payload       any       `json:"payload"`
}

// NewEnvelope wraps payload for subject. The correlation id is the request id
// on ctx when there is one.
func NewEnvelope(ctx context.Context, subject string, payload any) Envelope {
	correlation := logging.RequestIDFromContext(ctx)
	if correlation == "" {
		correlation = uuid.NewString()
	}
	return Envelope{
		Type:          subject,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlation,
		Payload:       payload,
	}
}

// Noop discards events. It is used when NATS is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

type natsPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect returns a JetStream publisher for url. An empty url, or any failure
// to connect or declare the streams, yields Noop and a logged warning.
func Connect(url string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return Noop{}
	}

	nc, err := nats.Connect(url, nats.Name("clipverse-backend"), nats.MaxReconnects(-1))
	if err != nil {
		logger.Warn("nats connect failed, events disabled", "error", err)
		return Noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("jetstream unavailable, events disabled", "error", err)
		nc.Close()
		return Noop{}
	}

	for _, cfg := range streams {
		cfg := cfg
		cfg.Retention = nats.LimitsPolicy
		cfg.MaxAge = 7 * 24 * time.Hour
		cfg.Discard = nats.DiscardOld
		cfg.Storage = nats.FileStorage
		if _, err := js.AddStream(&cfg); err != nil {
			logger.Warn("declare stream failed, events disabled", "stream", cfg.Name, "error", err)
			nc.Close()
			return Noop{}
		}
	}

	return &natsPublisher{nc: nc, js: js}
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	body, err := json.Marshal(NewEnvelope(ctx, subject, payload))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.js.Publish(subject, body, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *natsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
