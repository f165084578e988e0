package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/notifier"
)

const (
	subjectNewEvents   = "glyph.events.new"
	subjectSyncStatus  = "glyph.sync.status"
	subjectTokenPrefix = "glyph.events.token."
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

// envelope wraps every broadcast message with a time-sortable unique ID
type envelope struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
	clock      adapter.Clock
}

// NewPublisher creates a new NATS JetStream notifier and ensures the
// underlying stream exists
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON, clock adapter.Clock) (notifier.Notifier, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, natsjs.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{"glyph.>"},
		Retention: natsjs.LimitsPolicy,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
		clock:      clock,
	}, nil
}

// PublishNewEvents broadcasts a batch of freshly ingested events. The batch
// goes out on the shared subject, and each notice is additionally published
// on its per-token subject so clients can follow a single artwork.
func (p *publisher) PublishNewEvents(ctx context.Context, notices []domain.EventNotice) error {
	if len(notices) == 0 {
		return nil
	}

	if err := p.publish(ctx, subjectNewEvents, "newEvents", notices); err != nil {
		return err
	}

	for _, notice := range notices {
		subject := subjectTokenPrefix + notice.TokenID
		if err := p.publish(ctx, subject, "newEvents", notice); err != nil {
			return err
		}
	}

	return nil
}

// PublishSyncStatus broadcasts the current sync progress
func (p *publisher) PublishSyncStatus(ctx context.Context, status domain.SyncStatus) error {
	return p.publish(ctx, subjectSyncStatus, "syncStatus", status)
}

func (p *publisher) publish(ctx context.Context, subject, msgType string, payload interface{}) error {
	msg := envelope{
		ID:        ulid.MustNewDefault(p.clock.Now()).String(),
		Type:      msgType,
		Timestamp: p.clock.Now(),
		Payload:   payload,
	}

	data, err := p.json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data, natsjs.WithMsgID(msg.ID)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
