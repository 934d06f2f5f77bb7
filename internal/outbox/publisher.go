package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jerseyevents/ticketing/internal/adapters/crdb"
	"github.com/jerseyevents/ticketing/internal/observability"
)

// Store is the slice of the repository the publisher needs.
type Store interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

// Broker publishes a message under a routing key.
type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher drains NEW outbox records into the broker. Records are published
// at least once: a crash between Publish and MarkPublished replays the record
// on the next poll, and consumers dedupe on the MessageId.
type Publisher struct {
	store     Store
	broker    Broker
	batchSize int
	logger    observability.Logger
}

func NewPublisher(store Store, broker Broker, logger observability.Logger) *Publisher {
	return &Publisher{store: store, broker: broker, batchSize: 100, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("outbox publisher started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

// Drain publishes one batch of pending records.
func (p *Publisher) Drain(ctx context.Context) error {
	records, err := p.store.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())

		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Body:         rec.Payload,
		}
		if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("publish failed", err)
			return err
		}
		if err := p.store.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			return err
		}
		p.logger.WithField("event_type", rec.EventType).Debug("outbox record published")
	}
	return nil
}
