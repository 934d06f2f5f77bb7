package delivery

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
)

// Sender hands issued tickets to the buyer through some channel, typically
// email. Delivery is decoupled from payment finalize so a send failure never
// blocks order confirmation.
type Sender interface {
	Deliver(ctx context.Context, order *domain.Order, tickets []domain.Ticket) error
}

// LogSender writes deliveries to the log. Used in development and as a
// fallback when no mail transport is configured.
type LogSender struct {
	Logger observability.Logger
}

func (s *LogSender) Deliver(ctx context.Context, order *domain.Order, tickets []domain.Ticket) error {
	s.Logger.WithField("order_number", order.OrderNumber).
		WithField("email", order.Buyer.Email).
		WithField("ticket_count", len(tickets)).
		Info("tickets delivered")
	return nil
}

// Store loads the order and tickets referenced by a confirmation event.
type Store interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	TicketsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error)
}

// MessageSource yields broker deliveries. Satisfied by rabbit.Consumer.
type MessageSource interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Worker consumes order.confirmed events and sends the order's tickets.
// Messages are acked only after a successful send; failures are requeued so
// delivery retries independently of the payment path.
type Worker struct {
	source MessageSource
	store  Store
	sender Sender
	logger observability.Logger
}

func NewWorker(source MessageSource, store Store, sender Sender, logger observability.Logger) *Worker {
	return &Worker{source: source, store: store, sender: sender, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.source.Consume(ctx)
	if err != nil {
		return errors.Wrap(err, "consume order.confirmed")
	}
	w.logger.Info("delivery worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			var event confirmedEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				// Malformed payloads never become deliverable. Drop them.
				w.logger.Error("dropping malformed order.confirmed payload", err)
				_ = msg.Ack(false)
				continue
			}
			if err := w.handle(ctx, event.OrderID); err != nil {
				w.logger.Error("delivery failed, requeueing", err)
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

type confirmedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (w *Worker) handle(ctx context.Context, orderID uuid.UUID) error {
	order, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return errors.Wrapf(err, "load order %s", orderID)
	}
	tickets, err := w.store.TicketsForOrder(ctx, orderID)
	if err != nil {
		return errors.Wrapf(err, "load tickets for order %s", orderID)
	}
	if len(tickets) == 0 {
		// Issuance runs in the finalize path and can lag the event by a
		// moment. Requeue and try again.
		return errors.Newf("no tickets issued yet for order %s", order.OrderNumber)
	}
	return w.sender.Deliver(ctx, order, tickets)
}
