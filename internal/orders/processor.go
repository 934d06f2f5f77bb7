// Package orders converts tentative cart selections into priced, numbered,
// inventory-backed orders and drives the order state machine.
package orders

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/payment"
)

// insertRetries bounds order-number regeneration on a unique collision.
// Collisions are astronomically rare but handled, not assumed impossible.
const insertRetries = 5

type Store interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error)
	InsertOrder(ctx context.Context, order domain.Order) error
	CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	SetProcessorOrderID(ctx context.Context, orderID uuid.UUID, ref string) error
	StalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
}

type Processor struct {
	store     Store
	ledger    *inventory.Ledger
	processor payment.Processor
	currency  string
	logger    observability.Logger
}

func NewProcessor(store Store, ledger *inventory.Ledger, proc payment.Processor, currency string, logger observability.Logger) *Processor {
	return &Processor{store: store, ledger: ledger, processor: proc, currency: currency, logger: logger}
}

// CreateOrder validates every requested line against its sale window,
// snapshots unit prices, reserves inventory all-or-nothing and persists the
// order atomically. Capacity is consumed here, not at payment confirmation:
// holding stock briefly for an abandoned cart beats charging a buyer for
// stock that vanished mid-payment.
func (p *Processor) CreateOrder(ctx context.Context, buyer domain.Buyer, cartLines []domain.CartLine) (*domain.Order, error) {
	if len(cartLines) == 0 {
		return nil, domain.ErrInvalidInput
	}

	now := time.Now()
	lines, err := p.priceLines(ctx, mergeLines(cartLines), now)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(buyer, lines, p.currency, now)

	reservation, err := p.ledger.Reserve(ctx, order.ReservationLines())
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		err = p.store.InsertOrder(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrConflict) && attempt < insertRetries {
			order.OrderNumber = domain.NewOrderNumber(now)
			continue
		}
		// No partial-write path: the order didn't persist, so the hold is undone.
		if relErr := p.ledger.Release(ctx, reservation); relErr != nil {
			p.logger.WithField("order_id", order.ID).Error("failed to release reservation after insert failure", relErr)
		}
		return nil, err
	}

	observability.OrdersCreated.Inc()
	return &order, nil
}

func mergeLines(cartLines []domain.CartLine) []domain.CartLine {
	byType := make(map[uuid.UUID]int, len(cartLines))
	order := make([]uuid.UUID, 0, len(cartLines))
	for _, l := range cartLines {
		if _, seen := byType[l.TicketTypeID]; !seen {
			order = append(order, l.TicketTypeID)
		}
		byType[l.TicketTypeID] += l.Quantity
	}
	merged := make([]domain.CartLine, len(order))
	for i, id := range order {
		merged[i] = domain.CartLine{TicketTypeID: id, Quantity: byType[id]}
	}
	return merged
}

func (p *Processor) priceLines(ctx context.Context, cartLines []domain.CartLine, now time.Time) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(cartLines))
	for _, cl := range cartLines {
		if cl.Quantity <= 0 {
			return nil, domain.ErrInvalidInput
		}
		tt, err := p.store.GetTicketType(ctx, cl.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if !tt.OnSale(now) {
			return nil, errors.Wrapf(domain.ErrInvalidLine, "ticket type %s", tt.ID)
		}
		lines = append(lines, domain.OrderLine{
			TicketTypeID: tt.ID,
			Quantity:     cl.Quantity,
			UnitPrice:    tt.Price,
		})
	}
	return lines, nil
}

// StartPayment asks the external processor for a payment and records its
// reference on the order. The processor call blocks with the caller's
// deadline; no row lock is held while waiting.
func (p *Processor) StartPayment(ctx context.Context, orderID uuid.UUID) (*payment.PaymentIntent, error) {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, domain.ErrIllegalTransition
	}

	intent, err := p.processor.CreatePayment(ctx, payment.CreatePaymentRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: "Order " + order.OrderNumber,
	})
	if err != nil {
		// A terminal rejection will never confirm, so the hold is returned to
		// the pool now instead of waiting for the TTL sweep. Retryable
		// failures leave the order pending for another attempt.
		if errors.Is(err, domain.ErrPaymentRejected) {
			if cancelErr := p.Cancel(ctx, order.ID); cancelErr != nil {
				p.logger.WithField("order_id", order.ID).Error("failed to cancel rejected order", cancelErr)
			}
		}
		return nil, err
	}
	if err := p.store.SetProcessorOrderID(ctx, order.ID, intent.ProcessorOrderID); err != nil {
		return nil, err
	}
	return intent, nil
}

// Cancel transitions pending→cancelled and releases the inventory hold.
// Cancelling a non-pending order is a caller error.
func (p *Processor) Cancel(ctx context.Context, orderID uuid.UUID) error {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	transitioned, err := p.store.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitioned {
		return domain.ErrIllegalTransition
	}

	res := &domain.Reservation{ID: order.ID, Lines: order.ReservationLines()}
	return p.ledger.Release(ctx, res)
}

// SweepStale cancels pending orders older than the cutoff and releases their
// holds. The conditional cancel keeps the sweep from racing a finalize: only
// one of them wins the pending row.
func (p *Processor) SweepStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := p.store.StalePendingOrders(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, order := range stale {
		transitioned, err := p.store.CancelOrder(ctx, order.ID)
		if err != nil {
			p.logger.WithField("order_id", order.ID).Error("failed to cancel stale order", err)
			continue
		}
		if !transitioned {
			continue
		}
		res := &domain.Reservation{ID: order.ID, Lines: order.ReservationLines()}
		if err := p.ledger.Release(ctx, res); err != nil {
			p.logger.WithField("order_id", order.ID).Error("failed to release stale hold", err)
			continue
		}
		swept++
	}
	return swept, nil
}
