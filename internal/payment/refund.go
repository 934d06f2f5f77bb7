package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/shopspring/decimal"
)

type Refunder struct {
	store     Store
	processor Processor
	ledger    *inventory.Ledger
	// releaseInventory returns refunded quantities to the sellable pool.
	// Off by default: a refunded seat still occupied the sales period.
	releaseInventory bool
	logger           observability.Logger
}

func NewRefunder(store Store, processor Processor, ledger *inventory.Ledger, releaseInventory bool, logger observability.Logger) *Refunder {
	return &Refunder{store: store, processor: processor, ledger: ledger, releaseInventory: releaseInventory, logger: logger}
}

// Refund reverses a confirmed order. A nil amount refunds the full total.
// Unused tickets are voided; tickets already used at the door stay used;
// partial physical consumption does not block the monetary refund. Refunding
// an already-refunded order is a successful no-op.
func (r *Refunder) Refund(ctx context.Context, orderID uuid.UUID, amount *decimal.Decimal) error {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case domain.OrderRefunded:
		return nil
	case domain.OrderConfirmed:
	default:
		return domain.ErrNotRefundable
	}

	amt := order.TotalAmount
	if amount != nil {
		amt = *amount
	}

	// External call first, with the caller's deadline and no row locks held.
	if err := r.processor.Refund(ctx, order.CaptureRef, amt, order.Currency); err != nil {
		return err
	}

	transitioned, err := r.store.RefundOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitioned {
		current, err := r.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderRefunded {
			return nil
		}
		return domain.ErrNotRefundable
	}

	if r.releaseInventory {
		res := &domain.Reservation{ID: order.ID, Lines: order.ReservationLines()}
		if err := r.ledger.Release(ctx, res); err != nil {
			r.logger.WithField("order_id", orderID).Error("failed to release refunded inventory", err)
		}
	}

	observability.FinalizeTotal.WithLabelValues("refunded").Inc()
	r.logger.WithField("order_number", order.OrderNumber).Info("order refunded")
	return nil
}

// Reconcile records a refund the processor performed on its side, from a
// refund notification. The money has already moved, so there is no external
// call here; the state transition and ticket voiding still apply, and a
// replayed notification is a no-op.
func (r *Refunder) Reconcile(ctx context.Context, processorRef string) error {
	order, err := r.store.GetOrderByProcessorRef(ctx, processorRef)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderRefunded {
		return nil
	}

	transitioned, err := r.store.RefundOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if !transitioned {
		current, err := r.store.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderRefunded {
			return nil
		}
		return domain.ErrNotRefundable
	}

	if r.releaseInventory {
		res := &domain.Reservation{ID: order.ID, Lines: order.ReservationLines()}
		if err := r.ledger.Release(ctx, res); err != nil {
			r.logger.WithField("order_id", order.ID).Error("failed to release refunded inventory", err)
		}
	}

	observability.FinalizeTotal.WithLabelValues("refunded").Inc()
	r.logger.WithField("order_number", order.OrderNumber).Info("refund reconciled from processor notification")
	return nil
}
