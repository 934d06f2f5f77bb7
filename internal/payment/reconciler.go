package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/tickets"
)

type Store interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByProcessorRef(ctx context.Context, ref string) (*domain.Order, error)
	// ConfirmOrder sets pending→confirmed with the capture reference as one
	// conditional update and reports whether this call made the transition.
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, captureRef string, paidAt time.Time) (bool, error)
	// RefundOrder sets confirmed→refunded and voids the order's unused
	// tickets in the same transaction.
	RefundOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Reconciler finalizes orders from processor confirmations. The redirect
// return and the asynchronous notification race each other into the same
// Finalize; the conditional update guarantees exactly one confirmed
// transition and exactly one set of tickets no matter how often or from
// which channel it is called.
type Reconciler struct {
	store  Store
	issuer *tickets.Issuer
	logger observability.Logger
}

func NewReconciler(store Store, issuer *tickets.Issuer, logger observability.Logger) *Reconciler {
	return &Reconciler{store: store, issuer: issuer, logger: logger}
}

// Finalize reports whether this call performed the transition. A replay on an
// already-confirmed order is a successful no-op, not an error; it still runs
// issuance, which heals a crash between confirmation and minting without ever
// duplicating tickets.
func (r *Reconciler) Finalize(ctx context.Context, orderID uuid.UUID, captureRef string) (bool, error) {
	transitioned, err := r.store.ConfirmOrder(ctx, orderID, captureRef, time.Now())
	if err != nil {
		observability.FinalizeTotal.WithLabelValues("error").Inc()
		return false, err
	}

	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return transitioned, err
	}

	if !transitioned {
		if order.Status != domain.OrderConfirmed {
			// Cancelled or refunded: confirming now would be a new transition
			// out of a terminal state, which the state machine forbids.
			observability.FinalizeTotal.WithLabelValues("illegal").Inc()
			return false, domain.ErrIllegalTransition
		}
		observability.FinalizeTotal.WithLabelValues("duplicate").Inc()
	} else {
		observability.FinalizeTotal.WithLabelValues("confirmed").Inc()
		r.logger.WithField("order_number", order.OrderNumber).Info("order confirmed")
	}

	if _, err := r.issuer.EnsureIssued(ctx, order); err != nil {
		return transitioned, err
	}
	return transitioned, nil
}

// FinalizeByProcessorRef resolves the order from the processor's reference,
// for channels that do not know internal order ids.
func (r *Reconciler) FinalizeByProcessorRef(ctx context.Context, ref, captureRef string) (*domain.Order, bool, error) {
	order, err := r.store.GetOrderByProcessorRef(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	transitioned, err := r.Finalize(ctx, order.ID, captureRef)
	if err != nil {
		return order, transitioned, err
	}
	order, err = r.store.GetOrder(ctx, order.ID)
	return order, transitioned, err
}
