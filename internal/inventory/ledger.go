// Package inventory is the only code permitted to mutate quantity_sold.
package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
)

// Store performs the per-row conditional updates. ReserveCapacity must
// increment quantity_sold by quantity only if the result stays within
// quantity_available, as one atomic operation; it returns
// domain.ErrInventoryExhausted otherwise.
type Store interface {
	ReserveCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error
	ReleaseCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error
}

type Ledger struct {
	store  Store
	logger observability.Logger
}

func NewLedger(store Store, logger observability.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Reserve takes a provisional hold over every line or none of them. When a
// line fails, holds already taken for earlier lines are released before the
// error is returned.
func (l *Ledger) Reserve(ctx context.Context, lines []domain.ReservationLine) (*domain.Reservation, error) {
	if len(lines) == 0 {
		return nil, domain.ErrInvalidInput
	}

	res := &domain.Reservation{ID: uuid.New()}
	for _, line := range lines {
		if line.Quantity <= 0 {
			l.rollback(ctx, res)
			return nil, domain.ErrInvalidInput
		}
		if err := l.store.ReserveCapacity(ctx, line.TicketTypeID, line.Quantity); err != nil {
			l.rollback(ctx, res)
			if errors.Is(err, domain.ErrInventoryExhausted) {
				observability.OversellRejections.Inc()
			}
			return nil, err
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

// Release returns the reservation's quantities to the sellable pool. Invoked
// on cancellation before confirmation and by the TTL sweep.
func (l *Ledger) Release(ctx context.Context, res *domain.Reservation) error {
	var firstErr error
	for _, line := range res.Lines {
		if err := l.store.ReleaseCapacity(ctx, line.TicketTypeID, line.Quantity); err != nil {
			l.logger.WithField("ticket_type_id", line.TicketTypeID).Error("failed to release capacity", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (l *Ledger) rollback(ctx context.Context, res *domain.Reservation) {
	if len(res.Lines) == 0 {
		return
	}
	if err := l.Release(ctx, res); err != nil {
		l.logger.WithField("reservation_id", res.ID).Error("rollback of partial reservation failed", err)
	}
}
