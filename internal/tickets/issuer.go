// Package tickets mints tickets for paid orders and consumes them at the door.
package tickets

import (
	"context"

	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
	"golang.org/x/sync/errgroup"
)

type IssueStore interface {
	// IssueTicketsForLine atomically tops the line up to its quantity and
	// returns only the tickets created by this call.
	IssueTicketsForLine(ctx context.Context, line domain.OrderLine, orderNumber string) ([]domain.Ticket, error)
}

type Issuer struct {
	store  IssueStore
	logger observability.Logger
}

func NewIssuer(store IssueStore, logger observability.Logger) *Issuer {
	return &Issuer{store: store, logger: logger}
}

// EnsureIssued creates one ticket per unit of quantity in each order line.
// Idempotent with respect to the order: lines that already carry their full
// ticket count are left alone, so finalize replays and retries after a
// partial failure never duplicate tickets.
func (i *Issuer) EnsureIssued(ctx context.Context, order *domain.Order) ([]domain.Ticket, error) {
	perLine := make([][]domain.Ticket, len(order.Lines))

	g, gctx := errgroup.WithContext(ctx)
	for idx, line := range order.Lines {
		idx, line := idx, line
		g.Go(func() error {
			issued, err := i.store.IssueTicketsForLine(gctx, line, order.OrderNumber)
			if err != nil {
				return err
			}
			perLine[idx] = issued
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var issued []domain.Ticket
	for _, batch := range perLine {
		issued = append(issued, batch...)
	}
	if len(issued) > 0 {
		observability.TicketsIssued.Add(float64(len(issued)))
		i.logger.WithField("order_number", order.OrderNumber).Info("issued tickets: ", len(issued))
	}
	return issued, nil
}
