// Package cart manages the session-scoped selection pending checkout.
// Nothing here holds inventory; quantities become real only when the order
// processor reserves them.
package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	redisadapter "github.com/jerseyevents/ticketing/internal/adapters/redis"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/shopspring/decimal"
)

type TicketTypeGetter interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error)
}

type Service struct {
	store *redisadapter.CartStore
	types TicketTypeGetter
}

func NewService(store *redisadapter.CartStore, types TicketTypeGetter) *Service {
	return &Service{store: store, types: types}
}

type Line struct {
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"price_at_time"`
	Total        decimal.Decimal `json:"total"`
}

type View struct {
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"total_items"`
}

// Add puts (or re-sizes) a line. The remaining-capacity check here is a
// courtesy for the buyer; the authoritative check happens at reservation.
func (s *Service) Add(ctx context.Context, session string, ticketTypeID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidInput
	}
	tt, err := s.types.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return err
	}
	if !tt.OnSale(time.Now()) {
		return domain.ErrInvalidLine
	}
	if quantity > tt.Remaining() {
		return domain.ErrInventoryExhausted
	}
	return s.store.SetLine(ctx, session, ticketTypeID, quantity)
}

func (s *Service) Remove(ctx context.Context, session string, ticketTypeID uuid.UUID) error {
	return s.store.RemoveLine(ctx, session, ticketTypeID)
}

func (s *Service) Clear(ctx context.Context, session string) error {
	return s.store.Clear(ctx, session)
}

func (s *Service) Lines(ctx context.Context, session string) ([]domain.CartLine, error) {
	return s.store.Lines(ctx, session)
}

// View prices the cart at current ticket-type prices. These are display
// prices; the binding snapshot is taken at order creation.
func (s *Service) View(ctx context.Context, session string) (*View, error) {
	lines, err := s.store.Lines(ctx, session)
	if err != nil {
		return nil, err
	}

	view := &View{Lines: []Line{}, Total: decimal.Zero}
	for _, cl := range lines {
		tt, err := s.types.GetTicketType(ctx, cl.TicketTypeID)
		if err != nil {
			// The type was deleted out from under the cart; skip the line.
			continue
		}
		total := tt.Price.Mul(decimal.NewFromInt(int64(cl.Quantity)))
		view.Lines = append(view.Lines, Line{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Quantity:     cl.Quantity,
			UnitPrice:    tt.Price,
			Total:        total,
		})
		view.Total = view.Total.Add(total)
		view.TotalItems += cl.Quantity
	}
	return view, nil
}
