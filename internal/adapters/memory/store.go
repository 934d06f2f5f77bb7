// Package memory holds an in-process store with the same conditional-update
// contracts as the crdb adapter. It backs unit and concurrency tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/domain"
)

type Store struct {
	mu            sync.Mutex
	events        map[uuid.UUID]domain.Event
	ticketTypes   map[uuid.UUID]*domain.TicketType
	orders        map[uuid.UUID]*domain.Order
	tickets       map[string]*domain.Ticket
	ticketsByLine map[uuid.UUID][]string
}

func NewStore() *Store {
	return &Store{
		events:        make(map[uuid.UUID]domain.Event),
		ticketTypes:   make(map[uuid.UUID]*domain.TicketType),
		orders:        make(map[uuid.UUID]*domain.Order),
		tickets:       make(map[string]*domain.Ticket),
		ticketsByLine: make(map[uuid.UUID][]string),
	}
}

func (s *Store) AddEvent(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

func (s *Store) AddTicketType(tt domain.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := tt
	s.ticketTypes[tt.ID] = &cp
}

func (s *Store) ReserveCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return domain.ErrNotFound
	}
	if tt.QuantitySold+quantity > tt.QuantityAvailable {
		return domain.ErrInventoryExhausted
	}
	tt.QuantitySold += quantity
	return nil
}

func (s *Store) ReleaseCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return domain.ErrNotFound
	}
	if tt.QuantitySold-quantity < 0 {
		return domain.ErrNotFound
	}
	tt.QuantitySold -= quantity
	return nil
}

func (s *Store) GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tt
	return &cp, nil
}

func (s *Store) InsertOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return domain.ErrConflict
		}
	}
	cp := order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	s.orders[order.ID] = &cp
	return nil
}

func (s *Store) ConfirmOrder(ctx context.Context, orderID uuid.UUID, captureRef string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != domain.OrderPending {
		return false, nil
	}
	order.Status = domain.OrderConfirmed
	order.CaptureRef = captureRef
	t := paidAt
	order.PaidAt = &t
	order.UpdatedAt = paidAt
	return true, nil
}

func (s *Store) CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != domain.OrderPending {
		return false, nil
	}
	order.Status = domain.OrderCancelled
	order.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) RefundOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != domain.OrderConfirmed {
		return false, nil
	}
	order.Status = domain.OrderRefunded
	order.UpdatedAt = time.Now()
	for _, line := range order.Lines {
		for _, num := range s.ticketsByLine[line.ID] {
			if t := s.tickets[num]; t.Status == domain.TicketUnused {
				t.Status = domain.TicketVoided
			}
		}
	}
	return true, nil
}

func (s *Store) SetProcessorOrderID(ctx context.Context, orderID uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	order.ProcessorOrderID = ref
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyOrder(order), nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.OrderNumber == orderNumber {
			return copyOrder(order), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetOrderByProcessorRef(ctx context.Context, ref string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ProcessorOrderID == ref && ref != "" {
			return copyOrder(order), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) StalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []domain.Order
	for _, order := range s.orders {
		if order.Status == domain.OrderPending && order.CreatedAt.Before(olderThan) {
			stale = append(stale, *copyOrder(order))
			if len(stale) == limit {
				break
			}
		}
	}
	return stale, nil
}

func (s *Store) IssueTicketsForLine(ctx context.Context, line domain.OrderLine, orderNumber string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := len(s.ticketsByLine[line.ID])
	var issued []domain.Ticket
	for i := existing; i < line.Quantity; i++ {
		ticket := domain.NewTicket(line, orderNumber)
		cp := ticket
		s.tickets[ticket.TicketNumber] = &cp
		s.ticketsByLine[line.ID] = append(s.ticketsByLine[line.ID], ticket.TicketNumber)
		issued = append(issued, ticket)
	}
	return issued, nil
}

func (s *Store) TicketsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var tickets []domain.Ticket
	for _, line := range order.Lines {
		for _, num := range s.ticketsByLine[line.ID] {
			tickets = append(tickets, *s.tickets[num])
		}
	}
	return tickets, nil
}

func (s *Store) FindTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (s *Store) FindTicketByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.ValidationToken == token {
			cp := *ticket
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) EventForTicket(ctx context.Context, ticketNumber string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, order := range s.orders {
		for _, line := range order.Lines {
			if line.ID != ticket.OrderLineID {
				continue
			}
			tt, ok := s.ticketTypes[line.TicketTypeID]
			if !ok {
				return nil, domain.ErrNotFound
			}
			event, ok := s.events[tt.EventID]
			if !ok {
				return nil, domain.ErrNotFound
			}
			cp := event
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) MarkTicketUsed(ctx context.Context, ticketNumber string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketNumber]
	if !ok {
		return false, nil
	}
	if ticket.Status != domain.TicketUnused {
		return false, nil
	}
	ticket.Status = domain.TicketUsed
	t := usedAt
	ticket.UsedAt = &t
	return true, nil
}

func copyOrder(order *domain.Order) *domain.Order {
	cp := *order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	if order.PaidAt != nil {
		t := *order.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}
