package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

type TicketStatus string

const (
	TicketUnused TicketStatus = "unused"
	TicketUsed   TicketStatus = "used"
	TicketVoided TicketStatus = "voided"
)

type Event struct {
	ID          uuid.UUID
	Title       string
	Venue       string
	Date        time.Time
	Capacity    int
	Free        bool
	ListingFee  decimal.Decimal
	ListingTier string
}

func (e Event) HasPassed(now time.Time) bool {
	return now.After(e.Date)
}

type TicketType struct {
	ID                uuid.UUID
	EventID           uuid.UUID
	Name              string
	Price             decimal.Decimal
	QuantityAvailable int
	QuantitySold      int
	SaleStarts        time.Time
	SaleEnds          time.Time
	Active            bool
}

// OnSale reports whether the type can be added to an order at the given instant.
func (t TicketType) OnSale(now time.Time) bool {
	return t.Active && !now.Before(t.SaleStarts) && !now.After(t.SaleEnds)
}

func (t TicketType) Remaining() int {
	return t.QuantityAvailable - t.QuantitySold
}

type Buyer struct {
	UserID    *uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

type Order struct {
	ID               uuid.UUID
	OrderNumber      string
	Buyer            Buyer
	TotalAmount      decimal.Decimal
	Currency         string
	Status           OrderStatus
	ProcessorOrderID string
	CaptureRef       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           *time.Time
	Lines            []OrderLine
}

// OrderLine snapshots the unit price at purchase time. Later TicketType price
// changes never touch it.
type OrderLine struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int
	UnitPrice    decimal.Decimal
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Ticket struct {
	ID              uuid.UUID
	OrderLineID     uuid.UUID
	TicketNumber    string
	ValidationToken string
	Status          TicketStatus
	UsedAt          *time.Time
}

// CartLine is a tentative selection. No inventory is held while it sits in a cart.
type CartLine struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// ReservationLine is one ticket type's share of a provisional capacity hold.
type ReservationLine struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// Reservation is the token returned by a successful multi-line reserve. It is
// what release needs to undo the hold.
type Reservation struct {
	ID    uuid.UUID
	Lines []ReservationLine
}
