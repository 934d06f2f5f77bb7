package domain

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const orderNumberCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber builds the buyer-visible order number: a JER prefix, a
// second-resolution timestamp and a random suffix. Collisions are possible and
// handled by the caller retrying on a unique violation.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		panic(err)
	}
	for i := range suffix {
		suffix[i] = orderNumberCharset[int(suffix[i])%len(orderNumberCharset)]
	}
	return "JER" + now.Format("20060102150405") + string(suffix)
}

// NewOrder prices the given lines at this instant and sums the total. The
// total is never recomputed after creation.
func NewOrder(buyer Buyer, lines []OrderLine, currency string, now time.Time) Order {
	id := uuid.New()
	total := decimal.Zero
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].OrderID = id
		total = total.Add(lines[i].Total())
	}
	return Order{
		ID:          id,
		OrderNumber: NewOrderNumber(now),
		Buyer:       buyer,
		TotalAmount: total,
		Currency:    currency,
		Status:      OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}
}

// CanTransitionTo encodes the order state machine. pending may confirm or
// cancel; confirmed may refund; cancelled and refunded are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderConfirmed || next == OrderCancelled
	case OrderConfirmed:
		return next == OrderRefunded
	default:
		return false
	}
}

func (o Order) TotalQuantity() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// ReservationLines maps the order's lines to the hold the ledger took for them.
func (o Order) ReservationLines() []ReservationLine {
	lines := make([]ReservationLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = ReservationLine{TicketTypeID: l.TicketTypeID, Quantity: l.Quantity}
	}
	return lines
}
