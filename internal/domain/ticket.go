package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewTicketNumber is globally unique: the order number scopes it, the random
// suffix separates tickets within one order. Uniqueness is still enforced by
// the store.
func NewTicketNumber(orderNumber string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "TKT" + orderNumber + "-" + strings.ToUpper(hex.EncodeToString(b))
}

// NewValidationToken is an opaque lookup key. It carries no business data, so
// a photographed code cannot be reworked into a token for a different ticket.
func NewValidationToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func NewTicket(line OrderLine, orderNumber string) Ticket {
	return Ticket{
		ID:              uuid.New(),
		OrderLineID:     line.ID,
		TicketNumber:    NewTicketNumber(orderNumber),
		ValidationToken: NewValidationToken(),
		Status:          TicketUnused,
	}
}
