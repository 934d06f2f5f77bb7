package tickets

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
)

type ValidateStore interface {
	FindTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	// FindTicketByToken resolves a scanned validation token. The token is an
	// opaque lookup key carrying no business data.
	FindTicketByToken(ctx context.Context, token string) (*domain.Ticket, error)
	EventForTicket(ctx context.Context, ticketNumber string) (*domain.Event, error)
	// MarkTicketUsed sets unused→used with used_at as one conditional update
	// and reports whether this call won the transition.
	MarkTicketUsed(ctx context.Context, ticketNumber string, usedAt time.Time) (bool, error)
}

// ValidationResult is returned to the scanning operator on success.
type ValidationResult struct {
	Ticket domain.Ticket
	Event  domain.Event
}

type Validator struct {
	store ValidateStore
}

func NewValidator(store ValidateStore) *Validator {
	return &Validator{store: store}
}

// Validate consumes the ticket: exactly one of any number of concurrent calls
// for the same ticket_number succeeds; the rest see ErrTicketAlreadyUsed.
// One ticket per call; there is no bulk path.
func (v *Validator) Validate(ctx context.Context, ticketNumber string) (*ValidationResult, error) {
	ticket, err := v.store.FindTicket(ctx, ticketNumber)
	if err != nil {
		return nil, v.record(ticketNumber, err)
	}

	event, err := v.store.EventForTicket(ctx, ticketNumber)
	if err != nil {
		return nil, v.record(ticketNumber, err)
	}
	if event.HasPassed(time.Now()) {
		return nil, v.record(ticketNumber, domain.ErrEventPassed)
	}

	now := time.Now()
	won, err := v.store.MarkTicketUsed(ctx, ticketNumber, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// The conditional update lost: report why from the post-image.
		current, err := v.store.FindTicket(ctx, ticketNumber)
		if err != nil {
			return nil, v.record(ticketNumber, err)
		}
		switch current.Status {
		case domain.TicketVoided:
			return nil, v.record(ticketNumber, domain.ErrTicketVoided)
		default:
			return nil, v.record(ticketNumber, domain.ErrTicketAlreadyUsed)
		}
	}

	ticket.Status = domain.TicketUsed
	ticket.UsedAt = &now
	observability.TicketsValidated.WithLabelValues("ok").Inc()
	return &ValidationResult{Ticket: *ticket, Event: *event}, nil
}

// ValidateByToken consumes the ticket identified by its scanned validation
// token. The token only resolves the ticket; the same conditional update as
// Validate guards the transition.
func (v *Validator) ValidateByToken(ctx context.Context, token string) (*ValidationResult, error) {
	ticket, err := v.store.FindTicketByToken(ctx, token)
	if err != nil {
		return nil, v.record("", err)
	}
	return v.Validate(ctx, ticket.TicketNumber)
}

func (v *Validator) record(ticketNumber string, err error) error {
	label := "error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		label = "not_found"
	case errors.Is(err, domain.ErrTicketAlreadyUsed):
		label = "already_used"
	case errors.Is(err, domain.ErrTicketVoided):
		label = "voided"
	case errors.Is(err, domain.ErrEventPassed):
		label = "event_passed"
	}
	observability.TicketsValidated.WithLabelValues(label).Inc()
	return err
}
