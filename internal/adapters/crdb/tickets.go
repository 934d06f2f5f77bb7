package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jerseyevents/ticketing/internal/domain"
)

// IssueTicketsForLine mints tickets for one order line up to its quantity.
// Count-then-insert runs inside one SERIALIZABLE transaction, so two racing
// issuance attempts cannot both top the line up. Replays see a full line and
// insert nothing.
func (r *Repository) IssueTicketsForLine(ctx context.Context, line domain.OrderLine, orderNumber string) ([]domain.Ticket, error) {
	var issued []domain.Ticket
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		issued = issued[:0]

		var existing int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM tickets WHERE order_line_id = $1
		`, line.ID).Scan(&existing); err != nil {
			return err
		}

		for i := existing; i < line.Quantity; i++ {
			ticket := domain.NewTicket(line, orderNumber)
			_, err := tx.Exec(ctx, `
				INSERT INTO tickets (id, order_line_id, ticket_number, validation_token, status)
				VALUES ($1, $2, $3, $4, $5)
			`, ticket.ID, ticket.OrderLineID, ticket.TicketNumber, ticket.ValidationToken, ticket.Status)
			if err != nil {
				return err
			}
			issued = append(issued, ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (r *Repository) FindTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_line_id, ticket_number, validation_token, status, used_at
		FROM tickets WHERE ticket_number = $1
	`, ticketNumber).Scan(&ticket.ID, &ticket.OrderLineID, &ticket.TicketNumber, &ticket.ValidationToken, &ticket.Status, &ticket.UsedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *Repository) FindTicketByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_line_id, ticket_number, validation_token, status, used_at
		FROM tickets WHERE validation_token = $1
	`, token).Scan(&ticket.ID, &ticket.OrderLineID, &ticket.TicketNumber, &ticket.ValidationToken, &ticket.Status, &ticket.UsedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// EventForTicket resolves the read-only back-reference
// ticket → line → ticket type → event by lookup.
func (r *Repository) EventForTicket(ctx context.Context, ticketNumber string) (*domain.Event, error) {
	var event domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT e.id, e.title, e.venue, e.date, e.capacity, e.free, e.listing_fee, e.listing_tier
		FROM tickets t
		JOIN order_lines ol ON ol.id = t.order_line_id
		JOIN ticket_types tt ON tt.id = ol.ticket_type_id
		JOIN events e ON e.id = tt.event_id
		WHERE t.ticket_number = $1
	`, ticketNumber).Scan(&event.ID, &event.Title, &event.Venue, &event.Date, &event.Capacity, &event.Free, &event.ListingFee, &event.ListingTier)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) TicketsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.order_line_id, t.ticket_number, t.validation_token, t.status, t.used_at
		FROM tickets t
		JOIN order_lines ol ON ol.id = t.order_line_id
		WHERE ol.order_id = $1
		ORDER BY t.ticket_number
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.OrderLineID, &t.TicketNumber, &t.ValidationToken, &t.Status, &t.UsedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// MarkTicketUsed is the check-in conditional update: unused→used with used_at
// set exactly once. Concurrent scans of the same ticket see exactly one true.
func (r *Repository) MarkTicketUsed(ctx context.Context, ticketNumber string, usedAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE tickets SET status = $2, used_at = $3
		WHERE ticket_number = $1 AND status = $4
	`, ticketNumber, domain.TicketUsed, usedAt, domain.TicketUnused)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
