package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return domain.ErrSerializationFailure
		case UniqueViolationCode:
			return domain.ErrConflict
		}
	}
	return err
}

// ReserveCapacity is the system's core oversell guard: one conditional update
// with no read-then-write gap. Zero rows affected means the remaining capacity
// could not cover the quantity (or the row does not exist).
func (r *Repository) ReserveCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE ticket_types
		SET quantity_sold = quantity_sold + $2
		WHERE id = $1 AND quantity_sold + $2 <= quantity_available
	`, ticketTypeID, quantity)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, ticketTypeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInventoryExhausted
	}
	return nil
}

func (r *Repository) ReleaseCapacity(ctx context.Context, ticketTypeID uuid.UUID, quantity int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE ticket_types
		SET quantity_sold = quantity_sold - $2
		WHERE id = $1 AND quantity_sold - $2 >= 0
	`, ticketTypeID, quantity)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	var tt domain.TicketType
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, price, quantity_available, quantity_sold, sale_starts, sale_ends, active
		FROM ticket_types WHERE id = $1
	`, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.QuantityAvailable, &tt.QuantitySold, &tt.SaleStarts, &tt.SaleEnds, &tt.Active)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

func (r *Repository) CreateEvent(ctx context.Context, event domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, title, venue, date, capacity, free, listing_fee, listing_tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.Title, event.Venue, event.Date, event.Capacity, event.Free, event.ListingFee, event.ListingTier)
	return mapPgError(err)
}

func (r *Repository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ticket_types (id, event_id, name, price, quantity_available, quantity_sold, sale_starts, sale_ends, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tt.ID, tt.EventID, tt.Name, tt.Price, tt.QuantityAvailable, tt.QuantitySold, tt.SaleStarts, tt.SaleEnds, tt.Active)
	return mapPgError(err)
}
