package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jerseyevents/ticketing/internal/domain"
)

// InsertOrder persists the order, its lines and the order.created outbox
// record as one atomic unit. There is no partial-write path: any failure rolls
// the whole order back. A duplicate order_number surfaces as
// domain.ErrConflict so the caller can regenerate and retry.
func (r *Repository) InsertOrder(ctx context.Context, order domain.Order) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, order_number, user_id, email, first_name, last_name, phone,
				total_amount, currency, status, processor_order_id, capture_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, order.ID, order.OrderNumber, order.Buyer.UserID, order.Buyer.Email, order.Buyer.FirstName,
			order.Buyer.LastName, order.Buyer.Phone, order.TotalAmount, order.Currency, order.Status,
			order.ProcessorOrderID, order.CaptureRef, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return err
		}

		// Lines go through one batch on the tx connection. A pgx connection
		// handles one query at a time, so the inserts must not fan out into
		// goroutines here.
		batch := &pgx.Batch{}
		for _, line := range order.Lines {
			batch.Queue(`
				INSERT INTO order_lines (id, order_id, ticket_type_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)
			`, line.ID, line.OrderID, line.TicketTypeID, line.Quantity, line.UnitPrice)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
			Payload:       payload,
			DedupeKey:     uuid.New().String(),
		})
	})
}

// ConfirmOrder performs the idempotent finalize transition: pending→confirmed
// with the capture reference, as a single conditional update. It reports
// whether this call made the transition; callers treat false plus an already
// confirmed order as a successful no-op. The order.confirmed outbox record is
// written in the same transaction, so it is emitted exactly once.
func (r *Repository) ConfirmOrder(ctx context.Context, orderID uuid.UUID, captureRef string, paidAt time.Time) (bool, error) {
	transitioned := false
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, capture_ref = $3, paid_at = $4, updated_at = $4
			WHERE id = $1 AND status = $5
		`, orderID, domain.OrderConfirmed, captureRef, paidAt, domain.OrderPending)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		transitioned = true

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id":    orderID,
			"capture_ref": captureRef,
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     "order.confirmed",
			Payload:       payload,
			DedupeKey:     "confirm:" + orderID.String(),
		})
	})
	return transitioned, err
}

// CancelOrder transitions pending→cancelled. The conditional update keeps the
// TTL sweep and a racing finalize from both winning.
func (r *Repository) CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, orderID, domain.OrderCancelled, time.Now(), domain.OrderPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RefundOrder transitions confirmed→refunded and voids the order's unused
// tickets in the same transaction. Used tickets stay used.
func (r *Repository) RefundOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	transitioned := false
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4
		`, orderID, domain.OrderRefunded, time.Now(), domain.OrderConfirmed)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		transitioned = true

		_, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $2
			WHERE status = $3 AND order_line_id IN (SELECT id FROM order_lines WHERE order_id = $1)
		`, orderID, domain.TicketVoided, domain.TicketUnused)
		if err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{"order_id": orderID})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     "order.refunded",
			Payload:       payload,
			DedupeKey:     "refund:" + orderID.String(),
		})
	})
	return transitioned, err
}

func (r *Repository) SetProcessorOrderID(ctx context.Context, orderID uuid.UUID, ref string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET processor_order_id = $2, updated_at = $3 WHERE id = $1
	`, orderID, ref, time.Now())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE id = $1`, orderID)
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE order_number = $1`, orderNumber)
}

func (r *Repository) GetOrderByProcessorRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE processor_order_id = $1`, ref)
}

func (r *Repository) getOrder(ctx context.Context, where string, arg interface{}) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, user_id, email, first_name, last_name, phone,
			total_amount, currency, status, processor_order_id, capture_ref, created_at, updated_at, paid_at
		FROM orders `+where, arg).Scan(
		&order.ID, &order.OrderNumber, &order.Buyer.UserID, &order.Buyer.Email, &order.Buyer.FirstName,
		&order.Buyer.LastName, &order.Buyer.Phone, &order.TotalAmount, &order.Currency, &order.Status,
		&order.ProcessorOrderID, &order.CaptureRef, &order.CreatedAt, &order.UpdatedAt, &order.PaidAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, ticket_type_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.TicketTypeID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return &order, rows.Err()
}

// StalePendingOrders lists pending orders created before the cutoff, for the
// TTL sweep. Lines are included so the sweep can release the inventory hold.
func (r *Repository) StalePendingOrders(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3
	`, domain.OrderPending, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var orders []domain.Order
	for _, id := range ids {
		order, err := r.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}
