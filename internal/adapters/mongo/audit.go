// Package mongo keeps the audit trail: who finalized what, which
// notifications were rejected, which tickets were scanned.
package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jerseyevents/ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) log(ctx context.Context, action string, data map[string]interface{}) {
	entry := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		// An audit miss must never fail the business operation.
		a.logger.WithField("action", action).Error("failed to insert audit log", err)
	}
}

func (a *AuditLogger) FinalizeAttempt(ctx context.Context, orderID uuid.UUID, captureRef, channel string, transitioned bool) {
	a.log(ctx, "order.finalize", map[string]interface{}{
		"order_id":     orderID,
		"capture_ref":  captureRef,
		"channel":      channel,
		"transitioned": transitioned,
	})
}

func (a *AuditLogger) SignatureRejected(ctx context.Context, reason string) {
	a.log(ctx, "webhook.signature_rejected", map[string]interface{}{
		"reason": reason,
	})
}

func (a *AuditLogger) Refund(ctx context.Context, orderID uuid.UUID, amount string) {
	a.log(ctx, "order.refunded", map[string]interface{}{
		"order_id": orderID,
		"amount":   amount,
	})
}

func (a *AuditLogger) ValidationScan(ctx context.Context, ticketNumber, result string) {
	a.log(ctx, "ticket.validated", map[string]interface{}{
		"ticket_number": ticketNumber,
		"result":        result,
	})
}
