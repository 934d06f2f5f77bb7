// Package payment owns everything that touches the external payment
// processor: creating payments, reconciling confirmations and refunds.
package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification event types, normalized across processors.
const (
	NotificationCaptured = "payment.captured"
	NotificationRefunded = "payment.refunded"
)

type CreatePaymentRequest struct {
	OrderID     uuid.UUID
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type PaymentIntent struct {
	// ProcessorOrderID is the processor's identifier for this payment. It is
	// what return redirects and notifications reference.
	ProcessorOrderID string
	ClientSecret     string
}

// Notification is a verified inbound processor event.
type Notification struct {
	Type             string
	ProcessorOrderID string
	CaptureRef       string
}

// PaymentStatus is the processor's own answer about a payment, fetched server
// to server. Redirect query parameters are buyer-controlled and are never
// treated as proof of capture.
type PaymentStatus struct {
	ProcessorOrderID string
	CaptureRef       string
	Succeeded        bool
}

// Processor is the single capability interface for the external payment
// backend. Business logic never branches on processor identity; it swaps
// implementations behind this interface.
type Processor interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error)
	// RetrievePayment asks the processor for the payment's current state.
	// The return-redirect channel finalizes only on a Succeeded answer here.
	RetrievePayment(ctx context.Context, processorOrderID string) (*PaymentStatus, error)
	Refund(ctx context.Context, captureRef string, amount decimal.Decimal, currency string) error
	// VerifyNotification authenticates the raw webhook body against the
	// signature header and returns the decoded event. An unverifiable
	// notification returns domain.ErrSignatureInvalid.
	VerifyNotification(payload []byte, signature string) (*Notification, error)
}
