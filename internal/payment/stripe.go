package payment

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeProcessor struct {
	webhookSecret string
	// skipVerify accepts unsigned notifications. Non-production only, off by default.
	skipVerify bool
}

func NewStripeProcessor(secretKey, webhookSecret string, skipVerify bool) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{webhookSecret: webhookSecret, skipVerify: skipVerify}
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func (s *StripeProcessor) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(req.Amount)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"order_id":     req.OrderID.String(),
			"order_number": req.OrderNumber,
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return nil, errors.Wrap(domain.ErrPaymentRejected, stripeErr.Msg)
		}
		return nil, errors.Wrap(err, "create payment intent")
	}
	return &PaymentIntent{ProcessorOrderID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeProcessor) RetrievePayment(ctx context.Context, processorOrderID string) (*PaymentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(processorOrderID, params)
	if err != nil {
		return nil, errors.Wrap(err, "retrieve payment intent")
	}
	return &PaymentStatus{
		ProcessorOrderID: pi.ID,
		CaptureRef:       pi.ID,
		Succeeded:        pi.Status == stripe.PaymentIntentStatusSucceeded,
	}, nil
}

func (s *StripeProcessor) Refund(ctx context.Context, captureRef string, amount decimal.Decimal, currency string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(captureRef),
	}
	if amount.IsPositive() {
		params.Amount = stripe.Int64(minorUnits(amount))
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return errors.Wrap(err, "create refund")
	}
	return nil
}

func (s *StripeProcessor) VerifyNotification(payload []byte, signature string) (*Notification, error) {
	var event stripe.Event
	if s.skipVerify {
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(domain.ErrInvalidInput, err.Error())
		}
	} else {
		var err error
		event, err = webhook.ConstructEvent(payload, signature, s.webhookSecret)
		if err != nil {
			return nil, errors.Wrap(domain.ErrSignatureInvalid, err.Error())
		}
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, errors.Wrap(domain.ErrInvalidInput, err.Error())
		}
		return &Notification{Type: NotificationCaptured, ProcessorOrderID: pi.ID, CaptureRef: pi.ID}, nil
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, errors.Wrap(domain.ErrInvalidInput, err.Error())
		}
		ref := ch.ID
		if ch.PaymentIntent != nil {
			ref = ch.PaymentIntent.ID
		}
		return &Notification{Type: NotificationRefunded, ProcessorOrderID: ref, CaptureRef: ref}, nil
	default:
		return &Notification{Type: string(event.Type)}, nil
	}
}
