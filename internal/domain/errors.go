package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInventoryExhausted = errors.New("inventory exhausted")
	ErrInvalidLine        = errors.New("ticket type not on sale")
	ErrIllegalTransition  = errors.New("illegal order state transition")
	ErrNotRefundable      = errors.New("order is not refundable")
	ErrPaymentRejected    = errors.New("payment rejected by processor")
	ErrSignatureInvalid   = errors.New("notification signature invalid")

	ErrTicketAlreadyUsed = errors.New("ticket already used")
	ErrTicketVoided      = errors.New("ticket voided")
	ErrEventPassed       = errors.New("event has passed")
)
