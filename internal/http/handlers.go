package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mongoadapter "github.com/jerseyevents/ticketing/internal/adapters/mongo"
	"github.com/jerseyevents/ticketing/internal/cart"
	"github.com/jerseyevents/ticketing/internal/config"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/fees"
	"github.com/jerseyevents/ticketing/internal/idempotency"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/orders"
	"github.com/jerseyevents/ticketing/internal/payment"
	"github.com/jerseyevents/ticketing/internal/tickets"
)

// OrderReader resolves orders for the read and lookup endpoints.
type OrderReader interface {
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

type Handlers struct {
	cfg        *config.Config
	cart       *cart.Service
	orders     *orders.Processor
	reader     OrderReader
	reconciler *payment.Reconciler
	refunder   *payment.Refunder
	processor  payment.Processor
	validator  *tickets.Validator
	fees       *fees.Calculator
	idemp      *idempotency.Idempotency
	audit      *mongoadapter.AuditLogger
	ready      func(ctx context.Context) error
	logger     observability.Logger
}

func NewHandlers(
	cfg *config.Config,
	cartSvc *cart.Service,
	orderSvc *orders.Processor,
	reader OrderReader,
	reconciler *payment.Reconciler,
	refunder *payment.Refunder,
	processor payment.Processor,
	validator *tickets.Validator,
	feeCalc *fees.Calculator,
	idemp *idempotency.Idempotency,
	audit *mongoadapter.AuditLogger,
	ready func(ctx context.Context) error,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		cart:       cartSvc,
		orders:     orderSvc,
		reader:     reader,
		reconciler: reconciler,
		refunder:   refunder,
		processor:  processor,
		validator:  validator,
		fees:       feeCalc,
		idemp:      idemp,
		audit:      audit,
		ready:      ready,
		logger:     logger,
	}
}

func session(r *http.Request) string {
	return r.Header.Get("X-Session-ID")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidLine):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInventoryExhausted):
		http.Error(w, "not enough tickets available", http.StatusConflict)
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrNotRefundable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.Is(err, domain.ErrPaymentRejected):
		http.Error(w, "payment was declined", http.StatusPaymentRequired)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if sess == "" {
		http.Error(w, "missing X-Session-ID", http.StatusBadRequest)
		return
	}

	var req struct {
		TicketTypeID uuid.UUID `json:"ticket_type_id"`
		Quantity     int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.cart.Add(r.Context(), sess, req.TicketTypeID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.cart.View(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if sess == "" {
		http.Error(w, "missing X-Session-ID", http.StatusBadRequest)
		return
	}
	view, err := h.cart.View(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if sess == "" {
		http.Error(w, "missing X-Session-ID", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "ticketTypeID"))
	if err != nil {
		http.Error(w, "invalid ticket type id", http.StatusBadRequest)
		return
	}
	if err := h.cart.Remove(r.Context(), sess, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout converts the session cart into a pending order, reserves
// inventory and opens a payment with the processor.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	// Claim the key before any work: two concurrent retries with the same
	// key must not both reserve inventory.
	acquired, err := h.idemp.Acquire(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !acquired {
		// The other request may have finished between our Get and Acquire.
		existing, err := h.idemp.Get(r.Context(), key)
		if err == nil && existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.Status)
			w.Write(existing.Result)
			return
		}
		http.Error(w, "a request with this Idempotency-Key is already in flight", http.StatusConflict)
		return
	}
	cached := false
	defer func() {
		// Let a retry through if this attempt never cached a response.
		if !cached {
			if err := h.idemp.Release(r.Context(), key); err != nil {
				h.logger.WithField("key", key).Warn("failed to release idempotency claim", err)
			}
		}
	}()

	var req struct {
		Email     string     `json:"email"`
		FirstName string     `json:"first_name"`
		LastName  string     `json:"last_name"`
		Phone     string     `json:"phone"`
		UserID    *uuid.UUID `json:"user_id,omitempty"`
		Lines     []struct {
			TicketTypeID uuid.UUID `json:"ticket_type_id"`
			Quantity     int       `json:"quantity"`
		} `json:"lines,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	// Explicit lines in the request bypass the session cart so API clients
	// can order without building one.
	sess := session(r)
	var lines []domain.CartLine
	if len(req.Lines) > 0 {
		for _, l := range req.Lines {
			lines = append(lines, domain.CartLine{TicketTypeID: l.TicketTypeID, Quantity: l.Quantity})
		}
	} else {
		if sess == "" {
			http.Error(w, "missing X-Session-ID", http.StatusBadRequest)
			return
		}
		var err error
		lines, err = h.cart.Lines(r.Context(), sess)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	if len(lines) == 0 {
		http.Error(w, "cart is empty", http.StatusBadRequest)
		return
	}

	buyer := domain.Buyer{
		UserID:    req.UserID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	order, err := h.orders.CreateOrder(r.Context(), buyer, lines)
	if err != nil {
		writeError(w, err)
		return
	}

	intent, err := h.orders.StartPayment(r.Context(), order.ID)
	if err != nil {
		// The order stays pending; the TTL sweep reclaims its inventory if
		// payment is never retried.
		writeError(w, err)
		return
	}

	if len(req.Lines) == 0 {
		if err := h.cart.Clear(r.Context(), sess); err != nil {
			h.logger.WithField("session", sess).Warn("failed to clear cart after checkout", err)
		}
	}

	resp := map[string]interface{}{
		"order_number":  order.OrderNumber,
		"status":        order.Status,
		"total":         order.TotalAmount,
		"currency":      order.Currency,
		"client_secret": intent.ClientSecret,
	}
	data := writeJSON(w, http.StatusCreated, resp)
	if data != nil {
		if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err == nil {
			cached = true
		}
	}
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.reader.GetOrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.reader.GetOrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.orders.Cancel(r.Context(), order.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.reader.GetOrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Amount *decimal.Decimal `json:"amount,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.refunder.Refund(r.Context(), order.ID, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	if h.audit != nil {
		amt := order.TotalAmount
		if req.Amount != nil {
			amt = *req.Amount
		}
		h.audit.Refund(r.Context(), order.ID, amt.StringFixed(2))
	}
	w.WriteHeader(http.StatusNoContent)
}

// PaymentReturn handles the buyer's redirect back from the processor. The
// query string arrives through the buyer's browser, so it is only a hint:
// the processor is asked directly, and only its answer finalizes the order.
// The webhook finalizes the same order independently; whichever channel
// arrives second is a no-op.
func (h *Handlers) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("payment_intent")
	if ref == "" {
		http.Error(w, "missing payment_intent", http.StatusBadRequest)
		return
	}
	if rs := r.URL.Query().Get("redirect_status"); rs != "" && rs != "succeeded" {
		// The browser already says the payment did not go through; no point
		// asking the processor.
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}

	status, err := h.processor.RetrievePayment(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	if !status.Succeeded {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}

	order, transitioned, err := h.reconciler.FinalizeByProcessorRef(r.Context(), status.ProcessorOrderID, status.CaptureRef)
	if h.audit != nil && order != nil {
		h.audit.FinalizeAttempt(r.Context(), order.ID, status.CaptureRef, "return", transitioned)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

// PaymentWebhook receives processor notifications. Replays return 200 so the
// processor stops retrying; an unverifiable signature is 400; a genuine
// processing failure is 5xx so the processor retries later.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	note, err := h.processor.VerifyNotification(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			observability.SignatureRejections.Inc()
			if h.audit != nil {
				h.audit.SignatureRejected(r.Context(), err.Error())
			}
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch note.Type {
	case payment.NotificationCaptured:
		order, transitioned, err := h.reconciler.FinalizeByProcessorRef(r.Context(), note.ProcessorOrderID, note.CaptureRef)
		if h.audit != nil && order != nil {
			h.audit.FinalizeAttempt(r.Context(), order.ID, note.CaptureRef, "webhook", transitioned)
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Not an order we know about. Acknowledge so the processor
				// does not retry forever.
				w.WriteHeader(http.StatusOK)
				return
			}
			if errors.Is(err, domain.ErrIllegalTransition) {
				// The TTL sweep cancelled the order before the capture
				// arrived. Retrying the webhook can never fix that, so
				// acknowledge it and leave a trail for the operator to
				// refund the captured payment.
				h.logger.WithField("ref", note.ProcessorOrderID).
					WithField("capture_ref", note.CaptureRef).
					Error("capture received for an order that is no longer pending", err)
				w.WriteHeader(http.StatusOK)
				return
			}
			writeError(w, err)
			return
		}
	case payment.NotificationRefunded:
		if err := h.refunder.Reconcile(r.Context(), note.ProcessorOrderID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				w.WriteHeader(http.StatusOK)
				return
			}
			writeError(w, err)
			return
		}
	default:
		h.logger.WithField("type", note.Type).Debug("ignoring unhandled notification type")
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketNumber    string `json:"ticket_number"`
		ValidationToken string `json:"validation_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TicketNumber == "" && req.ValidationToken == "" {
		http.Error(w, "ticket_number or validation_token is required", http.StatusBadRequest)
		return
	}

	// Scanners read the validation token off the ticket's code; door staff
	// typing from the printed number use ticket_number.
	var result *tickets.ValidationResult
	var err error
	scanned := req.TicketNumber
	if req.ValidationToken != "" {
		result, err = h.validator.ValidateByToken(r.Context(), req.ValidationToken)
		if result != nil {
			scanned = result.Ticket.TicketNumber
		}
	} else {
		result, err = h.validator.Validate(r.Context(), req.TicketNumber)
	}
	if h.audit != nil {
		h.audit.ValidationScan(r.Context(), scanned, validationOutcome(err))
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTicketAlreadyUsed):
			http.Error(w, "ticket already used", http.StatusConflict)
		case errors.Is(err, domain.ErrTicketVoided):
			http.Error(w, "ticket voided", http.StatusGone)
		case errors.Is(err, domain.ErrEventPassed):
			http.Error(w, "event has passed", http.StatusGone)
		default:
			writeError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket_number": result.Ticket.TicketNumber,
		"status":        result.Ticket.Status,
		"used_at":       result.Ticket.UsedAt,
		"event": map[string]interface{}{
			"title": result.Event.Title,
			"venue": result.Event.Venue,
			"date":  result.Event.Date,
		},
	})
}

func validationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTicketAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrTicketVoided):
		return "voided"
	case errors.Is(err, domain.ErrEventPassed):
		return "event_passed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// FeeQuote prices the platform listing fee for a hypothetical event before
// it is created.
func (h *Handlers) FeeQuote(w http.ResponseWriter, r *http.Request) {
	capacity, err := strconv.Atoi(r.URL.Query().Get("capacity"))
	if err != nil || capacity <= 0 {
		http.Error(w, "invalid capacity", http.StatusBadRequest)
		return
	}
	free := r.URL.Query().Get("free") == "true"
	price := decimal.Zero
	if !free {
		price, err = decimal.NewFromString(r.URL.Query().Get("price"))
		if err != nil || price.IsNegative() {
			http.Error(w, "invalid price", http.StatusBadRequest)
			return
		}
	}

	fee, tier := h.fees.Calculate(capacity, price, free)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listing_fee": fee,
		"tier":        tier,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func orderResponse(order *domain.Order) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, map[string]interface{}{
			"ticket_type_id": line.TicketTypeID,
			"quantity":       line.Quantity,
			"unit_price":     line.UnitPrice,
			"total":          line.Total(),
		})
	}
	resp := map[string]interface{}{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"total":        order.TotalAmount,
		"currency":     order.Currency,
		"created_at":   order.CreatedAt,
		"lines":        lines,
	}
	if order.PaidAt != nil {
		resp["paid_at"] = order.PaidAt
	}
	return resp
}
