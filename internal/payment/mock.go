package payment

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/shopspring/decimal"
)

// MockProcessor stands in for the external processor in tests and local runs.
type MockProcessor struct {
	mu          sync.Mutex
	CreateErr   error
	RetrieveErr error
	RefundErr   error
	SkipVerify  bool
	Created     []CreatePaymentRequest
	Retrieved   []string
	Refunded    []string
	captured    map[string]bool
	nextPayment int
}

// Capture records that the processor has taken the money for a payment.
// RetrievePayment reports Succeeded only for captured refs.
func (m *MockProcessor) Capture(processorOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured == nil {
		m.captured = make(map[string]bool)
	}
	m.captured[processorOrderID] = true
}

func (m *MockProcessor) RetrievePayment(ctx context.Context, processorOrderID string) (*PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}
	m.Retrieved = append(m.Retrieved, processorOrderID)
	return &PaymentStatus{
		ProcessorOrderID: processorOrderID,
		CaptureRef:       processorOrderID,
		Succeeded:        m.captured[processorOrderID],
	}, nil
}

func (m *MockProcessor) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.nextPayment++
	m.Created = append(m.Created, req)
	return &PaymentIntent{ProcessorOrderID: "mock_pi_" + req.OrderNumber, ClientSecret: "mock_secret"}, nil
}

func (m *MockProcessor) Refund(ctx context.Context, captureRef string, amount decimal.Decimal, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefundErr != nil {
		return m.RefundErr
	}
	m.Refunded = append(m.Refunded, captureRef)
	return nil
}

type mockNotification struct {
	Type             string `json:"type"`
	ProcessorOrderID string `json:"processor_order_id"`
	CaptureRef       string `json:"capture_ref"`
}

// VerifyNotification accepts payloads signed with the literal secret "valid",
// mirroring the shape of a real processor's HMAC check.
func (m *MockProcessor) VerifyNotification(payload []byte, signature string) (*Notification, error) {
	if !m.SkipVerify && signature != "valid" {
		return nil, domain.ErrSignatureInvalid
	}
	var n mockNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.ErrInvalidInput
	}
	return &Notification{Type: n.Type, ProcessorOrderID: n.ProcessorOrderID, CaptureRef: n.CaptureRef}, nil
}
