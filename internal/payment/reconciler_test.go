package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerseyevents/ticketing/internal/adapters/memory"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/payment"
	"github.com/jerseyevents/ticketing/internal/tickets"
)

func seedPendingOrder(t *testing.T, store *memory.Store, quantities ...int) *domain.Order {
	t.Helper()
	now := time.Now()
	var lines []domain.OrderLine
	for _, q := range quantities {
		tt := domain.TicketType{
			ID:                uuid.New(),
			EventID:           uuid.New(),
			Price:             decimal.NewFromInt(25),
			QuantityAvailable: 100,
			QuantitySold:      q,
			SaleStarts:        now.Add(-time.Hour),
			SaleEnds:          now.Add(time.Hour),
			Active:            true,
		}
		store.AddTicketType(tt)
		lines = append(lines, domain.OrderLine{
			TicketTypeID: tt.ID,
			Quantity:     q,
			UnitPrice:    tt.Price,
		})
	}
	order := domain.NewOrder(domain.Buyer{Email: "buyer@example.com"}, lines, "GBP", now)
	require.NoError(t, store.InsertOrder(context.Background(), order))
	require.NoError(t, store.SetProcessorOrderID(context.Background(), order.ID, "pi_"+order.OrderNumber))
	return &order
}

func newReconciler(store *memory.Store) *payment.Reconciler {
	logger := observability.NewLogger()
	return payment.NewReconciler(store, tickets.NewIssuer(store, logger), logger)
}

func TestFinalize_ConfirmsOnceAndIssuesTickets(t *testing.T) {
	store := memory.NewStore()
	rec := newReconciler(store)
	order := seedPendingOrder(t, store, 2, 3)

	transitioned, err := rec.Finalize(context.Background(), order.ID, "ch_1")
	require.NoError(t, err)
	assert.True(t, transitioned)

	fetched, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, fetched.Status)
	assert.Equal(t, "ch_1", fetched.CaptureRef)
	require.NotNil(t, fetched.PaidAt)

	issued, err := store.TicketsForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, issued, 5)
	for _, ticket := range issued {
		assert.Equal(t, domain.TicketUnused, ticket.Status)
		assert.Contains(t, ticket.TicketNumber, "TKT"+order.OrderNumber)
		assert.Len(t, ticket.ValidationToken, 32)
	}
}

func TestFinalize_ReplayIsNoOp(t *testing.T) {
	store := memory.NewStore()
	rec := newReconciler(store)
	order := seedPendingOrder(t, store, 2)

	transitioned, err := rec.Finalize(context.Background(), order.ID, "ch_1")
	require.NoError(t, err)
	assert.True(t, transitioned)

	// Webhook and redirect both land; the second is a harmless replay that
	// must not mint more tickets or move paid_at.
	first, _ := store.GetOrder(context.Background(), order.ID)
	transitioned, err = rec.Finalize(context.Background(), order.ID, "ch_other")
	require.NoError(t, err)
	assert.False(t, transitioned)

	second, _ := store.GetOrder(context.Background(), order.ID)
	assert.Equal(t, "ch_1", second.CaptureRef)
	assert.Equal(t, first.PaidAt, second.PaidAt)

	issued, err := store.TicketsForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, issued, 2)
}

func TestFinalize_ConcurrentCallsProduceOneTransition(t *testing.T) {
	store := memory.NewStore()
	rec := newReconciler(store)
	order := seedPendingOrder(t, store, 4)

	const callers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transitioned, err := rec.Finalize(context.Background(), order.ID, "ch_1")
			if err == nil && transitioned {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	issued, err := store.TicketsForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, issued, 4)
}

func TestFinalize_CancelledOrderIsIllegal(t *testing.T) {
	store := memory.NewStore()
	rec := newReconciler(store)
	order := seedPendingOrder(t, store, 1)

	transitioned, err := store.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, transitioned)

	_, err = rec.Finalize(context.Background(), order.ID, "ch_late")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	fetched, _ := store.GetOrder(context.Background(), order.ID)
	assert.Equal(t, domain.OrderCancelled, fetched.Status)

	issued, err := store.TicketsForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestFinalizeByProcessorRef(t *testing.T) {
	store := memory.NewStore()
	rec := newReconciler(store)
	order := seedPendingOrder(t, store, 1)

	confirmed, transitioned, err := rec.FinalizeByProcessorRef(context.Background(), "pi_"+order.OrderNumber, "ch_1")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, domain.OrderConfirmed, confirmed.Status)

	_, _, err = rec.FinalizeByProcessorRef(context.Background(), "pi_unknown", "ch_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
