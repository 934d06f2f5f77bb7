package orders_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerseyevents/ticketing/internal/adapters/memory"
	"github.com/jerseyevents/ticketing/internal/domain"
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/orders"
	"github.com/jerseyevents/ticketing/internal/payment"
)

func fixture(t *testing.T) (*orders.Processor, *memory.Store, domain.TicketType, domain.TicketType) {
	t.Helper()
	store := memory.NewStore()
	logger := observability.NewLogger()
	ledger := inventory.NewLedger(store, logger)
	svc := orders.NewProcessor(store, ledger, &payment.MockProcessor{}, "GBP", logger)

	eventID := uuid.New()
	store.AddEvent(domain.Event{
		ID:       eventID,
		Title:    "Harvest Festival",
		Venue:    "Town Hall",
		Date:     time.Now().Add(30 * 24 * time.Hour),
		Capacity: 200,
	})
	general := domain.TicketType{
		ID:                uuid.New(),
		EventID:           eventID,
		Name:              "General Admission",
		Price:             decimal.RequireFromString("20.00"),
		QuantityAvailable: 100,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(24 * time.Hour),
		Active:            true,
	}
	vip := domain.TicketType{
		ID:                uuid.New(),
		EventID:           eventID,
		Name:              "VIP",
		Price:             decimal.RequireFromString("55.50"),
		QuantityAvailable: 10,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(24 * time.Hour),
		Active:            true,
	}
	store.AddTicketType(general)
	store.AddTicketType(vip)
	return svc, store, general, vip
}

func buyer() domain.Buyer {
	return domain.Buyer{Email: "buyer@example.com", FirstName: "Alex", LastName: "Quayle"}
}

func TestCreateOrder_TotalsAndReservation(t *testing.T) {
	svc, store, general, vip := fixture(t)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 2},
		{TicketTypeID: vip.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("95.50")),
		"total was %s", order.TotalAmount)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "JER"))
	assert.Len(t, order.OrderNumber, 23)

	gen, err := store.GetTicketType(context.Background(), general.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.QuantitySold)
}

func TestCreateOrder_SnapshotsUnitPrice(t *testing.T) {
	svc, store, general, _ := fixture(t)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 1},
	})
	require.NoError(t, err)

	// A later price change must not affect the stored order.
	general.Price = decimal.RequireFromString("99.00")
	store.AddTicketType(general)

	fetched, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Lines[0].UnitPrice.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, fetched.TotalAmount.Equal(decimal.RequireFromString("20.00")))
}

func TestCreateOrder_MergesDuplicateLines(t *testing.T) {
	svc, _, general, _ := fixture(t)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 2},
		{TicketTypeID: general.ID, Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, order.Lines, 1)
	assert.Equal(t, 5, order.Lines[0].Quantity)
}

func TestCreateOrder_RejectsOffSaleType(t *testing.T) {
	svc, store, _, _ := fixture(t)

	closed := domain.TicketType{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Name:              "Early Bird",
		Price:             decimal.NewFromInt(10),
		QuantityAvailable: 50,
		SaleStarts:        time.Now().Add(-48 * time.Hour),
		SaleEnds:          time.Now().Add(-24 * time.Hour),
		Active:            true,
	}
	store.AddTicketType(closed)

	_, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: closed.ID, Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLine)
}

func TestCreateOrder_InsufficientInventoryLeavesNothingHeld(t *testing.T) {
	svc, store, general, vip := fixture(t)

	_, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 1},
		{TicketTypeID: vip.ID, Quantity: 11},
	})
	require.ErrorIs(t, err, domain.ErrInventoryExhausted)

	gen, err := store.GetTicketType(context.Background(), general.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gen.QuantitySold)
}

func TestStartPayment_RecordsProcessorRef(t *testing.T) {
	store := memory.NewStore()
	logger := observability.NewLogger()
	ledger := inventory.NewLedger(store, logger)
	mock := &payment.MockProcessor{}
	svc := orders.NewProcessor(store, ledger, mock, "GBP", logger)

	tt := domain.TicketType{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Price:             decimal.NewFromInt(20),
		QuantityAvailable: 10,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(time.Hour),
		Active:            true,
	}
	store.AddTicketType(tt)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: tt.ID, Quantity: 1},
	})
	require.NoError(t, err)

	intent, err := svc.StartPayment(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "mock_pi_"+order.OrderNumber, intent.ProcessorOrderID)

	fetched, err := store.GetOrderByProcessorRef(context.Background(), intent.ProcessorOrderID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)

	require.Len(t, mock.Created, 1)
	assert.True(t, mock.Created[0].Amount.Equal(order.TotalAmount))
}

func TestStartPayment_TerminalRejectionCancelsOrder(t *testing.T) {
	store := memory.NewStore()
	logger := observability.NewLogger()
	ledger := inventory.NewLedger(store, logger)
	mock := &payment.MockProcessor{CreateErr: domain.ErrPaymentRejected}
	svc := orders.NewProcessor(store, ledger, mock, "GBP", logger)

	tt := domain.TicketType{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Price:             decimal.NewFromInt(20),
		QuantityAvailable: 10,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(time.Hour),
		Active:            true,
	}
	store.AddTicketType(tt)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: tt.ID, Quantity: 4},
	})
	require.NoError(t, err)

	_, err = svc.StartPayment(context.Background(), order.ID)
	require.ErrorIs(t, err, domain.ErrPaymentRejected)

	fetched, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, fetched.Status)

	got, err := store.GetTicketType(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.QuantitySold)
}

func TestCancel_ReleasesInventory(t *testing.T) {
	svc, store, general, _ := fixture(t)

	order, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 3},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), order.ID))

	fetched, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, fetched.Status)

	gen, err := store.GetTicketType(context.Background(), general.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gen.QuantitySold)

	// Cancelling again is an illegal transition, and stock is not released twice.
	err = svc.Cancel(context.Background(), order.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	gen, _ = store.GetTicketType(context.Background(), general.ID)
	assert.Equal(t, 0, gen.QuantitySold)
}

func TestSweepStale_CancelsOnlyExpiredPending(t *testing.T) {
	svc, store, general, _ := fixture(t)

	stale, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 2},
	})
	require.NoError(t, err)
	fresh, err := svc.CreateOrder(context.Background(), buyer(), []domain.CartLine{
		{TicketTypeID: general.ID, Quantity: 1},
	})
	require.NoError(t, err)
	_ = fresh

	// Every order was just created, so a cutoff in the past sweeps nothing.
	swept, err := svc.SweepStale(context.Background(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// A cutoff in the future captures both pending orders.
	swept, err = svc.SweepStale(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	fetched, err := store.GetOrder(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, fetched.Status)

	gen, err := store.GetTicketType(context.Background(), general.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gen.QuantitySold)
}
