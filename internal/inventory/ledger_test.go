package inventory_test

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
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
)

func newTicketType(t *testing.T, store *memory.Store, available int) domain.TicketType {
	t.Helper()
	tt := domain.TicketType{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Name:              "General Admission",
		Price:             decimal.NewFromInt(20),
		QuantityAvailable: available,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(time.Hour),
		Active:            true,
	}
	store.AddTicketType(tt)
	return tt
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, observability.NewLogger())
	tt := newTicketType(t, store, 100)

	const buyers = 150
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), []domain.ReservationLine{
				{TicketTypeID: tt.ID, Quantity: 1},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)

	final, err := store.GetTicketType(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, final.QuantitySold)
}

func TestLedger_ReserveAllOrNothing(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, observability.NewLogger())
	plenty := newTicketType(t, store, 100)
	scarce := newTicketType(t, store, 2)

	_, err := ledger.Reserve(context.Background(), []domain.ReservationLine{
		{TicketTypeID: plenty.ID, Quantity: 5},
		{TicketTypeID: scarce.ID, Quantity: 3},
	})
	require.ErrorIs(t, err, domain.ErrInventoryExhausted)

	// The first line's hold must have been released.
	first, err := store.GetTicketType(context.Background(), plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.QuantitySold)

	second, err := store.GetTicketType(context.Background(), scarce.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.QuantitySold)
}

func TestLedger_ReserveRejectsNonPositiveQuantity(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, observability.NewLogger())
	tt := newTicketType(t, store, 10)

	_, err := ledger.Reserve(context.Background(), []domain.ReservationLine{
		{TicketTypeID: tt.ID, Quantity: 0},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ledger.Reserve(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLedger_ReleaseReturnsCapacity(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, observability.NewLogger())
	tt := newTicketType(t, store, 10)

	res, err := ledger.Reserve(context.Background(), []domain.ReservationLine{
		{TicketTypeID: tt.ID, Quantity: 4},
	})
	require.NoError(t, err)

	require.NoError(t, ledger.Release(context.Background(), res))

	final, err := store.GetTicketType(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.QuantitySold)
}

func TestLedger_ReserveUnknownTicketType(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, observability.NewLogger())

	_, err := ledger.Reserve(context.Background(), []domain.ReservationLine{
		{TicketTypeID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
