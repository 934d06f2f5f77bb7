package crdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jerseyevents/ticketing/internal/adapters/crdb"
	"github.com/jerseyevents/ticketing/internal/domain"
)

func startCRDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pool
}

func seedTicketType(t *testing.T, repo *crdb.Repository, available int) domain.TicketType {
	t.Helper()
	ctx := context.Background()
	event := domain.Event{
		ID:       uuid.New(),
		Title:    "Load Test Gig",
		Venue:    "Fort Regent",
		Date:     time.Now().Add(30 * 24 * time.Hour),
		Capacity: available,
	}
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatal(err)
	}
	tt := domain.TicketType{
		ID:                uuid.New(),
		EventID:           event.ID,
		Name:              "General Admission",
		Price:             decimal.NewFromInt(20),
		QuantityAvailable: available,
		SaleStarts:        time.Now().Add(-time.Hour),
		SaleEnds:          time.Now().Add(24 * time.Hour),
		Active:            true,
	}
	if err := repo.CreateTicketType(ctx, tt); err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestRepository_ReserveCapacity_NoOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, repo, 10)

	const contenders = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.ReserveCapacity(ctx, tt.ID, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful reservations, got %d", succeeded)
	}

	final, err := repo.GetTicketType(ctx, tt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.QuantitySold != 10 {
		t.Errorf("expected quantity_sold 10, got %d", final.QuantitySold)
	}

	if err := repo.ReserveCapacity(ctx, tt.ID, 1); !errors.Is(err, domain.ErrInventoryExhausted) {
		t.Errorf("expected inventory exhausted, got %v", err)
	}
}

func TestRepository_OrderLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, repo, 50)
	if err := repo.ReserveCapacity(ctx, tt.ID, 2); err != nil {
		t.Fatal(err)
	}

	lines := []domain.OrderLine{{TicketTypeID: tt.ID, Quantity: 2, UnitPrice: tt.Price}}
	order := domain.NewOrder(domain.Buyer{Email: "buyer@example.com", FirstName: "Pat"}, lines, "GBP", time.Now())
	if err := repo.InsertOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	// Inserting the same order number again is a conflict.
	dup := domain.NewOrder(domain.Buyer{Email: "other@example.com"}, []domain.OrderLine{{TicketTypeID: tt.ID, Quantity: 1, UnitPrice: tt.Price}}, "GBP", time.Now())
	dup.OrderNumber = order.OrderNumber
	if err := repo.InsertOrder(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict on duplicate order number, got %v", err)
	}

	transitioned, err := repo.ConfirmOrder(ctx, order.ID, "ch_1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !transitioned {
		t.Fatal("expected confirm to transition")
	}

	// Replay does not transition again.
	transitioned, err = repo.ConfirmOrder(ctx, order.ID, "ch_2", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if transitioned {
		t.Error("expected replayed confirm to be a no-op")
	}

	fetched, err := repo.GetOrderByNumber(ctx, order.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.OrderConfirmed || fetched.CaptureRef != "ch_1" {
		t.Errorf("expected confirmed with ch_1, got %s %s", fetched.Status, fetched.CaptureRef)
	}

	// Issue twice; the count stays at the line quantity.
	for i := 0; i < 2; i++ {
		if _, err := repo.IssueTicketsForLine(ctx, fetched.Lines[0], fetched.OrderNumber); err != nil {
			t.Fatal(err)
		}
	}
	issued, err := repo.TicketsForOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issued) != 2 {
		t.Errorf("expected 2 tickets, got %d", len(issued))
	}

	// One confirm outbox record, dedupe-keyed on the order.
	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	confirms := 0
	for _, rec := range records {
		if rec.EventType == "order.confirmed" && rec.AggregateID == order.ID {
			confirms++
		}
	}
	if confirms != 1 {
		t.Errorf("expected exactly one order.confirmed outbox record, got %d", confirms)
	}
}

func TestRepository_InsertOrder_MultipleLines(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)
	ctx := context.Background()

	// Mixed-type orders drive several line inserts through one transaction.
	var lines []domain.OrderLine
	for i := 0; i < 3; i++ {
		tt := seedTicketType(t, repo, 20)
		if err := repo.ReserveCapacity(ctx, tt.ID, i+1); err != nil {
			t.Fatal(err)
		}
		lines = append(lines, domain.OrderLine{TicketTypeID: tt.ID, Quantity: i + 1, UnitPrice: tt.Price})
	}

	order := domain.NewOrder(domain.Buyer{Email: "buyer@example.com"}, lines, "GBP", time.Now())
	if err := repo.InsertOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Lines) != 3 {
		t.Fatalf("expected 3 order lines, got %d", len(fetched.Lines))
	}
	quantities := map[uuid.UUID]int{}
	for _, line := range fetched.Lines {
		quantities[line.TicketTypeID] = line.Quantity
	}
	for _, want := range lines {
		if quantities[want.TicketTypeID] != want.Quantity {
			t.Errorf("line for %s has quantity %d, want %d", want.TicketTypeID, quantities[want.TicketTypeID], want.Quantity)
		}
	}
}

func TestRepository_MarkTicketUsed_SingleWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	pool := startCRDB(t)
	repo := crdb.NewRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, repo, 5)
	if err := repo.ReserveCapacity(ctx, tt.ID, 1); err != nil {
		t.Fatal(err)
	}
	lines := []domain.OrderLine{{TicketTypeID: tt.ID, Quantity: 1, UnitPrice: tt.Price}}
	order := domain.NewOrder(domain.Buyer{Email: "buyer@example.com"}, lines, "GBP", time.Now())
	if err := repo.InsertOrder(ctx, order); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConfirmOrder(ctx, order.ID, "ch_1", time.Now()); err != nil {
		t.Fatal(err)
	}
	issued, err := repo.IssueTicketsForLine(ctx, order.Lines[0], order.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(issued) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(issued))
	}

	const scanners = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.MarkTicketUsed(ctx, issued[0].TicketNumber, time.Now())
			if err == nil && won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning scan, got %d", wins)
	}
}
