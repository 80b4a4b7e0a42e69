package receipt

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/database"
	"orderdesk/model"
	"orderdesk/testutil"
)

func newAllocator(t *testing.T, clock *testutil.Clock) (*Allocator, *sqlx.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	alloc, err := NewAllocator(Deps{DB: db, Clock: clock.Now})
	require.NoError(t, err)
	return alloc, db
}

func allocate(t *testing.T, a *Allocator) string {
	t.Helper()
	var number string
	err := database.WithTx(context.Background(), a.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		number, err = a.Allocate(ctx, tx, false)
		return err
	})
	require.NoError(t, err)
	return number
}

func TestNewAllocatorRequiresDB(t *testing.T) {
	_, err := NewAllocator(Deps{})
	require.Error(t, err)
}

func TestAllocateSequentialWithinDay(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC))
	alloc, _ := newAllocator(t, clock)

	for i := 1; i <= 12; i++ {
		assert.Equal(t, fmt.Sprintf("2025%04d", i), allocate(t, alloc))
	}
}

func TestAllocateResetsNextDay(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC))
	alloc, _ := newAllocator(t, clock)

	assert.Equal(t, "20250001", allocate(t, alloc))
	assert.Equal(t, "20250002", allocate(t, alloc))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, "20250001", allocate(t, alloc))
}

func TestPeekDoesNotConsume(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC))
	alloc, db := newAllocator(t, clock)
	ctx := context.Background()

	peeked, err := alloc.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250001", peeked)

	peeked, err = alloc.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250001", peeked)

	assert.Equal(t, "20250001", allocate(t, alloc))

	last, err := database.GetReceiptCounter(ctx, db, 2025, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, last)
}

func TestAllocationRolledBackWithTransaction(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC))
	alloc, db := newAllocator(t, clock)

	err := database.WithTx(context.Background(), db, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := alloc.Allocate(ctx, tx, false)
		require.NoError(t, err)
		return model.Validationf("abort")
	})
	require.True(t, model.IsValidation(err))

	assert.Equal(t, "20250001", allocate(t, alloc))
}

func TestConcurrentAllocationsAreDistinct(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC))
	alloc, _ := newAllocator(t, clock)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var number string
			err := database.WithTx(context.Background(), alloc.db, func(ctx context.Context, tx *sqlx.Tx) error {
				var err error
				number, err = alloc.Allocate(ctx, tx, false)
				return err
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	for i := 1; i <= n; i++ {
		assert.True(t, numbers[fmt.Sprintf("2025%04d", i)], "missing receipt %d", i)
	}
}

func insertOrder(t *testing.T, db *sqlx.DB, customerID int64, date, clock, receipt string) int64 {
	t.Helper()
	var id int64
	err := database.WithTx(context.Background(), db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = database.InsertOrderInTx(ctx, tx, model.Order{
			CustomerID:    customerID,
			OrderDate:     date,
			OrderTime:     clock,
			CreatedAt:     date + " " + clock,
			Subtotal:      decimal.NewFromInt(10),
			Total:         decimal.NewFromInt(10),
			ReceiptNumber: receipt,
			Status:        model.StatusOpen,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func insertCustomer(t *testing.T, db *sqlx.DB) int64 {
	t.Helper()
	var id int64
	err := database.WithTx(context.Background(), db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = database.InsertCustomerInTx(ctx, tx, model.Customer{
			Phone:     "+32470000000",
			CreatedAt: "2025-01-01 10:00:00",
			UpdatedAt: "2025-01-01 10:00:00",
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestRenumberOrdersChronologicallyPerDay(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 2, 11, 9, 0, 0, 0, time.UTC))
	alloc, db := newAllocator(t, clock)
	ctx := context.Background()
	cust := insertCustomer(t, db)

	late := insertOrder(t, db, cust, "2025-02-10", "20:00:00", "20250001")
	early := insertOrder(t, db, cust, "2025-02-10", "18:00:00", "20250007")
	nextDay := insertOrder(t, db, cust, "2025-02-11", "12:00:00", "20250004")

	n, err := alloc.Renumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for id, want := range map[int64]string{early: "20250001", late: "20250002", nextDay: "20250001"} {
		o, err := database.GetOrderByID(ctx, db, id)
		require.NoError(t, err)
		assert.Equal(t, want, o.ReceiptNumber, "order %d", id)
	}

	assert.Equal(t, "20250002", allocate(t, alloc))

	last, err := database.GetReceiptCounter(ctx, db, 2025, 41)
	require.NoError(t, err)
	assert.Equal(t, 2, last)
}

func TestRepairCountersRaisesLaggingCounter(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 2, 10, 21, 0, 0, 0, time.UTC))
	alloc, db := newAllocator(t, clock)
	cust := insertCustomer(t, db)
	insertOrder(t, db, cust, "2025-02-10", "20:00:00", "20250005")

	require.NoError(t, alloc.RepairCounters(context.Background()))
	assert.Equal(t, "20250006", allocate(t, alloc))
}

func TestRepairCountersComparesSequencesNumerically(t *testing.T) {
	clock := testutil.NewClock(time.Date(2025, 2, 10, 23, 0, 0, 0, time.UTC))
	alloc, db := newAllocator(t, clock)
	cust := insertCustomer(t, db)
	insertOrder(t, db, cust, "2025-02-10", "22:58:00", "20259999")
	insertOrder(t, db, cust, "2025-02-10", "22:59:00", "202510000")
	insertOrder(t, db, cust, "2025-02-09", "12:00:00", "tmp-12")

	require.NoError(t, alloc.RepairCounters(context.Background()))
	assert.Equal(t, "202510001", allocate(t, alloc))

	var counters int
	require.NoError(t, db.Get(&counters, `SELECT COUNT(*) FROM receipt_counters`))
	assert.Equal(t, 1, counters)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "20250042", Format(2025, 42))
	assert.Equal(t, "202510000", Format(2025, 10000))
}
