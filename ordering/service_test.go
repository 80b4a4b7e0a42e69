package ordering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderdesk/customer"
	"orderdesk/database"
	"orderdesk/model"
	"orderdesk/notify"
	"orderdesk/order"
	"orderdesk/receipt"
	"orderdesk/stock"
	"orderdesk/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubPublisher struct {
	mu      sync.Mutex
	placed  []notify.OrderEvent
	deleted []notify.OrderEvent
	err     error
}

func (s *stubPublisher) PublishOrderPlaced(_ context.Context, ev notify.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.placed = append(s.placed, ev)
	return nil
}

func (s *stubPublisher) PublishOrderDeleted(_ context.Context, ev notify.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, ev)
	return nil
}

func (s *stubPublisher) Close() error { return nil }

type harness struct {
	db        *sqlx.DB
	clock     *testutil.Clock
	publisher *stubPublisher
	customers *customer.Ledger
	engine    *stock.Engine
	svc       *Service
}

func newHarness(t *testing.T, atomic bool) harness {
	t.Helper()
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2025, 10, 3, 18, 0, 0, 0, time.UTC))

	alloc, err := receipt.NewAllocator(receipt.Deps{DB: db, Clock: clock.Now})
	require.NoError(t, err)
	customers, err := customer.NewLedger(customer.Deps{DB: db, Clock: clock.Now, CountryCode: "32", NameLocale: "nl"})
	require.NoError(t, err)
	writer, err := order.NewWriter(order.Deps{DB: db, Receipts: alloc, Clock: clock.Now, MaxNoteLength: 250})
	require.NoError(t, err)
	engine, err := stock.NewEngine(stock.Deps{DB: db, Clock: clock.Now})
	require.NoError(t, err)

	pub := &stubPublisher{}
	ids := 0
	svc, err := NewService(Deps{
		DB:                   db,
		Customers:            customers,
		Orders:               writer,
		Stock:                engine,
		Receipts:             alloc,
		Publisher:            pub,
		Clock:                clock.Now,
		IDGen:                func() string { ids++; return "op-" + string(rune('a'+ids-1)) },
		PickupDiscount:       dec("10"),
		AtomicCustomerUpsert: atomic,
	})
	require.NoError(t, err)
	return harness{db: db, clock: clock, publisher: pub, customers: customers, engine: engine, svc: svc}
}

func pickupIntake(phone string) Intake {
	return Intake{
		Phone:    phone,
		Name:     "jan peeters",
		IsPickup: true,
		Lines:    []order.LineInput{{Category: "Pizza", Product: "Margherita", Quantity: 3, UnitPrice: dec("10.00")}},
	}
}

func TestPlaceOrderScenario(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		t.Run(map[bool]string{false: "separate upsert", true: "atomic upsert"}[atomic], func(t *testing.T) {
			placeOrderScenario(t, newHarness(t, atomic))
		})
	}
}

func placeOrderScenario(t *testing.T, h harness) {
	t.Helper()
	ctx := context.Background()

	res, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "op-a", res.OpID)
	assert.Equal(t, "20250001", res.ReceiptNumber)
	assert.Equal(t, "30.00", res.Totals.Subtotal.StringFixed(2))
	assert.Equal(t, "3.00", res.Totals.DiscountAmount.StringFixed(2))
	assert.Equal(t, "27.00", res.Totals.Total.StringFixed(2))
	require.NotNil(t, res.Order)
	require.Len(t, res.Order.Lines, 1)
	assert.NotNil(t, res.Order.StockBookedAt)

	c, err := h.customers.Get(ctx, res.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "+32477123456", c.Phone)
	assert.Equal(t, "Jan Peeters", c.Name)
	assert.Equal(t, 1, c.OrderCount)
	assert.Equal(t, "27.00", c.TotalSpent.StringFixed(2))

	second, err := h.svc.PlaceOrder(ctx, pickupIntake("+32 477 12 34 56"))
	require.NoError(t, err)
	assert.Equal(t, "20250002", second.ReceiptNumber)
	assert.Equal(t, res.CustomerID, second.CustomerID)

	h.clock.Advance(24 * time.Hour)
	third, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	assert.Equal(t, "20250001", third.ReceiptNumber)

	require.Len(t, h.publisher.placed, 3)
	assert.Equal(t, "20250001", h.publisher.placed[0].ReceiptNumber)
	assert.Equal(t, "27.00", h.publisher.placed[0].Total)
}

func TestPlaceOrderDeliveryNeedsAddress(t *testing.T) {
	h := newHarness(t, false)
	in := pickupIntake("0477123456")
	in.IsPickup = false
	in.Street = "Kerkstraat"

	_, err := h.svc.PlaceOrder(context.Background(), in)
	require.True(t, model.IsValidation(err))

	var customers int
	require.NoError(t, h.db.Get(&customers, `SELECT COUNT(*) FROM customers`))
	assert.Zero(t, customers)
}

func TestPlaceOrderDeliveryHasNoDefaultDiscount(t *testing.T) {
	h := newHarness(t, false)
	in := pickupIntake("0477123456")
	in.IsPickup = false
	in.Street, in.HouseNumber, in.Locality = "Kerkstraat", "1", "Gent"

	res, err := h.svc.PlaceOrder(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Totals.DiscountAmount.IsZero())
	assert.Equal(t, "30.00", res.Totals.Total.StringFixed(2))

	c, err := h.customers.Get(context.Background(), res.CustomerID)
	require.NoError(t, err)
	assert.True(t, c.HasAddress())
}

func TestPlaceOrderRejectsBeforeWriting(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	cases := map[string]Intake{
		"bad phone": func() Intake { in := pickupIntake("12"); return in }(),
		"no lines":  func() Intake { in := pickupIntake("0477123456"); in.Lines = nil; return in }(),
		"zero qty": func() Intake {
			in := pickupIntake("0477123456")
			in.Lines[0].Quantity = 0
			return in
		}(),
	}
	for name, in := range cases {
		_, err := h.svc.PlaceOrder(ctx, in)
		assert.Truef(t, model.IsValidation(err), "%s: got %v", name, err)
	}

	var customers, counters int
	require.NoError(t, h.db.Get(&customers, `SELECT COUNT(*) FROM customers`))
	require.NoError(t, h.db.Get(&counters, `SELECT COUNT(*) FROM receipt_counters`))
	assert.Zero(t, customers)
	assert.Zero(t, counters)
}

func TestPlaceOrderAtomicUpsertRollsBackCustomer(t *testing.T) {
	h := newHarness(t, true)
	in := pickupIntake("0477123456")
	in.IsPickup = false
	in.Street, in.HouseNumber, in.Locality = "Kerkstraat", "1", "Gent"
	missing := int64(42)
	in.CourierID = &missing

	_, err := h.svc.PlaceOrder(context.Background(), in)
	require.True(t, model.IsNotFound(err))

	var customers int
	require.NoError(t, h.db.Get(&customers, `SELECT COUNT(*) FROM customers`))
	assert.Zero(t, customers)
}

func TestPlaceOrderSeparateUpsertKeepsCustomer(t *testing.T) {
	h := newHarness(t, false)
	in := pickupIntake("0477123456")
	in.IsPickup = false
	in.Street, in.HouseNumber, in.Locality = "Kerkstraat", "1", "Gent"
	missing := int64(42)
	in.CourierID = &missing

	_, err := h.svc.PlaceOrder(context.Background(), in)
	require.True(t, model.IsNotFound(err))

	var customers, orders int
	require.NoError(t, h.db.Get(&customers, `SELECT COUNT(*) FROM customers`))
	require.NoError(t, h.db.Get(&orders, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 1, customers)
	assert.Zero(t, orders)
}

func TestPlaceOrderBookingFailureKeepsOrder(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	cheese, err := h.engine.CreateIngredient(ctx, stock.IngredientInput{Name: "Mozzarella", Unit: "kg", OpeningStock: dec("10")})
	require.NoError(t, err)
	_, err = h.db.Exec(`INSERT INTO recipe_entries (category, product, ingredient_id, quantity) VALUES ('Pizza', 'Margherita', ?, 'lots')`, cheese)
	require.NoError(t, err)

	res, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	assert.Equal(t, "20250001", res.ReceiptNumber)
	assert.Equal(t, []string{"stock not booked"}, res.Warnings)

	o, err := database.GetOrderByID(ctx, h.db, res.OrderID)
	require.NoError(t, err)
	assert.Nil(t, o.StockBookedAt)

	mutations, err := database.GetMutationsByOrder(ctx, h.db, res.OrderID)
	require.NoError(t, err)
	assert.Empty(t, mutations)

	c, err := h.customers.Get(ctx, res.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.OrderCount)
	require.Len(t, h.publisher.placed, 1)
}

func TestPlaceOrderPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, false)
	h.publisher.err = errors.New("broker down")

	res, err := h.svc.PlaceOrder(context.Background(), pickupIntake("0477123456"))
	require.NoError(t, err)
	assert.Equal(t, "20250001", res.ReceiptNumber)
	assert.Contains(t, res.Warnings, "order event not published")
}

func TestPlaceOrderBooksStock(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	cheese, err := h.engine.CreateIngredient(ctx, stock.IngredientInput{Name: "Mozzarella", Unit: "kg", OpeningStock: dec("10")})
	require.NoError(t, err)
	require.NoError(t, h.engine.SetRecipe(ctx, "Pizza", "Margherita", []stock.RecipeLine{{IngredientID: cheese, Quantity: dec("0.3")}}))

	res, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)

	mutations, err := database.GetMutationsByOrder(ctx, h.db, res.OrderID)
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "-0.9", mutations[0].Delta.String())

	require.NoError(t, h.svc.DeleteOrder(ctx, res.OrderID))
	drift, err := h.engine.Verify(ctx, cheese)
	require.NoError(t, err)
	assert.True(t, drift.InSync())
	assert.Equal(t, "10", drift.Cached.String())
}

func TestDeleteOrderRefreshesAggregates(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	first, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	second, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteOrder(ctx, second.OrderID))

	c, err := h.customers.Get(ctx, first.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.OrderCount)
	assert.Equal(t, "27.00", c.TotalSpent.StringFixed(2))
	require.NotNil(t, c.LastOrderAt)
	assert.Equal(t, "2025-10-03 18:00:00", *c.LastOrderAt)

	require.Len(t, h.publisher.deleted, 1)
	assert.Equal(t, second.OrderID, h.publisher.deleted[0].OrderID)

	assert.True(t, model.IsNotFound(h.svc.DeleteOrder(ctx, second.OrderID)))
}

func TestDeleteAllOrdersZeroesAggregates(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	a, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	b, err := h.svc.PlaceOrder(ctx, pickupIntake("0478999999"))
	require.NoError(t, err)
	_, err = h.svc.PlaceOrder(ctx, pickupIntake("0478999999"))
	require.NoError(t, err)

	deleted, err := h.svc.DeleteAllOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	for _, id := range []int64{a.CustomerID, b.CustomerID} {
		c, err := h.customers.Get(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, c.OrderCount)
		assert.True(t, c.TotalSpent.IsZero())
		assert.Nil(t, c.LastOrderAt)
	}
}

func TestPeekAndRenumber(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	peeked, err := h.svc.PeekReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250001", peeked)

	first, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	assert.Equal(t, peeked, first.ReceiptNumber)
	second, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteOrder(ctx, first.OrderID))
	n, err := h.svc.RenumberReceipts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o, err := database.GetOrderByID(ctx, h.db, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "20250001", o.ReceiptNumber)

	peeked, err = h.svc.PeekReceiptNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250002", peeked)
}

func TestPurgeCustomer(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	res, err := h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)
	_, err = h.svc.PlaceOrder(ctx, pickupIntake("0477123456"))
	require.NoError(t, err)

	removed, err := h.svc.PurgeCustomer(ctx, res.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = h.customers.Get(ctx, res.CustomerID)
	assert.True(t, model.IsNotFound(err))
	var orders int
	require.NoError(t, h.db.Get(&orders, `SELECT COUNT(*) FROM orders`))
	assert.Zero(t, orders)
}
