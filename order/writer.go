package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/database"
	"orderdesk/logging"
	"orderdesk/model"
	"orderdesk/stock"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ReceiptAllocator issues the receipt number of a new order inside the
// order's transaction.
type ReceiptAllocator interface {
	AllocateAt(ctx context.Context, tx database.DBTX, at time.Time, peekOnly bool) (string, error)
}

// Deps bundles the collaborators of a Writer.
type Deps struct {
	DB            *sqlx.DB
	Receipts      ReceiptAllocator
	Clock         func() time.Time
	Logger        *zap.Logger
	MaxNoteLength int
}

// Writer persists orders and their lines.
type Writer struct {
	db            *sqlx.DB
	receipts      ReceiptAllocator
	clock         func() time.Time
	logger        *zap.Logger
	maxNoteLength int
}

// Created identifies a newly saved order.
type Created struct {
	OrderID       int64  `json:"orderId"`
	CustomerID    int64  `json:"customerId"`
	ReceiptNumber string `json:"receiptNumber"`
	OrderDate     string `json:"orderDate"`
	Totals
}

func NewWriter(deps Deps) (*Writer, error) {
	if deps.DB == nil {
		return nil, errors.New("order writer: db is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("order writer: receipt allocator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	maxNote := deps.MaxNoteLength
	if maxNote <= 0 {
		maxNote = DefaultMaxNoteLength
	}
	return &Writer{
		db:            deps.DB,
		receipts:      deps.Receipts,
		clock:         clock,
		logger:        logging.OrNop(deps.Logger).Named("order"),
		maxNoteLength: maxNote,
	}, nil
}

func (w *Writer) Validate(d Draft) error {
	return Validate(d, w.maxNoteLength)
}

// Create validates and saves the draft in its own transaction.
func (w *Writer) Create(ctx context.Context, d Draft) (Created, error) {
	if err := w.Validate(d); err != nil {
		return Created{}, err
	}
	var created Created
	err := database.WithTx(ctx, w.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		created, err = w.CreateTx(ctx, tx, d)
		return err
	})
	if err != nil {
		return Created{}, err
	}
	w.logger.Info("order created",
		zap.Int64("order_id", created.OrderID),
		zap.String("receipt", created.ReceiptNumber),
		zap.String("total", created.Total.String()))
	return created, nil
}

// CreateTx saves the draft in the caller's transaction. The receipt number is
// allocated in the same transaction, so a rollback also returns the number.
func (w *Writer) CreateTx(ctx context.Context, tx database.DBTX, d Draft) (Created, error) {
	if err := w.Validate(d); err != nil {
		return Created{}, err
	}
	if d.CourierID != nil {
		if _, err := database.GetCourier(ctx, tx, *d.CourierID); err != nil {
			return Created{}, err
		}
	}

	now := w.clock()
	number, err := w.receipts.AllocateAt(ctx, tx, now, false)
	if err != nil {
		return Created{}, err
	}

	totals := ComputeTotals(d.Lines, d.DiscountPercent)
	header := model.Order{
		CustomerID:      d.CustomerID,
		OrderDate:       now.Format(dateLayout),
		OrderTime:       now.Format(timeLayout),
		CreatedAt:       now.Format(database.TimestampLayout),
		IsPickup:        d.IsPickup,
		CourierID:       d.CourierID,
		Note:            strings.TrimSpace(d.Note),
		DiscountPercent: d.DiscountPercent,
		Subtotal:        totals.Subtotal,
		DiscountAmount:  totals.DiscountAmount,
		Total:           totals.Total,
		ReceiptNumber:   number,
		Status:          model.StatusOpen,
	}
	if d.RequestedTime != "" {
		rt, err := ParseRequestedTime(d.RequestedTime)
		if err != nil {
			return Created{}, err
		}
		header.RequestedTime = &rt
	}

	orderID, err := database.InsertOrderInTx(ctx, tx, header)
	if err != nil {
		return Created{}, err
	}

	lines := make([]model.OrderLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, model.OrderLine{
			Category:  strings.TrimSpace(l.Category),
			Product:   strings.TrimSpace(l.Product),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Extras:    l.Extras,
			Note:      strings.TrimSpace(l.Note),
		})
	}
	if err := database.InsertOrderLinesInTx(ctx, tx, orderID, lines); err != nil {
		return Created{}, err
	}

	return Created{
		OrderID:       orderID,
		CustomerID:    d.CustomerID,
		ReceiptNumber: number,
		OrderDate:     header.OrderDate,
		Totals:        totals,
	}, nil
}

// Get returns the order with its lines in line order.
func (w *Writer) Get(ctx context.Context, id int64) (*model.Order, error) {
	o, err := database.GetOrderByID(ctx, w.db, id)
	if err != nil {
		return nil, err
	}
	return w.withLines(ctx, o)
}

// GetByReceipt looks an order up by its printed number. Numbers repeat
// across days, so the order date is part of the key.
func (w *Writer) GetByReceipt(ctx context.Context, orderDate, receiptNumber string) (*model.Order, error) {
	o, err := database.GetOrderByReceipt(ctx, w.db, orderDate, receiptNumber)
	if err != nil {
		return nil, err
	}
	return w.withLines(ctx, o)
}

func (w *Writer) withLines(ctx context.Context, o *model.Order) (*model.Order, error) {
	lines, err := database.GetOrderLines(ctx, w.db, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return o, nil
}

func (w *Writer) ListByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	if _, err := database.GetCustomerByID(ctx, w.db, customerID); err != nil {
		return nil, err
	}
	return database.ListOrdersByCustomer(ctx, w.db, customerID)
}

// ListByDate lists the orders of one day (YYYY-MM-DD).
func (w *Writer) ListByDate(ctx context.Context, orderDate string) ([]model.Order, error) {
	if _, err := time.Parse(dateLayout, orderDate); err != nil {
		return nil, model.Validationf("date %q is not YYYY-MM-DD", orderDate)
	}
	return database.ListOrdersByDate(ctx, w.db, orderDate)
}

// Delete removes the order, its lines and its stock bookings in one
// transaction and returns the customer it belonged to.
func (w *Writer) Delete(ctx context.Context, id int64) (int64, error) {
	var customerID int64
	err := database.WithTx(ctx, w.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		customerID, err = w.DeleteTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return 0, err
	}
	w.logger.Info("order deleted", zap.Int64("order_id", id), zap.Int64("customer_id", customerID))
	return customerID, nil
}

func (w *Writer) DeleteTx(ctx context.Context, tx database.DBTX, id int64) (int64, error) {
	o, err := database.GetOrderByID(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	unbooked, err := stock.UnbookInTx(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if err := database.DeleteOrderInTx(ctx, tx, id); err != nil {
		return 0, err
	}
	if unbooked > 0 {
		w.logger.Debug("stock bookings reversed", zap.Int64("order_id", id), zap.Int("mutations", unbooked))
	}
	return o.CustomerID, nil
}

// DeleteAll removes every order in one transaction and returns the distinct
// customers that lost orders, in first-seen order.
func (w *Writer) DeleteAll(ctx context.Context) (customerIDs []int64, deleted int, err error) {
	err = database.WithTx(ctx, w.db, func(ctx context.Context, tx *sqlx.Tx) error {
		refs, err := database.ListOrderRefs(ctx, tx, nil)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool)
		for _, ref := range refs {
			if _, err := w.DeleteTx(ctx, tx, ref.ID); err != nil {
				return err
			}
			deleted++
			if !seen[ref.CustomerID] {
				seen[ref.CustomerID] = true
				customerIDs = append(customerIDs, ref.CustomerID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	w.logger.Info("all orders deleted", zap.Int("orders", deleted), zap.Int("customers", len(customerIDs)))
	return customerIDs, deleted, nil
}

// AssignCourier sets or clears (nil) the courier of a delivery order.
func (w *Writer) AssignCourier(ctx context.Context, orderID int64, courierID *int64) error {
	return database.WithTx(ctx, w.db, func(ctx context.Context, tx *sqlx.Tx) error {
		o, err := database.GetOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if courierID != nil {
			if o.IsPickup {
				return model.Validationf("order %s is a pickup order", o.ReceiptNumber)
			}
			if _, err := database.GetCourier(ctx, tx, *courierID); err != nil {
				return err
			}
		}
		return database.UpdateOrderCourierInTx(ctx, tx, orderID, courierID)
	})
}

func (w *Writer) SetStatus(ctx context.Context, orderID int64, status string) error {
	if !model.ValidStatus(status) {
		return model.Validationf("unknown order status %q", status)
	}
	return database.UpdateOrderStatus(ctx, w.db, orderID, status)
}

func (w *Writer) CreateCourier(ctx context.Context, name string) (int64, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return 0, model.Validationf("courier name is required")
	}
	id, err := database.InsertCourier(ctx, w.db, name)
	if err != nil {
		if database.IsConstraint(err) {
			return 0, model.Validationf("courier %s already exists", name)
		}
		return 0, err
	}
	return id, nil
}

func (w *Writer) ListCouriers(ctx context.Context) ([]model.Courier, error) {
	return database.ListCouriers(ctx, w.db)
}
