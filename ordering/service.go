// Package ordering ties customer upsert, order creation, aggregate refresh
// and stock booking into the operations terminals call.
package ordering

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderdesk/customer"
	"orderdesk/database"
	"orderdesk/logging"
	"orderdesk/model"
	"orderdesk/notify"
	"orderdesk/order"
	"orderdesk/receipt"
	"orderdesk/stock"
)

// Deps bundles the collaborators of a Service.
type Deps struct {
	DB        *sqlx.DB
	Customers *customer.Ledger
	Orders    *order.Writer
	Stock     *stock.Engine
	Receipts  *receipt.Allocator
	Publisher notify.Publisher
	Clock     func() time.Time
	Logger    *zap.Logger
	IDGen     func() string

	// PickupDiscount applies to pickup orders that do not carry their own discount.
	PickupDiscount decimal.Decimal
	// AtomicCustomerUpsert runs the customer upsert in the order's
	// transaction instead of committing it first.
	AtomicCustomerUpsert bool
}

type Service struct {
	db             *sqlx.DB
	customers      *customer.Ledger
	orders         *order.Writer
	stock          *stock.Engine
	receipts       *receipt.Allocator
	publisher      notify.Publisher
	clock          func() time.Time
	logger         *zap.Logger
	idGen          func() string
	pickupDiscount decimal.Decimal
	atomicUpsert   bool
}

// Intake is a complete order request from a terminal.
type Intake struct {
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
	Locality    string `json:"locality"`
	IsPickup    bool   `json:"isPickup"`
	CourierID   *int64 `json:"courierId"`
	Note        string `json:"note"`
	// RequestedTime is HH:MM or empty for as soon as possible.
	RequestedTime string `json:"requestedTime"`
	// DiscountPercent overrides the default discount when set.
	DiscountPercent *decimal.Decimal  `json:"discountPercent"`
	Lines           []order.LineInput `json:"lines"`
}

// Result describes a saved order. Warnings lists follow-up steps that failed
// after the order was committed.
type Result struct {
	OpID          string       `json:"opId"`
	OrderID       int64        `json:"orderId"`
	CustomerID    int64        `json:"customerId"`
	ReceiptNumber string       `json:"receiptNumber"`
	Totals        order.Totals `json:"totals"`
	Order         *model.Order `json:"order,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("ordering: db is required")
	case deps.Customers == nil:
		return nil, errors.New("ordering: customer ledger is required")
	case deps.Orders == nil:
		return nil, errors.New("ordering: order writer is required")
	case deps.Stock == nil:
		return nil, errors.New("ordering: stock engine is required")
	case deps.Receipts == nil:
		return nil, errors.New("ordering: receipt allocator is required")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &Service{
		db:             deps.DB,
		customers:      deps.Customers,
		orders:         deps.Orders,
		stock:          deps.Stock,
		receipts:       deps.Receipts,
		publisher:      publisher,
		clock:          clock,
		logger:         logging.OrNop(deps.Logger).Named("ordering"),
		idGen:          idGen,
		pickupDiscount: deps.PickupDiscount,
		atomicUpsert:   deps.AtomicCustomerUpsert,
	}, nil
}

// PlaceOrder validates the intake, upserts the customer, saves the order,
// refreshes the customer's aggregates and books ingredient consumption.
// Once the order is committed the call succeeds; later failures are logged
// and reported in Result.Warnings.
func (s *Service) PlaceOrder(ctx context.Context, in Intake) (Result, error) {
	opID := s.idGen()
	log := s.logger.With(zap.String("op_id", opID))

	cust, draft, err := s.prepare(in)
	if err != nil {
		log.Info("order rejected", zap.Error(err))
		return Result{}, err
	}

	var created order.Created
	if s.atomicUpsert {
		err = database.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
			customerID, err := s.customers.UpsertTx(ctx, tx, cust)
			if err != nil {
				return err
			}
			draft.CustomerID = customerID
			created, err = s.orders.CreateTx(ctx, tx, draft)
			return err
		})
	} else {
		var customerID int64
		customerID, err = s.customers.Upsert(ctx, cust)
		if err == nil {
			draft.CustomerID = customerID
			created, err = s.orders.Create(ctx, draft)
			if err != nil {
				log.Warn("customer kept without order", zap.Int64("customer_id", customerID))
			}
		}
	}
	if err != nil {
		s.logFailure(log, "place order failed", err)
		return Result{}, err
	}

	res := Result{
		OpID:          opID,
		OrderID:       created.OrderID,
		CustomerID:    created.CustomerID,
		ReceiptNumber: created.ReceiptNumber,
		Totals:        created.Totals,
	}
	log = log.With(zap.Int64("order_id", created.OrderID), zap.String("receipt", created.ReceiptNumber))

	if err := s.customers.RefreshAggregates(ctx, created.CustomerID); err != nil {
		s.logFailure(log, "refresh customer aggregates failed", err)
		res.Warnings = append(res.Warnings, "customer statistics not updated")
	}
	if _, err := s.stock.BookConsumption(ctx, created.OrderID); err != nil {
		s.logFailure(log, "book stock consumption failed", err)
		res.Warnings = append(res.Warnings, "stock not booked")
	}

	saved, err := s.orders.Get(ctx, created.OrderID)
	if err != nil {
		s.logFailure(log, "read back saved order failed", err)
	} else {
		res.Order = saved
	}

	ev := notify.OrderEvent{
		OpID:          opID,
		OrderID:       created.OrderID,
		CustomerID:    created.CustomerID,
		ReceiptNumber: created.ReceiptNumber,
		OrderDate:     created.OrderDate,
		IsPickup:      in.IsPickup,
		Total:         created.Total.StringFixed(2),
		OccurredAt:    s.clock(),
	}
	if err := s.publisher.PublishOrderPlaced(ctx, ev); err != nil {
		log.Warn("order event not published", zap.Error(err))
		res.Warnings = append(res.Warnings, "order event not published")
	}

	log.Info("order placed", zap.String("total", created.Total.StringFixed(2)), zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// prepare checks the intake before anything is written.
func (s *Service) prepare(in Intake) (customer.Input, order.Draft, error) {
	if _, err := s.customers.NormalizePhone(in.Phone); err != nil {
		return customer.Input{}, order.Draft{}, err
	}
	cust := customer.Input{Phone: in.Phone, Name: in.Name}
	if !in.IsPickup {
		if strings.TrimSpace(in.Street) == "" || strings.TrimSpace(in.HouseNumber) == "" || strings.TrimSpace(in.Locality) == "" {
			return customer.Input{}, order.Draft{}, model.Validationf("delivery orders need street, house number and locality")
		}
		cust.Street, cust.HouseNumber, cust.Locality = in.Street, in.HouseNumber, in.Locality
	}

	discount := decimal.Zero
	if in.IsPickup {
		discount = s.pickupDiscount
	}
	if in.DiscountPercent != nil {
		discount = *in.DiscountPercent
	}
	draft := order.Draft{
		IsPickup:        in.IsPickup,
		CourierID:       in.CourierID,
		Note:            in.Note,
		RequestedTime:   in.RequestedTime,
		DiscountPercent: discount,
		Lines:           in.Lines,
	}

	// the customer id is only known after the upsert
	candidate := draft
	candidate.CustomerID = 1
	if err := s.orders.Validate(candidate); err != nil {
		return customer.Input{}, order.Draft{}, err
	}
	return cust, draft, nil
}

// DeleteOrder removes one order and refreshes its customer's aggregates.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	opID := s.idGen()
	log := s.logger.With(zap.String("op_id", opID), zap.Int64("order_id", orderID))

	customerID, err := s.orders.Delete(ctx, orderID)
	if err != nil {
		s.logFailure(log, "delete order failed", err)
		return err
	}
	if err := s.customers.RefreshAggregates(ctx, customerID); err != nil {
		s.logFailure(log, "refresh customer aggregates failed", err)
	}
	ev := notify.OrderEvent{OpID: opID, OrderID: orderID, CustomerID: customerID, OccurredAt: s.clock()}
	if err := s.publisher.PublishOrderDeleted(ctx, ev); err != nil {
		log.Warn("order event not published", zap.Error(err))
	}
	return nil
}

// DeleteAllOrders removes every order and refreshes every customer that had one.
func (s *Service) DeleteAllOrders(ctx context.Context) (int, error) {
	log := s.logger.With(zap.String("op_id", s.idGen()))

	customerIDs, deleted, err := s.orders.DeleteAll(ctx)
	if err != nil {
		s.logFailure(log, "delete all orders failed", err)
		return 0, err
	}
	for _, id := range customerIDs {
		if err := s.customers.RefreshAggregates(ctx, id); err != nil {
			s.logFailure(log.With(zap.Int64("customer_id", id)), "refresh customer aggregates failed", err)
		}
	}
	return deleted, nil
}

// PeekReceiptNumber previews the next receipt number without consuming it.
func (s *Service) PeekReceiptNumber(ctx context.Context) (string, error) {
	return s.receipts.Peek(ctx)
}

func (s *Service) RenumberReceipts(ctx context.Context) (int, error) {
	n, err := s.receipts.Renumber(ctx)
	if err != nil {
		s.logFailure(s.logger, "renumber receipts failed", err)
		return 0, err
	}
	return n, nil
}

// PurgeCustomer deletes the customer with all its orders and their stock bookings.
func (s *Service) PurgeCustomer(ctx context.Context, customerID int64) (int, error) {
	removed, err := s.customers.Purge(ctx, customerID, s.orders)
	if err != nil {
		s.logFailure(s.logger.With(zap.Int64("customer_id", customerID)), "purge customer failed", err)
		return 0, err
	}
	return removed, nil
}

// logFailure logs store errors in full at error level; caller mistakes are
// logged at info.
func (s *Service) logFailure(log *zap.Logger, msg string, err error) {
	switch {
	case model.IsValidation(err), model.IsNotFound(err):
		log.Info(msg, zap.Error(err))
	default:
		log.Error(msg, zap.Error(err))
	}
}
