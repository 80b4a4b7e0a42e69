package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderdesk/model"
)

const OrderColumns = `
	id, customer_id, order_date, order_time, created_at, is_pickup, courier_id, note,
	requested_time, discount_percent, subtotal, discount_amount, total, receipt_number,
	status, stock_booked_at`

const insertOrderQuery = `
INSERT INTO orders (
	customer_id, order_date, order_time, created_at, is_pickup, courier_id, note,
	requested_time, discount_percent, subtotal, discount_amount, total, receipt_number, status
) VALUES (
	:customer_id, :order_date, :order_time, :created_at, :is_pickup, :courier_id, :note,
	:requested_time, :discount_percent, :subtotal, :discount_amount, :total, :receipt_number, :status
)`

// InsertOrderInTx inserts the header and returns the new order id.
func InsertOrderInTx(ctx context.Context, tx DBTX, o model.Order) (int64, error) {
	res, err := tx.NamedExecContext(ctx, insertOrderQuery, o)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("insert order %s", o.ReceiptNumber), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapError("insert order", err)
	}
	return id, nil
}

const insertOrderLineQuery = `
INSERT INTO order_lines (order_id, line_no, category, product, quantity, unit_price, extras, note)
VALUES (:order_id, :line_no, :category, :product, :quantity, :unit_price, :extras, :note)`

func InsertOrderLinesInTx(ctx context.Context, tx DBTX, orderID int64, lines []model.OrderLine) error {
	for i, line := range lines {
		line.OrderID = orderID
		line.LineNo = i + 1
		if _, err := tx.NamedExecContext(ctx, insertOrderLineQuery, line); err != nil {
			return WrapError(fmt.Sprintf("insert line %d of order %d (%s)", line.LineNo, orderID, line.Product), err)
		}
	}
	return nil
}

func GetOrderByID(ctx context.Context, db DBTX, id int64) (*model.Order, error) {
	var o model.Order
	err := db.GetContext(ctx, &o, `SELECT `+OrderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("order %d", id)
		}
		return nil, WrapError(fmt.Sprintf("get order %d", id), err)
	}
	return &o, nil
}

func GetOrderByReceipt(ctx context.Context, db DBTX, orderDate, receiptNumber string) (*model.Order, error) {
	var o model.Order
	err := db.GetContext(ctx, &o,
		`SELECT `+OrderColumns+` FROM orders WHERE order_date = ? AND receipt_number = ?`,
		orderDate, receiptNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("receipt %s on %s", receiptNumber, orderDate)
		}
		return nil, WrapError("get order by receipt", err)
	}
	return &o, nil
}

func GetOrderLines(ctx context.Context, db DBTX, orderID int64) ([]model.OrderLine, error) {
	lines := []model.OrderLine{}
	err := db.SelectContext(ctx, &lines, `
		SELECT id, order_id, line_no, category, product, quantity, unit_price, extras, note
		FROM order_lines
		WHERE order_id = ?
		ORDER BY line_no, id`, orderID)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("get lines of order %d", orderID), err)
	}
	return lines, nil
}

func ListOrdersByCustomer(ctx context.Context, db DBTX, customerID int64) ([]model.Order, error) {
	orders := []model.Order{}
	err := db.SelectContext(ctx, &orders,
		`SELECT `+OrderColumns+` FROM orders WHERE customer_id = ? ORDER BY order_date DESC, order_time DESC, id DESC`,
		customerID)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("list orders of customer %d", customerID), err)
	}
	return orders, nil
}

func ListOrdersByDate(ctx context.Context, db DBTX, orderDate string) ([]model.Order, error) {
	orders := []model.Order{}
	err := db.SelectContext(ctx, &orders,
		`SELECT `+OrderColumns+` FROM orders WHERE order_date = ? ORDER BY order_time, id`, orderDate)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("list orders of %s", orderDate), err)
	}
	return orders, nil
}

// ListOrdersChronological returns every order by (date, time, id).
func ListOrdersChronological(ctx context.Context, db DBTX) ([]model.Order, error) {
	orders := []model.Order{}
	err := db.SelectContext(ctx, &orders,
		`SELECT `+OrderColumns+` FROM orders ORDER BY order_date, order_time, id`)
	if err != nil {
		return nil, WrapError("list orders", err)
	}
	return orders, nil
}

// OrderRef is the minimal identity of an order used by bulk deletes.
type OrderRef struct {
	ID         int64 `db:"id"`
	CustomerID int64 `db:"customer_id"`
}

func ListOrderRefs(ctx context.Context, db DBTX, customerID *int64) ([]OrderRef, error) {
	refs := []OrderRef{}
	var err error
	if customerID != nil {
		err = db.SelectContext(ctx, &refs, `SELECT id, customer_id FROM orders WHERE customer_id = ? ORDER BY id`, *customerID)
	} else {
		err = db.SelectContext(ctx, &refs, `SELECT id, customer_id FROM orders ORDER BY id`)
	}
	if err != nil {
		return nil, WrapError("list order refs", err)
	}
	return refs, nil
}

// DeleteOrderInTx removes the lines, then the header.
func DeleteOrderInTx(ctx context.Context, tx DBTX, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, id); err != nil {
		return WrapError(fmt.Sprintf("delete lines of order %d", id), err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return WrapError(fmt.Sprintf("delete order %d", id), err)
	}
	return requireAffected(res, "order", id)
}

func UpdateOrderCourierInTx(ctx context.Context, tx DBTX, id int64, courierID *int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET courier_id = ? WHERE id = ?`, courierID, id)
	if err != nil {
		return WrapError(fmt.Sprintf("assign courier to order %d", id), err)
	}
	return requireAffected(res, "order", id)
}

func UpdateOrderStatus(ctx context.Context, db DBTX, id int64, status string) error {
	res, err := db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return WrapError(fmt.Sprintf("set status of order %d", id), err)
	}
	return requireAffected(res, "order", id)
}

func UpdateOrderReceiptInTx(ctx context.Context, tx DBTX, id int64, receiptNumber string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET receipt_number = ? WHERE id = ?`, receiptNumber, id)
	if err != nil {
		return WrapError(fmt.Sprintf("renumber order %d", id), err)
	}
	return requireAffected(res, "order", id)
}

func MarkOrderBookedInTx(ctx context.Context, tx DBTX, id int64, bookedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET stock_booked_at = ? WHERE id = ?`, bookedAt, id)
	if err != nil {
		return WrapError(fmt.Sprintf("mark order %d booked", id), err)
	}
	return requireAffected(res, "order", id)
}

func GetCourier(ctx context.Context, db DBTX, id int64) (*model.Courier, error) {
	var c model.Courier
	err := db.GetContext(ctx, &c, `SELECT id, name, active FROM couriers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("courier %d", id)
		}
		return nil, WrapError(fmt.Sprintf("get courier %d", id), err)
	}
	return &c, nil
}

func InsertCourier(ctx context.Context, db DBTX, name string) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO couriers (name, active) VALUES (?, 1)`, name)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("insert courier %s", name), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapError("insert courier", err)
	}
	return id, nil
}

func ListCouriers(ctx context.Context, db DBTX) ([]model.Courier, error) {
	couriers := []model.Courier{}
	if err := db.SelectContext(ctx, &couriers, `SELECT id, name, active FROM couriers ORDER BY name`); err != nil {
		return nil, WrapError("list couriers", err)
	}
	return couriers, nil
}
