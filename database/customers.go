package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"orderdesk/model"
)

const customerColumns = `
	id, phone, street, house_number, locality, name, notes, delivery_preference,
	order_count, total_spent, last_order_at, created_at, updated_at`

func GetCustomerByID(ctx context.Context, db DBTX, id int64) (*model.Customer, error) {
	var c model.Customer
	err := db.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("customer %d", id)
		}
		return nil, WrapError(fmt.Sprintf("get customer %d", id), err)
	}
	return &c, nil
}

// GetCustomerByPhone returns nil, nil when no customer has the phone number.
func GetCustomerByPhone(ctx context.Context, db DBTX, phone string) (*model.Customer, error) {
	var c model.Customer
	err := db.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE phone = ?`, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, WrapError("get customer by phone", err)
	}
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchCustomers matches a phone prefix or a name fragment. Wildcards in
// term match literally.
func SearchCustomers(ctx context.Context, db DBTX, term string, limit int) ([]model.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	customers := []model.Customer{}
	err := db.SelectContext(ctx, &customers, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE phone LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY last_order_at DESC, id DESC
		LIMIT ?`,
		likeEscaper.Replace(term)+"%", "%"+likeEscaper.Replace(term)+"%", limit)
	if err != nil {
		return nil, WrapError("search customers", err)
	}
	return customers, nil
}

func InsertCustomerInTx(ctx context.Context, tx DBTX, c model.Customer) (int64, error) {
	const q = `
		INSERT INTO customers (
			phone, street, house_number, locality, name, notes, delivery_preference,
			order_count, total_spent, created_at, updated_at
		) VALUES (
			:phone, :street, :house_number, :locality, :name, :notes, :delivery_preference,
			0, '0', :created_at, :updated_at
		)`
	res, err := tx.NamedExecContext(ctx, q, c)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("insert customer %s", c.Phone), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapError("insert customer", err)
	}
	return id, nil
}

// UpdateCustomerContactInTx writes the address and name fields.
func UpdateCustomerContactInTx(ctx context.Context, tx DBTX, c model.Customer) error {
	const q = `
		UPDATE customers SET
			street = :street,
			house_number = :house_number,
			locality = :locality,
			name = :name,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, q, c)
	if err != nil {
		return WrapError(fmt.Sprintf("update customer %d", c.ID), err)
	}
	return requireAffected(res, "customer", c.ID)
}

func UpdateCustomerNotes(ctx context.Context, db DBTX, id int64, notes, preference, now string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE customers SET notes = ?, delivery_preference = ?, updated_at = ? WHERE id = ?`,
		notes, preference, now, id)
	if err != nil {
		return WrapError(fmt.Sprintf("update customer notes %d", id), err)
	}
	return requireAffected(res, "customer", id)
}

// CustomerAggregates holds the lifetime statistics recomputed from orders.
type CustomerAggregates struct {
	OrderCount  int
	TotalSpent  decimal.Decimal
	LastOrderAt *string
}

// ComputeCustomerAggregates scans the committed orders of one customer.
func ComputeCustomerAggregates(ctx context.Context, db DBTX, customerID int64) (CustomerAggregates, error) {
	var rows []struct {
		Total     decimal.Decimal `db:"total"`
		CreatedAt string          `db:"created_at"`
	}
	err := db.SelectContext(ctx, &rows,
		`SELECT total, created_at FROM orders WHERE customer_id = ? ORDER BY created_at`, customerID)
	if err != nil {
		return CustomerAggregates{}, WrapError(fmt.Sprintf("scan orders of customer %d", customerID), err)
	}

	agg := CustomerAggregates{TotalSpent: decimal.Zero}
	for _, r := range rows {
		agg.OrderCount++
		agg.TotalSpent = agg.TotalSpent.Add(r.Total)
		if agg.LastOrderAt == nil || r.CreatedAt > *agg.LastOrderAt {
			last := r.CreatedAt
			agg.LastOrderAt = &last
		}
	}
	return agg, nil
}

func UpdateCustomerAggregatesInTx(ctx context.Context, tx DBTX, customerID int64, agg CustomerAggregates) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE customers SET order_count = ?, total_spent = ?, last_order_at = ? WHERE id = ?`,
		agg.OrderCount, agg.TotalSpent, agg.LastOrderAt, customerID)
	if err != nil {
		return WrapError(fmt.Sprintf("update aggregates of customer %d", customerID), err)
	}
	return requireAffected(res, "customer", customerID)
}

func DeleteCustomerInTx(ctx context.Context, tx DBTX, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return WrapError(fmt.Sprintf("delete customer %d", id), err)
	}
	return requireAffected(res, "customer", id)
}

func requireAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return WrapError("rows affected", err)
	}
	if n == 0 {
		return model.NotFoundf("%s %d", entity, id)
	}
	return nil
}
