package database

import (
	"context"
	"fmt"
	"time"
)

// NextReceiptNoInTx creates the (year, day) counter row on first use, reads the
// last issued number and returns last+1. Unless peek is set the new value is
// persisted. It must run in the same transaction as the order insert.
func NextReceiptNoInTx(ctx context.Context, tx DBTX, year, dayOfYear int, peek bool) (int, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO receipt_counters (year, day_of_year, last_no) VALUES (?, ?, 0)`,
		year, dayOfYear)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("ensure receipt counter %d/%d", year, dayOfYear), err)
	}

	var lastNo int
	err = tx.GetContext(ctx, &lastNo,
		`SELECT last_no FROM receipt_counters WHERE year = ? AND day_of_year = ?`, year, dayOfYear)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("get receipt counter %d/%d", year, dayOfYear), err)
	}

	newNo := lastNo + 1
	if peek {
		return newNo, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE receipt_counters SET last_no = ? WHERE year = ? AND day_of_year = ?`,
		newNo, year, dayOfYear)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("update receipt counter %d/%d", year, dayOfYear), err)
	}
	return newNo, nil
}

// SetReceiptCounterInTx overwrites the last issued number of one day.
func SetReceiptCounterInTx(ctx context.Context, tx DBTX, year, dayOfYear, lastNo int) error {
	const q = `
		INSERT INTO receipt_counters (year, day_of_year, last_no)
		VALUES (?, ?, ?)
		ON CONFLICT(year, day_of_year) DO UPDATE SET
			last_no = excluded.last_no`
	if _, err := tx.ExecContext(ctx, q, year, dayOfYear, lastNo); err != nil {
		return WrapError(fmt.Sprintf("set receipt counter %d/%d", year, dayOfYear), err)
	}
	return nil
}

func GetReceiptCounter(ctx context.Context, db DBTX, year, dayOfYear int) (int, error) {
	var lastNo int
	err := db.GetContext(ctx, &lastNo,
		`SELECT COALESCE(MAX(last_no), 0) FROM receipt_counters WHERE year = ? AND day_of_year = ?`,
		year, dayOfYear)
	if err != nil {
		return 0, WrapError("get receipt counter", err)
	}
	return lastNo, nil
}

// InitializeReceiptCountersFromOrders raises every day's counter to at least
// the highest receipt sequence stored for that day. Counters are never lowered.
// Days whose receipt numbers cannot be parsed are skipped and counted.
func InitializeReceiptCountersFromOrders(ctx context.Context, tx DBTX) (skipped int, err error) {
	var rows []struct {
		OrderDate string `db:"order_date"`
		LastNo    *int64 `db:"last_no"`
	}
	// sequences are compared as numbers so 10000 sorts above 9999
	err = tx.SelectContext(ctx, &rows, `
		SELECT order_date,
			MAX(CASE
				WHEN length(receipt_number) > 4 AND receipt_number NOT GLOB '*[^0-9]*'
				THEN CAST(substr(receipt_number, 5) AS INTEGER)
			END) AS last_no
		FROM orders
		GROUP BY order_date`)
	if err != nil {
		return 0, WrapError("scan receipt numbers", err)
	}

	const q = `
		INSERT INTO receipt_counters (year, day_of_year, last_no)
		VALUES (?, ?, ?)
		ON CONFLICT(year, day_of_year) DO UPDATE SET
			last_no = MAX(last_no, excluded.last_no)`
	for _, r := range rows {
		day, perr := time.Parse("2006-01-02", r.OrderDate)
		if perr != nil || r.LastNo == nil {
			skipped++
			continue
		}
		seq := *r.LastNo
		if _, err := tx.ExecContext(ctx, q, day.Year(), day.YearDay(), seq); err != nil {
			return skipped, WrapError("initialize receipt counter", err)
		}
	}
	return skipped, nil
}
