package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/database"
	"orderdesk/logging"
)

// Deps bundles the collaborators of an Allocator.
type Deps struct {
	DB     *sqlx.DB
	Clock  func() time.Time
	Logger *zap.Logger
}

// Allocator issues receipt numbers of the form {year}{4-digit daily sequence}.
// The counter is keyed by (year, day-of-year), so numbering restarts every day.
type Allocator struct {
	db     *sqlx.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewAllocator(deps Deps) (*Allocator, error) {
	if deps.DB == nil {
		return nil, errors.New("receipt allocator: db is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Allocator{db: deps.DB, clock: clock, logger: logging.OrNop(deps.Logger).Named("receipt")}, nil
}

// Format renders a receipt number.
func Format(year, seq int) string {
	return fmt.Sprintf("%04d%04d", year, seq)
}

// Allocate returns the next receipt number for today. tx must be the
// transaction that also inserts the order; with peekOnly the counter is left
// untouched, so a peeked number may later be issued to another order.
func (a *Allocator) Allocate(ctx context.Context, tx database.DBTX, peekOnly bool) (string, error) {
	return a.AllocateAt(ctx, tx, a.clock(), peekOnly)
}

// AllocateAt is Allocate for an explicit calendar day.
func (a *Allocator) AllocateAt(ctx context.Context, tx database.DBTX, at time.Time, peekOnly bool) (string, error) {
	seq, err := database.NextReceiptNoInTx(ctx, tx, at.Year(), at.YearDay(), peekOnly)
	if err != nil {
		return "", err
	}
	return Format(at.Year(), seq), nil
}

// Peek previews the number the next saved order would receive.
func (a *Allocator) Peek(ctx context.Context) (string, error) {
	var number string
	err := database.WithTx(ctx, a.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		number, err = a.Allocate(ctx, tx, true)
		return err
	})
	return number, err
}

// Renumber rewrites every receipt number in (date, time, id) order, restarting
// at 1 each day, and resets each affected day's counter to its highest
// number. It returns how many orders were renumbered.
func (a *Allocator) Renumber(ctx context.Context) (int, error) {
	var renumbered int
	err := database.WithTx(ctx, a.db, func(ctx context.Context, tx *sqlx.Tx) error {
		orders, err := database.ListOrdersChronological(ctx, tx)
		if err != nil {
			return err
		}

		// Park every order on a temporary number first so the new numbers
		// never collide with old ones under UNIQUE(order_date, receipt_number).
		for _, o := range orders {
			if err := database.UpdateOrderReceiptInTx(ctx, tx, o.ID, fmt.Sprintf("tmp-%d", o.ID)); err != nil {
				return err
			}
		}

		type dayKey struct{ year, day int }
		lastByDay := make(map[dayKey]int)
		var days []dayKey
		for _, o := range orders {
			date, err := time.Parse("2006-01-02", o.OrderDate)
			if err != nil {
				return fmt.Errorf("renumber order %d: invalid order date %q: %w", o.ID, o.OrderDate, err)
			}
			key := dayKey{date.Year(), date.YearDay()}
			if _, seen := lastByDay[key]; !seen {
				days = append(days, key)
			}
			lastByDay[key]++
			number := Format(key.year, lastByDay[key])
			if err := database.UpdateOrderReceiptInTx(ctx, tx, o.ID, number); err != nil {
				return err
			}
			if number != o.ReceiptNumber {
				a.logger.Debug("receipt renumbered",
					zap.Int64("order_id", o.ID), zap.String("from", o.ReceiptNumber), zap.String("to", number))
			}
			renumbered++
		}

		for _, key := range days {
			if err := a.Reset(ctx, tx, key.year, key.day, lastByDay[key]); err != nil {
				return err
			}
		}
		a.logger.Info("receipt counters reset", zap.Int("days", len(days)), zap.Int("orders", renumbered))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return renumbered, nil
}

// Reset sets the last issued number of one day, so the next allocation for
// that day returns lastNo+1.
func (a *Allocator) Reset(ctx context.Context, tx database.DBTX, year, dayOfYear, lastNo int) error {
	if lastNo < 0 {
		return fmt.Errorf("reset receipt counter %d/%d: negative value %d", year, dayOfYear, lastNo)
	}
	return database.SetReceiptCounterInTx(ctx, tx, year, dayOfYear, lastNo)
}

// RepairCounters raises counters that lag behind stored receipt numbers.
func (a *Allocator) RepairCounters(ctx context.Context) error {
	return database.WithTx(ctx, a.db, func(ctx context.Context, tx *sqlx.Tx) error {
		skipped, err := database.InitializeReceiptCountersFromOrders(ctx, tx)
		if err != nil {
			return err
		}
		if skipped > 0 {
			a.logger.Warn("unparsable receipt numbers skipped during counter repair", zap.Int("days", skipped))
		}
		return nil
	})
}
