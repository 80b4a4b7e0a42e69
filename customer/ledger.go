package customer

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/database"
	"orderdesk/logging"
	"orderdesk/model"
)

// Deps bundles the collaborators of a Ledger.
type Deps struct {
	DB          *sqlx.DB
	Clock       func() time.Time
	Logger      *zap.Logger
	CountryCode string
	NameLocale  string
}

// Ledger keeps customers keyed by normalized phone number.
type Ledger struct {
	db          *sqlx.DB
	clock       func() time.Time
	logger      *zap.Logger
	countryCode string
	names       NameNormalizer
}

// Input is the customer part of an order intake. Address fields are empty
// for pickup orders.
type Input struct {
	Phone       string
	Street      string
	HouseNumber string
	Locality    string
	Name        string
}

// OrderDeleter removes one order, with everything booked against it, inside tx.
type OrderDeleter interface {
	DeleteTx(ctx context.Context, tx database.DBTX, orderID int64) (customerID int64, err error)
}

func NewLedger(deps Deps) (*Ledger, error) {
	if deps.DB == nil {
		return nil, errors.New("customer ledger: db is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		db:          deps.DB,
		clock:       clock,
		logger:      logging.OrNop(deps.Logger).Named("customer"),
		countryCode: deps.CountryCode,
		names:       NewNameNormalizer(deps.NameLocale),
	}, nil
}

// NormalizePhone applies the ledger's default country code.
func (l *Ledger) NormalizePhone(raw string) (string, error) {
	return NormalizePhone(raw, l.countryCode)
}

func (l *Ledger) NormalizeName(name string) string {
	return l.names.Normalize(name)
}

// Upsert creates or updates the customer in its own transaction and returns its id.
func (l *Ledger) Upsert(ctx context.Context, in Input) (int64, error) {
	var id int64
	err := database.WithTx(ctx, l.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = l.UpsertTx(ctx, tx, in)
		return err
	})
	return id, err
}

// UpsertTx is Upsert inside the caller's transaction. A supplied street
// replaces the stored address as a whole; an empty street (pickup) keeps it.
// A non-empty name replaces the stored name. Repeating the same input
// changes nothing.
func (l *Ledger) UpsertTx(ctx context.Context, tx database.DBTX, in Input) (int64, error) {
	phone, err := l.NormalizePhone(in.Phone)
	if err != nil {
		return 0, err
	}
	name := l.NormalizeName(in.Name)
	street := normalizeAddressPart(in.Street)
	houseNumber := normalizeAddressPart(in.HouseNumber)
	locality := normalizeAddressPart(in.Locality)
	now := l.clock().Format(database.TimestampLayout)

	existing, err := database.GetCustomerByPhone(ctx, tx, phone)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		id, err := database.InsertCustomerInTx(ctx, tx, model.Customer{
			Phone:       phone,
			Street:      street,
			HouseNumber: houseNumber,
			Locality:    locality,
			Name:        name,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return 0, err
		}
		l.logger.Debug("customer created", zap.Int64("customer_id", id))
		return id, nil
	}

	updated := *existing
	if street != "" {
		updated.Street = street
		updated.HouseNumber = houseNumber
		updated.Locality = locality
	}
	if name != "" {
		updated.Name = name
	}
	if updated.Street == existing.Street && updated.HouseNumber == existing.HouseNumber &&
		updated.Locality == existing.Locality && updated.Name == existing.Name {
		return existing.ID, nil
	}
	updated.UpdatedAt = now
	if err := database.UpdateCustomerContactInTx(ctx, tx, updated); err != nil {
		return 0, err
	}
	return existing.ID, nil
}

// RefreshAggregates recomputes order count, total spent and last order time
// from the customer's committed orders.
func (l *Ledger) RefreshAggregates(ctx context.Context, customerID int64) error {
	return database.WithTx(ctx, l.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return l.RefreshAggregatesTx(ctx, tx, customerID)
	})
}

func (l *Ledger) RefreshAggregatesTx(ctx context.Context, tx database.DBTX, customerID int64) error {
	agg, err := database.ComputeCustomerAggregates(ctx, tx, customerID)
	if err != nil {
		return err
	}
	return database.UpdateCustomerAggregatesInTx(ctx, tx, customerID, agg)
}

func (l *Ledger) Get(ctx context.Context, id int64) (*model.Customer, error) {
	return database.GetCustomerByID(ctx, l.db, id)
}

// GetByPhone normalizes phone before the lookup.
func (l *Ledger) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	normalized, err := l.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	c, err := database.GetCustomerByPhone(ctx, l.db, normalized)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NotFoundf("customer with phone %s", normalized)
	}
	return c, nil
}

func (l *Ledger) Search(ctx context.Context, term string, limit int) ([]model.Customer, error) {
	term = normalizeAddressPart(term)
	if term == "" {
		return []model.Customer{}, nil
	}
	if normalized, err := l.NormalizePhone(term); err == nil {
		term = normalized
	}
	return database.SearchCustomers(ctx, l.db, term, limit)
}

// UpdateNotes replaces the free-text notes and delivery preference.
func (l *Ledger) UpdateNotes(ctx context.Context, id int64, notes, preference string) error {
	now := l.clock().Format(database.TimestampLayout)
	return database.UpdateCustomerNotes(ctx, l.db, id, notes, preference, now)
}

// Purge deletes the customer and every order of it in one transaction,
// using orders to remove each order with its stock bookings. It returns the
// number of orders removed.
func (l *Ledger) Purge(ctx context.Context, id int64, orders OrderDeleter) (int, error) {
	if orders == nil {
		return 0, errors.New("customer purge: order deleter is required")
	}
	var removed int
	err := database.WithTx(ctx, l.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := database.GetCustomerByID(ctx, tx, id); err != nil {
			return err
		}
		refs, err := database.ListOrderRefs(ctx, tx, &id)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if _, err := orders.DeleteTx(ctx, tx, ref.ID); err != nil {
				return err
			}
			removed++
		}
		return database.DeleteCustomerInTx(ctx, tx, id)
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("customer purged", zap.Int64("customer_id", id), zap.Int("orders", removed))
	return removed, nil
}
