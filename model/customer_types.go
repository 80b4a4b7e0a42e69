package model

import "github.com/shopspring/decimal"

// Customer is keyed by its normalized phone number. The aggregates are
// recomputed from committed orders, never incremented.
type Customer struct {
	ID                 int64           `db:"id" json:"id"`
	Phone              string          `db:"phone" json:"phone"`
	Street             string          `db:"street" json:"street"`
	HouseNumber        string          `db:"house_number" json:"houseNumber"`
	Locality           string          `db:"locality" json:"locality"`
	Name               string          `db:"name" json:"name"`
	Notes              string          `db:"notes" json:"notes"`
	DeliveryPreference string          `db:"delivery_preference" json:"deliveryPreference"`
	OrderCount         int             `db:"order_count" json:"orderCount"`
	TotalSpent         decimal.Decimal `db:"total_spent" json:"totalSpent"`
	LastOrderAt        *string         `db:"last_order_at" json:"lastOrderAt,omitempty"`
	CreatedAt          string          `db:"created_at" json:"createdAt"`
	UpdatedAt          string          `db:"updated_at" json:"updatedAt"`
}

// HasAddress reports whether street, house number and locality are all set.
func (c Customer) HasAddress() bool {
	return c.Street != "" && c.HouseNumber != "" && c.Locality != ""
}
