package model

import "github.com/shopspring/decimal"

// Order statuses. Only courier, status and receipt number change after creation.
const (
	StatusOpen      = "open"
	StatusPrinted   = "printed"
	StatusOnRoute   = "on_route"
	StatusCompleted = "completed"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusPrinted, StatusOnRoute, StatusCompleted:
		return true
	}
	return false
}

// Order is an orders row. Lines is filled by the read path only.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	CustomerID      int64           `db:"customer_id" json:"customerId"`
	OrderDate       string          `db:"order_date" json:"orderDate"`
	OrderTime       string          `db:"order_time" json:"orderTime"`
	CreatedAt       string          `db:"created_at" json:"createdAt"`
	IsPickup        bool            `db:"is_pickup" json:"isPickup"`
	CourierID       *int64          `db:"courier_id" json:"courierId,omitempty"`
	Note            string          `db:"note" json:"note"`
	RequestedTime   *string         `db:"requested_time" json:"requestedTime,omitempty"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discountPercent"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discountAmount"`
	Total           decimal.Decimal `db:"total" json:"total"`
	ReceiptNumber   string          `db:"receipt_number" json:"receiptNumber"`
	Status          string          `db:"status" json:"status"`
	StockBookedAt   *string         `db:"stock_booked_at" json:"stockBookedAt,omitempty"`

	Lines []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine is an order_lines row. UnitPrice is the price at order time.
type OrderLine struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"orderId"`
	LineNo    int             `db:"line_no" json:"lineNo"`
	Category  string          `db:"category" json:"category"`
	Product   string          `db:"product" json:"product"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Extras    Extras          `db:"extras" json:"extras"`
	Note      string          `db:"note" json:"note"`
}

// LineTotal returns quantity × unit price.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Courier struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// ReceiptCounter is the last issued receipt sequence of one calendar day.
type ReceiptCounter struct {
	Year      int `db:"year" json:"year"`
	DayOfYear int `db:"day_of_year" json:"dayOfYear"`
	LastNo    int `db:"last_no" json:"lastNo"`
}
