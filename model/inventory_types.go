package model

import "github.com/shopspring/decimal"

type Ingredient struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Unit         string          `db:"unit" json:"unit"`
	MinStock     decimal.Decimal `db:"min_stock" json:"minStock"`
	CurrentStock decimal.Decimal `db:"current_stock" json:"currentStock"`
}

// BelowMinimum reports whether the cached stock is under the threshold.
func (i Ingredient) BelowMinimum() bool {
	return i.CurrentStock.LessThan(i.MinStock)
}

// RecipeEntry is the amount of one ingredient consumed per unit of product sold.
type RecipeEntry struct {
	Category     string          `db:"category" json:"category"`
	Product      string          `db:"product" json:"product"`
	IngredientID int64           `db:"ingredient_id" json:"ingredientId"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
}

// StockMutation is one signed ledger entry. OrderID is nil for manual adjustments.
type StockMutation struct {
	ID           int64           `db:"id" json:"id"`
	IngredientID int64           `db:"ingredient_id" json:"ingredientId"`
	OrderID      *int64          `db:"order_id" json:"orderId,omitempty"`
	Delta        decimal.Decimal `db:"delta" json:"delta"`
	Reason       string          `db:"reason" json:"reason"`
	CreatedAt    string          `db:"created_at" json:"createdAt"`
}
