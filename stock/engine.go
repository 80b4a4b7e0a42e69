package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderdesk/database"
	"orderdesk/logging"
	"orderdesk/model"
	"orderdesk/units"
)

// Deps bundles the collaborators of an Engine.
type Deps struct {
	DB     *sqlx.DB
	Clock  func() time.Time
	Logger *zap.Logger
}

// Engine books ingredient consumption of saved orders against the stock
// ledger. current_stock is a cache of the ledger sum and moves only together
// with a mutation.
type Engine struct {
	db     *sqlx.DB
	clock  func() time.Time
	logger *zap.Logger
}

// Booking is the outcome of BookConsumption. Consumed holds the positive
// amount taken per ingredient id.
type Booking struct {
	OrderID       int64
	AlreadyBooked bool
	Consumed      map[int64]decimal.Decimal
	Mutations     int
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.DB == nil {
		return nil, errors.New("stock engine: db is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{db: deps.DB, clock: clock, logger: logging.OrNop(deps.Logger).Named("stock")}, nil
}

// OrderReason is the mutation reason of stock booked for an order.
func OrderReason(orderID int64) string {
	return fmt.Sprintf("Order #%d", orderID)
}

// BookConsumption deducts the recipe quantities of every line of the order,
// one mutation per ingredient, in a single transaction. Booking an order a
// second time is a no-op.
func (e *Engine) BookConsumption(ctx context.Context, orderID int64) (Booking, error) {
	var booking Booking
	err := database.WithTx(ctx, e.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		booking, err = e.BookConsumptionTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return Booking{}, err
	}
	if !booking.AlreadyBooked {
		e.logger.Debug("consumption booked",
			zap.Int64("order_id", orderID), zap.Int("mutations", booking.Mutations))
	}
	return booking, nil
}

func (e *Engine) BookConsumptionTx(ctx context.Context, tx database.DBTX, orderID int64) (Booking, error) {
	booking := Booking{OrderID: orderID, Consumed: make(map[int64]decimal.Decimal)}

	o, err := database.GetOrderByID(ctx, tx, orderID)
	if err != nil {
		return booking, err
	}
	if o.StockBookedAt != nil {
		booking.AlreadyBooked = true
		return booking, nil
	}

	lines, err := database.GetOrderLines(ctx, tx, orderID)
	if err != nil {
		return booking, err
	}

	var order []int64
	for _, line := range lines {
		entries, err := database.GetRecipeEntries(ctx, tx, line.Category, line.Product)
		if err != nil {
			return booking, err
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		for _, entry := range entries {
			if !entry.Quantity.IsPositive() {
				continue
			}
			prev, seen := booking.Consumed[entry.IngredientID]
			if !seen {
				order = append(order, entry.IngredientID)
			}
			booking.Consumed[entry.IngredientID] = prev.Add(entry.Quantity.Mul(qty))
		}
	}

	now := e.clock().Format(database.TimestampLayout)
	reason := OrderReason(orderID)
	for _, ingredientID := range order {
		id := orderID
		_, err := database.ApplyStockDeltaInTx(ctx, tx, model.StockMutation{
			IngredientID: ingredientID,
			OrderID:      &id,
			Delta:        booking.Consumed[ingredientID].Neg(),
			Reason:       reason,
			CreatedAt:    now,
		})
		if err != nil {
			return booking, err
		}
		booking.Mutations++
	}

	if err := database.MarkOrderBookedInTx(ctx, tx, orderID, &now); err != nil {
		return booking, err
	}
	return booking, nil
}

// UnbookInTx removes every mutation booked for the order and restores the
// cached stock levels. It returns the number of mutations removed.
func UnbookInTx(ctx context.Context, tx database.DBTX, orderID int64) (int, error) {
	mutations, err := database.GetMutationsByOrder(ctx, tx, orderID)
	if err != nil {
		return 0, err
	}
	for _, m := range mutations {
		if err := database.DeleteMutationInTx(ctx, tx, m); err != nil {
			return 0, err
		}
	}
	return len(mutations), nil
}

// IngredientInput describes a new ingredient. OpeningStock is booked as the
// first mutation.
type IngredientInput struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	MinStock     decimal.Decimal `json:"minStock"`
	OpeningStock decimal.Decimal `json:"openingStock"`
}

func (e *Engine) CreateIngredient(ctx context.Context, in IngredientInput) (int64, error) {
	var id int64
	err := database.WithTx(ctx, e.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = e.CreateIngredientTx(ctx, tx, in)
		return err
	})
	return id, err
}

func (e *Engine) CreateIngredientTx(ctx context.Context, tx database.DBTX, in IngredientInput) (int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, model.Validationf("ingredient name is required")
	}
	if in.MinStock.IsNegative() {
		return 0, model.Validationf("minimum stock of %s must not be negative", name)
	}
	existing, err := database.GetIngredientByName(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, model.Validationf("ingredient %s already exists", name)
	}

	id, err := database.InsertIngredientInTx(ctx, tx, model.Ingredient{
		Name:     name,
		Unit:     units.Canonical(in.Unit),
		MinStock: in.MinStock,
	})
	if err != nil {
		return 0, err
	}
	if !in.OpeningStock.IsZero() {
		_, err := database.ApplyStockDeltaInTx(ctx, tx, model.StockMutation{
			IngredientID: id,
			Delta:        in.OpeningStock,
			Reason:       "Opening stock",
			CreatedAt:    e.clock().Format(database.TimestampLayout),
		})
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

// RecipeLine is one ingredient of a recipe.
type RecipeLine struct {
	IngredientID int64           `json:"ingredientId"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// SetRecipe replaces the recipe of (category, product).
func (e *Engine) SetRecipe(ctx context.Context, category, product string, lines []RecipeLine) error {
	return database.WithTx(ctx, e.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return e.SetRecipeTx(ctx, tx, category, product, lines)
	})
}

func (e *Engine) SetRecipeTx(ctx context.Context, tx database.DBTX, category, product string, lines []RecipeLine) error {
	category = strings.TrimSpace(category)
	product = strings.TrimSpace(product)
	if category == "" || product == "" {
		return model.Validationf("recipe needs a category and a product")
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.Quantity.IsNegative() {
			return model.Validationf("recipe quantity for %s/%s must not be negative", category, product)
		}
		ids = append(ids, l.IngredientID)
	}
	known, err := database.GetIngredientsByIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return model.NotFoundf("ingredient %d", id)
		}
	}

	if err := database.DeleteRecipeInTx(ctx, tx, category, product); err != nil {
		return err
	}
	for _, l := range lines {
		if err := database.UpsertRecipeEntryInTx(ctx, tx, model.RecipeEntry{
			Category:     category,
			Product:      product,
			IngredientID: l.IngredientID,
			Quantity:     l.Quantity,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) RecipeFor(ctx context.Context, category, product string) ([]model.RecipeEntry, error) {
	return database.GetRecipeEntries(ctx, e.db, category, product)
}

// Adjust books a manual correction. Manual mutations carry no order id.
func (e *Engine) Adjust(ctx context.Context, ingredientID int64, delta decimal.Decimal, reason string) (*model.Ingredient, error) {
	if delta.IsZero() {
		return nil, model.Validationf("adjustment must not be zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Manual adjustment"
	}
	var ing *model.Ingredient
	err := database.WithTx(ctx, e.db, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := database.ApplyStockDeltaInTx(ctx, tx, model.StockMutation{
			IngredientID: ingredientID,
			Delta:        delta,
			Reason:       reason,
			CreatedAt:    e.clock().Format(database.TimestampLayout),
		})
		if err != nil {
			return err
		}
		ing, err = database.GetIngredient(ctx, tx, ingredientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("stock adjusted",
		zap.Int64("ingredient_id", ingredientID), zap.String("delta", delta.String()), zap.String("reason", reason))
	return ing, nil
}

func (e *Engine) Ingredients(ctx context.Context) ([]model.Ingredient, error) {
	return database.ListIngredients(ctx, e.db)
}

// LowStock lists ingredients below their minimum, lowest relative level first.
func (e *Engine) LowStock(ctx context.Context) ([]model.Ingredient, error) {
	all, err := database.ListIngredients(ctx, e.db)
	if err != nil {
		return nil, err
	}
	low := []model.Ingredient{}
	for _, ing := range all {
		if ing.BelowMinimum() {
			low = append(low, ing)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].CurrentStock.Sub(low[i].MinStock).LessThan(low[j].CurrentStock.Sub(low[j].MinStock))
	})
	return low, nil
}

func (e *Engine) Mutations(ctx context.Context, ingredientID int64, limit int) ([]model.StockMutation, error) {
	if _, err := database.GetIngredient(ctx, e.db, ingredientID); err != nil {
		return nil, err
	}
	return database.GetMutationsByIngredient(ctx, e.db, ingredientID, limit)
}

// Drift is the difference between the cached stock level and the ledger sum.
type Drift struct {
	IngredientID int64           `json:"ingredientId"`
	Cached       decimal.Decimal `json:"cached"`
	Ledger       decimal.Decimal `json:"ledger"`
}

func (d Drift) InSync() bool { return d.Cached.Equal(d.Ledger) }

// Verify compares the cached stock of one ingredient with its ledger.
func (e *Engine) Verify(ctx context.Context, ingredientID int64) (Drift, error) {
	ing, err := database.GetIngredient(ctx, e.db, ingredientID)
	if err != nil {
		return Drift{}, err
	}
	sum, err := database.SumMutations(ctx, e.db, ingredientID)
	if err != nil {
		return Drift{}, err
	}
	d := Drift{IngredientID: ingredientID, Cached: ing.CurrentStock, Ledger: sum}
	if !d.InSync() {
		e.logger.Warn("stock cache out of sync with ledger",
			zap.Int64("ingredient_id", ingredientID),
			zap.String("cached", d.Cached.String()), zap.String("ledger", d.Ledger.String()))
	}
	return d, nil
}
