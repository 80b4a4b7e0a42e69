package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"orderdesk/model"
)

const ingredientColumns = `id, name, unit, min_stock, current_stock`

func GetIngredient(ctx context.Context, db DBTX, id int64) (*model.Ingredient, error) {
	var ing model.Ingredient
	err := db.GetContext(ctx, &ing, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("ingredient %d", id)
		}
		return nil, WrapError(fmt.Sprintf("get ingredient %d", id), err)
	}
	return &ing, nil
}

// GetIngredientByName returns nil, nil when the name is unknown.
func GetIngredientByName(ctx context.Context, db DBTX, name string) (*model.Ingredient, error) {
	var ing model.Ingredient
	err := db.GetContext(ctx, &ing, `SELECT `+ingredientColumns+` FROM ingredients WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, WrapError("get ingredient by name", err)
	}
	return &ing, nil
}

// GetIngredientsByIDs returns the ingredients keyed by id.
func GetIngredientsByIDs(ctx context.Context, db DBTX, ids []int64) (map[int64]model.Ingredient, error) {
	result := make(map[int64]model.Ingredient)
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+ingredientColumns+` FROM ingredients WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to construct IN query for ingredients: %w", err)
	}
	var list []model.Ingredient
	if err := db.SelectContext(ctx, &list, db.Rebind(query), args...); err != nil {
		return nil, WrapError("get ingredients by ids", err)
	}
	for _, ing := range list {
		result[ing.ID] = ing
	}
	return result, nil
}

func ListIngredients(ctx context.Context, db DBTX) ([]model.Ingredient, error) {
	list := []model.Ingredient{}
	if err := db.SelectContext(ctx, &list, `SELECT `+ingredientColumns+` FROM ingredients ORDER BY name`); err != nil {
		return nil, WrapError("list ingredients", err)
	}
	return list, nil
}

// InsertIngredientInTx creates an ingredient with zero stock; opening stock
// is booked as a mutation by the caller.
func InsertIngredientInTx(ctx context.Context, tx DBTX, ing model.Ingredient) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ingredients (name, unit, min_stock, current_stock) VALUES (?, ?, ?, '0')`,
		ing.Name, ing.Unit, ing.MinStock)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("insert ingredient %s", ing.Name), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapError("insert ingredient", err)
	}
	return id, nil
}

func UpdateIngredientMetaInTx(ctx context.Context, tx DBTX, id int64, unit string, minStock decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `UPDATE ingredients SET unit = ?, min_stock = ? WHERE id = ?`, unit, minStock, id)
	if err != nil {
		return WrapError(fmt.Sprintf("update ingredient %d", id), err)
	}
	return requireAffected(res, "ingredient", id)
}

// ApplyStockDeltaInTx appends a mutation and moves the cached stock level by
// the same amount. Both writes happen in the caller's transaction.
func ApplyStockDeltaInTx(ctx context.Context, tx DBTX, m model.StockMutation) (int64, error) {
	ing, err := GetIngredient(ctx, tx, m.IngredientID)
	if err != nil {
		return 0, err
	}
	newStock := ing.CurrentStock.Add(m.Delta)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO stock_mutations (ingredient_id, order_id, delta, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.IngredientID, m.OrderID, m.Delta, m.Reason, m.CreatedAt)
	if err != nil {
		return 0, WrapError(fmt.Sprintf("insert stock mutation for ingredient %d", m.IngredientID), err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ingredients SET current_stock = ? WHERE id = ?`, newStock, m.IngredientID); err != nil {
		return 0, WrapError(fmt.Sprintf("update stock of ingredient %d", m.IngredientID), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapError("insert stock mutation", err)
	}
	return id, nil
}

func GetMutationsByOrder(ctx context.Context, db DBTX, orderID int64) ([]model.StockMutation, error) {
	list := []model.StockMutation{}
	err := db.SelectContext(ctx, &list, `
		SELECT id, ingredient_id, order_id, delta, reason, created_at
		FROM stock_mutations WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("get stock mutations of order %d", orderID), err)
	}
	return list, nil
}

func GetMutationsByIngredient(ctx context.Context, db DBTX, ingredientID int64, limit int) ([]model.StockMutation, error) {
	if limit <= 0 {
		limit = 200
	}
	list := []model.StockMutation{}
	err := db.SelectContext(ctx, &list, `
		SELECT id, ingredient_id, order_id, delta, reason, created_at
		FROM stock_mutations WHERE ingredient_id = ? ORDER BY id DESC LIMIT ?`, ingredientID, limit)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("get stock mutations of ingredient %d", ingredientID), err)
	}
	return list, nil
}

// SumMutations returns the ledger total of one ingredient.
func SumMutations(ctx context.Context, db DBTX, ingredientID int64) (decimal.Decimal, error) {
	var deltas []decimal.Decimal
	if err := db.SelectContext(ctx, &deltas,
		`SELECT delta FROM stock_mutations WHERE ingredient_id = ?`, ingredientID); err != nil {
		return decimal.Zero, WrapError(fmt.Sprintf("sum stock mutations of ingredient %d", ingredientID), err)
	}
	sum := decimal.Zero
	for _, d := range deltas {
		sum = sum.Add(d)
	}
	return sum, nil
}

// DeleteMutationInTx removes one ledger entry and takes its delta back out of
// the cached stock level.
func DeleteMutationInTx(ctx context.Context, tx DBTX, m model.StockMutation) error {
	ing, err := GetIngredient(ctx, tx, m.IngredientID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_mutations WHERE id = ?`, m.ID); err != nil {
		return WrapError(fmt.Sprintf("delete stock mutation %d", m.ID), err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ingredients SET current_stock = ? WHERE id = ?`, ing.CurrentStock.Sub(m.Delta), m.IngredientID); err != nil {
		return WrapError(fmt.Sprintf("update stock of ingredient %d", m.IngredientID), err)
	}
	return nil
}

// GetRecipeEntries matches category case-insensitively and product exactly.
func GetRecipeEntries(ctx context.Context, db DBTX, category, product string) ([]model.RecipeEntry, error) {
	list := []model.RecipeEntry{}
	err := db.SelectContext(ctx, &list, `
		SELECT category, product, ingredient_id, quantity
		FROM recipe_entries
		WHERE category = ? COLLATE NOCASE AND product = ?
		ORDER BY ingredient_id`, category, product)
	if err != nil {
		return nil, WrapError(fmt.Sprintf("get recipe of %s/%s", category, product), err)
	}
	return list, nil
}

func UpsertRecipeEntryInTx(ctx context.Context, tx DBTX, e model.RecipeEntry) error {
	const q = `
		INSERT INTO recipe_entries (category, product, ingredient_id, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category, product, ingredient_id) DO UPDATE SET
			quantity = excluded.quantity`
	if _, err := tx.ExecContext(ctx, q, e.Category, e.Product, e.IngredientID, e.Quantity); err != nil {
		return WrapError(fmt.Sprintf("upsert recipe entry %s/%s/%d", e.Category, e.Product, e.IngredientID), err)
	}
	return nil
}

func DeleteRecipeInTx(ctx context.Context, tx DBTX, category, product string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM recipe_entries WHERE category = ? COLLATE NOCASE AND product = ?`, category, product)
	if err != nil {
		return WrapError(fmt.Sprintf("delete recipe of %s/%s", category, product), err)
	}
	return nil
}
