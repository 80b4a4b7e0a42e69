package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"orderdesk/config"
	"orderdesk/database"
	"orderdesk/logging"
	"orderdesk/model"
	"orderdesk/parsers"
	"orderdesk/receipt"
	"orderdesk/stock"
	"orderdesk/units"
)

// InitDatabase applies the schema, raises receipt counters that lag behind
// stored orders and, when configured, imports the recipe sheet.
func InitDatabase(ctx context.Context, db *sqlx.DB, receipts *receipt.Allocator, engine *stock.Engine, cfg config.Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("loader")

	logger.Info("applying database schema")
	if err := database.ApplySchema(ctx, db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := receipts.RepairCounters(ctx); err != nil {
		return fmt.Errorf("failed to initialize receipt counters: %w", err)
	}
	logger.Info("receipt counters initialized")

	if cfg.RecipeCSVPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.RecipeCSVPath); os.IsNotExist(err) {
		logger.Warn("recipe sheet not found, skipping", zap.String("path", cfg.RecipeCSVPath))
		return nil
	}
	summary, err := ImportRecipesFile(ctx, db, engine, cfg.RecipeCSVPath, cfg.RecipeCSVEncoding)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", cfg.RecipeCSVPath, err)
	}
	logger.Info("recipe sheet loaded",
		zap.String("path", cfg.RecipeCSVPath),
		zap.Int("recipes", summary.Recipes),
		zap.Int("ingredients_created", summary.IngredientsCreated),
		zap.Int("rows_skipped", len(summary.Skipped)))
	return nil
}

// Decoder returns the transformer that turns a file in the named encoding into
// UTF-8. Spreadsheet exports on the shop PCs are Windows-1252.
func Decoder(name string) (transform.Transformer, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return transform.Nop, nil
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	case "iso-8859-1", "latin1":
		enc = charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		enc = charmap.ISO8859_15
	default:
		return nil, model.Validationf("unsupported CSV encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// ImportSummary reports what a recipe import changed.
type ImportSummary struct {
	Recipes            int                `json:"recipes"`
	Entries            int                `json:"entries"`
	IngredientsCreated int                `json:"ingredientsCreated"`
	Skipped            []parsers.RowError `json:"skipped,omitempty"`
}

func ImportRecipesFile(ctx context.Context, db *sqlx.DB, engine *stock.Engine, path, encodingName string) (ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return ImportRecipes(ctx, db, engine, f, encodingName)
}

type recipeKey struct{ category, product string }

// ImportRecipes replaces the recipe of every (category, product) in the
// sheet and creates missing ingredients with zero stock, all in one
// transaction. Invalid rows are skipped and reported.
func ImportRecipes(ctx context.Context, db *sqlx.DB, engine *stock.Engine, r io.Reader, encodingName string) (summary ImportSummary, err error) {
	dec, err := Decoder(encodingName)
	if err != nil {
		return ImportSummary{}, err
	}
	records, skipped, err := parsers.ParseRecipeCSV(transform.NewReader(r, dec))
	if err != nil {
		return ImportSummary{}, model.Validationf("%v", err)
	}
	summary.Skipped = skipped

	var order []recipeKey
	grouped := make(map[recipeKey][]parsers.RecipeCSVRecord)
	for _, rec := range records {
		key := recipeKey{strings.ToLower(rec.Category), rec.Product}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], rec)
	}

	err = database.WithTx(ctx, db, func(ctx context.Context, tx *sqlx.Tx) error {
		ingredientIDs := make(map[string]int64)
		for _, key := range order {
			rows := grouped[key]
			var lines []stock.RecipeLine
			for _, rec := range rows {
				id, created, err := ensureIngredient(ctx, tx, engine, ingredientIDs, rec)
				if err != nil {
					return err
				}
				if created {
					summary.IngredientsCreated++
				}
				lines = append(lines, stock.RecipeLine{IngredientID: id, Quantity: rec.Quantity})
			}
			if err := engine.SetRecipeTx(ctx, tx, rows[0].Category, rows[0].Product, lines); err != nil {
				return err
			}
			summary.Recipes++
			summary.Entries += len(lines)
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}
	return summary, nil
}

func ensureIngredient(ctx context.Context, tx database.DBTX, engine *stock.Engine, cache map[string]int64, rec parsers.RecipeCSVRecord) (int64, bool, error) {
	if id, ok := cache[rec.Ingredient]; ok {
		return id, false, nil
	}
	existing, err := database.GetIngredientByName(ctx, tx, rec.Ingredient)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		if rec.MinStock != nil && !rec.MinStock.Equal(existing.MinStock) {
			unit := existing.Unit
			if rec.Unit != "" {
				unit = units.Canonical(rec.Unit)
			}
			if err := database.UpdateIngredientMetaInTx(ctx, tx, existing.ID, unit, *rec.MinStock); err != nil {
				return 0, false, err
			}
		}
		cache[rec.Ingredient] = existing.ID
		return existing.ID, false, nil
	}

	minStock := decimal.Zero
	if rec.MinStock != nil {
		minStock = *rec.MinStock
	}
	id, err := engine.CreateIngredientTx(ctx, tx, stock.IngredientInput{
		Name:     rec.Ingredient,
		Unit:     rec.Unit,
		MinStock: minStock,
	})
	if err != nil {
		return 0, false, err
	}
	cache[rec.Ingredient] = id
	return id, true, nil
}

// CountSummary reports the corrections booked by a stock count import.
type CountSummary struct {
	Adjusted  int                `json:"adjusted"`
	Unchanged int                `json:"unchanged"`
	Unknown   []string           `json:"unknown,omitempty"`
	Skipped   []parsers.RowError `json:"skipped,omitempty"`
}

// ImportStockCount books, per counted ingredient, the difference between the
// counted and the cached stock as one manual mutation, in one transaction.
func ImportStockCount(ctx context.Context, db *sqlx.DB, r io.Reader, encodingName, reason string, at string) (CountSummary, error) {
	dec, err := Decoder(encodingName)
	if err != nil {
		return CountSummary{}, err
	}
	records, skipped, err := parsers.ParseStockCountCSV(transform.NewReader(r, dec))
	if err != nil {
		return CountSummary{}, model.Validationf("%v", err)
	}
	if reason == "" {
		reason = "Stock count"
	}

	summary := CountSummary{Skipped: skipped}
	err = database.WithTx(ctx, db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, rec := range records {
			ing, err := database.GetIngredientByName(ctx, tx, rec.Ingredient)
			if err != nil {
				return err
			}
			if ing == nil {
				summary.Unknown = append(summary.Unknown, rec.Ingredient)
				continue
			}
			delta := rec.Counted.Sub(ing.CurrentStock)
			if delta.IsZero() {
				summary.Unchanged++
				continue
			}
			if _, err := database.ApplyStockDeltaInTx(ctx, tx, model.StockMutation{
				IngredientID: ing.ID,
				Delta:        delta,
				Reason:       reason,
				CreatedAt:    at,
			}); err != nil {
				return err
			}
			summary.Adjusted++
		}
		return nil
	})
	if err != nil {
		return CountSummary{}, err
	}
	return summary, nil
}
