package loader

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/config"
	"orderdesk/httpx"
	"orderdesk/model"
	"orderdesk/stock"
)

const maxUploadSize = 8 << 20

// ImportRecipesHandler replaces recipes from an uploaded sheet (multipart
// "file"). Without a file it reloads the sheet configured in recipeCsvPath.
func ImportRecipesHandler(db *sqlx.DB, engine *stock.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := config.GetConfig()
		encodingName := cfg.RecipeCSVEncoding

		var (
			summary ImportSummary
			err     error
		)
		if perr := r.ParseMultipartForm(maxUploadSize); perr == nil {
			if v := r.FormValue("encoding"); v != "" {
				encodingName = v
			}
		}
		file, _, ferr := r.FormFile("file")
		switch {
		case ferr == nil:
			defer file.Close()
			summary, err = ImportRecipes(r.Context(), db, engine, file, encodingName)
		case cfg.RecipeCSVPath != "":
			logger.Info("reloading configured recipe sheet", zap.String("path", cfg.RecipeCSVPath))
			summary, err = ImportRecipesFile(r.Context(), db, engine, cfg.RecipeCSVPath, encodingName)
		default:
			err = model.Validationf("no recipe file uploaded and no recipeCsvPath configured")
		}
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}

		logger.Info("recipes imported",
			zap.Int("recipes", summary.Recipes),
			zap.Int("entries", summary.Entries),
			zap.Int("ingredients_created", summary.IngredientsCreated),
			zap.Int("rows_skipped", len(summary.Skipped)))
		httpx.WriteJSON(w, http.StatusOK, summary)
	}
}
