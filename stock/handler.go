package stock

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderdesk/httpx"
	"orderdesk/model"
)

func ListIngredientsHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := e.Ingredients(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func CreateIngredientHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in IngredientInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		id, err := e.CreateIngredient(r.Context(), in)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// LowStockHandler lists ingredients under their minimum stock.
func LowStockHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		low, err := e.LowStock(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, low)
	}
}

// AdjustHandler books {"delta": "-1.5", "reason": "..."} and returns the
// ingredient with its new stock.
func AdjustHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		var body struct {
			Delta  decimal.Decimal `json:"delta"`
			Reason string          `json:"reason"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		ing, err := e.Adjust(r.Context(), id, body.Delta, body.Reason)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, ing)
	}
}

func MutationsHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		limit, err := httpx.IntQuery(r, "limit", 100)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		list, err := e.Mutations(r.Context(), id, limit)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func VerifyHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		d, err := e.Verify(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"drift": d, "inSync": d.InSync()})
	}
}

func GetRecipeHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := e.RecipeFor(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "product"))
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		if len(entries) == 0 {
			httpx.WriteError(w, r, logger, model.NotFoundf("no recipe for %s/%s",
				chi.URLParam(r, "category"), chi.URLParam(r, "product")))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, entries)
	}
}

// PutRecipeHandler replaces a recipe with the posted list of RecipeLine.
func PutRecipeHandler(e *Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var lines []RecipeLine
		if err := httpx.DecodeJSON(r, &lines); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		err := e.SetRecipe(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "product"), lines)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
