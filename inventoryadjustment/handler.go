// Package inventoryadjustment books physical stock counts against the ledger.
package inventoryadjustment

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/database"
	"orderdesk/httpx"
	"orderdesk/loader"
	"orderdesk/model"
)

const maxUploadSize = 8 << 20

// ImportStockCountHandler takes a multipart "file" with ingredient,counted
// rows and books the difference to the cached stock of each ingredient.
// Optional form values: encoding, reason.
func ImportStockCountHandler(db *sqlx.DB, clock func() time.Time, logger *zap.Logger) http.HandlerFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpx.WriteError(w, r, logger, model.Validationf("could not read upload: %v", err))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.WriteError(w, r, logger, model.Validationf("CSV file is required: %v", err))
			return
		}
		defer file.Close()

		at := clock().Format(database.TimestampLayout)
		summary, err := loader.ImportStockCount(r.Context(), db, file, r.FormValue("encoding"), r.FormValue("reason"), at)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		logger.Info("stock count imported",
			zap.Int("adjusted", summary.Adjusted),
			zap.Int("unchanged", summary.Unchanged),
			zap.Int("unknown", len(summary.Unknown)),
			zap.Int("skipped", len(summary.Skipped)))
		httpx.WriteJSON(w, http.StatusOK, summary)
	}
}
