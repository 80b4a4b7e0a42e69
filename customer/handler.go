package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orderdesk/httpx"
)

// GetByPhoneHandler looks a customer up by any accepted spelling of the phone number.
func GetByPhoneHandler(l *Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := l.GetByPhone(r.Context(), chi.URLParam(r, "phone"))
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, c)
	}
}

func GetHandler(l *Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		c, err := l.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, c)
	}
}

// SearchHandler serves ?q=<phone prefix or name fragment>&limit=n.
func SearchHandler(l *Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := httpx.IntQuery(r, "limit", 20)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		found, err := l.Search(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, found)
	}
}

func UpdateNotesHandler(l *Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		var body struct {
			Notes              string `json:"notes"`
			DeliveryPreference string `json:"deliveryPreference"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		if err := l.UpdateNotes(r.Context(), id, body.Notes, body.DeliveryPreference); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
